package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOfferWindow is how long a pending or countered offer stays open.
const DefaultOfferWindow = 48 * time.Hour

// Owner returns the buyer who made the offer.
func (o *Offer) Owner() string { return o.BuyerID }

// EffectiveStatus returns the offer status as of now. Open offers past their
// expiry read as expired even before a sweep marks them.
func (o *Offer) EffectiveStatus(now time.Time) OfferStatus {
	if o.IsOpen() && !now.Before(o.ExpiresAt) {
		return OfferExpired
	}
	return o.Status
}

// IsOpen reports whether the offer still awaits a response.
func (o *Offer) IsOpen() bool {
	return o.Status == OfferPending || o.Status == OfferCountered
}

// AgreedPrice is the price an accepted offer sells at: the seller's counter
// when the buyer accepted one, otherwise the buyer's amount.
func (o *Offer) AgreedPrice() decimal.Decimal {
	if o.CounterAmount.Valid {
		return o.CounterAmount.Decimal
	}
	return o.Amount
}

func (o *Offer) require(status OfferStatus, now time.Time) error {
	current := o.EffectiveStatus(now)
	if current == OfferExpired {
		return fmt.Errorf("%w: offer %s expired at %s", ErrOfferExpired, o.ID, o.ExpiresAt.Format(time.RFC3339))
	}
	if current != status {
		return fmt.Errorf("%w: offer %s is %s, not %s", ErrInvalidTransition, o.ID, current, status)
	}
	return nil
}

// Accept is the seller accepting a pending offer at the buyer's amount.
func (o *Offer) Accept(now time.Time) error {
	if err := o.require(OfferPending, now); err != nil {
		return err
	}
	o.Status = OfferAccepted
	o.RespondedAt = now
	return nil
}

// Decline is the seller declining a pending offer.
func (o *Offer) Decline(now time.Time) error {
	if err := o.require(OfferPending, now); err != nil {
		return err
	}
	o.Status = OfferDeclined
	o.RespondedAt = now
	return nil
}

// Counter is the seller proposing a different price. The counter must be
// above the buyer's amount, and the offer window restarts.
func (o *Offer) Counter(amount decimal.Decimal, message string, now time.Time, window time.Duration) error {
	if err := o.require(OfferPending, now); err != nil {
		return err
	}
	if !ValidMoney(amount) || !amount.GreaterThan(o.Amount) {
		return fmt.Errorf("%w: counter must exceed the offer of %s", ErrInvalidAmount, o.Amount.StringFixed(monetaryPrecision))
	}
	o.Status = OfferCountered
	o.CounterAmount = decimal.NewNullDecimal(amount)
	o.CounterMessage = message
	o.CounteredAt = now
	o.RespondedAt = now
	o.ExpiresAt = now.Add(window)
	return nil
}

// AcceptCounter is the buyer accepting the seller's counter amount.
func (o *Offer) AcceptCounter(now time.Time) error {
	if err := o.require(OfferCountered, now); err != nil {
		return err
	}
	o.Status = OfferAccepted
	o.RespondedAt = now
	return nil
}

// DeclineCounter is the buyer rejecting the seller's counter amount.
func (o *Offer) DeclineCounter(now time.Time) error {
	if err := o.require(OfferCountered, now); err != nil {
		return err
	}
	o.Status = OfferDeclined
	o.RespondedAt = now
	return nil
}

// Expire marks an open offer past its expiry as expired. It reports whether
// the offer changed.
func (o *Offer) Expire(now time.Time) bool {
	if !o.IsOpen() || now.Before(o.ExpiresAt) {
		return false
	}
	o.Status = OfferExpired
	return true
}
