package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Owner returns the seller of the listing.
func (l *Listing) Owner() string { return l.SellerID }

// IsAuction reports whether the listing is sold by auction.
func (l *Listing) IsAuction() bool { return l.PricingMode == PricingAuction }

// IsActive reports whether the listing can still be bid on or negotiated.
func (l *Listing) IsActive() bool { return l.Status == ListingActive }

// AuctionEnded reports whether an auction listing has reached its end time.
func (l *Listing) AuctionEnded(now time.Time) bool {
	return l.IsAuction() && !now.Before(l.AuctionEnd)
}

// EffectiveIncrement returns the listing's bid increment, or fallback when
// the listing does not set one.
func (l *Listing) EffectiveIncrement(fallback decimal.Decimal) decimal.Decimal {
	if l.Increment.IsPositive() {
		return l.Increment
	}
	if fallback.IsPositive() {
		return fallback
	}
	return DefaultIncrement
}

// MinimumOffer returns the smallest acceptable offer given a default
// percentage for listings without their own.
func (l *Listing) MinimumOffer(defaultPercent decimal.Decimal) decimal.Decimal {
	percent := l.MinOfferPercent
	if !percent.IsPositive() {
		percent = defaultPercent
	}
	return RoundMoney(l.Price.Mul(percent).Div(decimal.NewFromInt(100)))
}

var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingDraft:  {ListingActive, ListingCancelled},
	ListingActive: {ListingSold, ListingExpired, ListingCancelled},
}

// Transition moves the listing to status to. Statuses only move forward:
// draft → active → {sold, expired, cancelled}, or draft → cancelled.
func (l *Listing) Transition(to ListingStatus, now time.Time) error {
	for _, allowed := range listingTransitions[l.Status] {
		if allowed == to {
			l.Status = to
			l.UpdatedAt = now
			if to != ListingActive {
				l.ClosedAt = now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: listing %s cannot move from %s to %s", ErrInvalidTransition, l.ID, l.Status, to)
}

// Validate checks that a new listing is internally consistent.
func (l *Listing) Validate() error {
	if l.SellerID == "" {
		return fmt.Errorf("%w: seller is required", ErrInvalidListing)
	}
	if !ValidMoney(l.Price) {
		return fmt.Errorf("%w: price must be a positive amount", ErrInvalidListing)
	}
	if l.ShippingPrice.IsNegative() {
		return fmt.Errorf("%w: shipping price cannot be negative", ErrInvalidListing)
	}
	if !l.Increment.IsZero() && !ValidMoney(l.Increment) {
		return fmt.Errorf("%w: increment must be a positive amount in whole cents", ErrInvalidListing)
	}
	if l.MinOfferPercent.IsNegative() || l.MinOfferPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: minimum offer percent must be within 0-100", ErrInvalidListing)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidListing)
	}

	switch l.PricingMode {
	case PricingFixed:
		if l.ReservePrice.Valid {
			return fmt.Errorf("%w: fixed price listings have no reserve", ErrInvalidListing)
		}
	case PricingAuction:
		if l.AuctionEnd.IsZero() {
			return fmt.Errorf("%w: auction end is required", ErrInvalidListing)
		}
		if l.ReservePrice.Valid && l.ReservePrice.Decimal.LessThan(l.Price) {
			return fmt.Errorf("%w: reserve price is below the starting price", ErrInvalidListing)
		}
		if l.Extension.Enabled && l.Extension.Window <= 0 {
			return fmt.Errorf("%w: extension window must be positive", ErrInvalidListing)
		}
		if l.Extension.MaxExtensions < 0 {
			return fmt.Errorf("%w: max extensions cannot be negative", ErrInvalidListing)
		}
	default:
		return fmt.Errorf("%w: unknown pricing mode %q", ErrInvalidListing, l.PricingMode)
	}
	return nil
}
