package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

// OfferRequest is a buyer's offer on a listing.
type OfferRequest struct {
	ListingID string
	BuyerID   string
	Amount    decimal.Decimal
	Message   string
}

// OfferAction is the seller's response to a pending offer.
type OfferAction string

const (
	ActionAccept  OfferAction = "accept"
	ActionDecline OfferAction = "decline"
	ActionCounter OfferAction = "counter"
)

// OfferResponse carries the seller's decision. Amount and Message apply to
// counters only.
type OfferResponse struct {
	Action  OfferAction
	Amount  decimal.Decimal
	Message string
}

// OfferOutcome is the offer after a response, and the order when the
// response sold the listing.
type OfferOutcome struct {
	Offer *core.Offer
	Order *core.Order
}

// CreateOffer opens a pending offer that expires after the offer window.
func (e *Engine) CreateOffer(ctx context.Context, req OfferRequest) (*core.Offer, error) {
	if !core.ValidMoney(req.Amount) {
		return nil, fmt.Errorf("%w: offer %s", core.ErrInvalidAmount, req.Amount)
	}
	if err := e.requireActiveUser(ctx, req.BuyerID); err != nil {
		return nil, err
	}

	var offer *core.Offer
	err := e.atomic(ctx, "create_offer", req.ListingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if !l.IsActive() {
			return fmt.Errorf("%w: %s is %s", core.ErrListingNotActive, l.ID, l.Status)
		}
		if l.AuctionEnded(now) {
			return fmt.Errorf("%w: %s", core.ErrAuctionEnded, l.ID)
		}
		if !l.AllowOffers {
			return fmt.Errorf("%w: %s", core.ErrOffersNotAllowed, l.ID)
		}
		if req.BuyerID == l.SellerID {
			return core.ErrSelfOffer
		}
		minimum := l.MinimumOffer(e.minOfferPercent)
		if !core.MeetsMinimum(req.Amount, minimum) {
			return fmt.Errorf("%w: minimum offer is %s", core.ErrOfferBelowMinimum, minimum.StringFixed(2))
		}

		offer = &core.Offer{
			ID:        uuid.NewString(),
			ListingID: l.ID,
			BuyerID:   req.BuyerID,
			Amount:    req.Amount,
			Message:   req.Message,
			Status:    core.OfferPending,
			ExpiresAt: now.Add(e.offerWindow),
			CreatedAt: now,
		}
		if err := tx.SaveOffer(offer); err != nil {
			return err
		}
		b.emit(core.EventOfferCreated, l.ID, req.BuyerID, offer.ID, offer.Amount, now)
		b.after(func() { e.metrics.Offers.With("action", "create").Add(1) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("listing_id", req.ListingID).
		Str("offer_id", offer.ID).
		Str("buyer_id", req.BuyerID).
		Str("amount", req.Amount.StringFixed(2)).
		Msg("offer created")
	return offer, nil
}

// RespondToOffer applies the seller's accept, decline or counter to a
// pending offer. Accepting sells the listing at the offer amount.
func (e *Engine) RespondToOffer(ctx context.Context, offerID, sellerID string, resp OfferResponse) (*OfferOutcome, error) {
	switch resp.Action {
	case ActionAccept, ActionDecline, ActionCounter:
	default:
		return nil, fmt.Errorf("%w: unknown action %q", core.ErrInvalidTransition, resp.Action)
	}

	listingID, err := e.store.OfferListing(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var out *OfferOutcome
	err = e.atomic(ctx, "respond_offer", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if err := core.RequireOwner(l, sellerID); err != nil {
			return err
		}
		if !l.IsActive() {
			return fmt.Errorf("%w: %s is %s", core.ErrListingNotActive, l.ID, l.Status)
		}
		o, err := tx.Offer(offerID)
		if err != nil {
			return err
		}

		out = &OfferOutcome{Offer: o}
		switch resp.Action {
		case ActionAccept:
			if err := o.Accept(now); err != nil {
				return err
			}
			order, err := e.sellByOffer(tx, l, o, b, now)
			if err != nil {
				return err
			}
			out.Order = order
		case ActionDecline:
			if err := o.Decline(now); err != nil {
				return err
			}
			b.emit(core.EventOfferDeclined, l.ID, sellerID, o.ID, o.Amount, now)
		case ActionCounter:
			if err := o.Counter(resp.Amount, resp.Message, now, e.offerWindow); err != nil {
				return err
			}
			b.emit(core.EventOfferCountered, l.ID, sellerID, o.ID, resp.Amount, now)
		}
		if err := tx.SaveOffer(o); err != nil {
			return err
		}
		b.after(func() { e.metrics.Offers.With("action", string(resp.Action)).Add(1) })
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("listing_id", listingID).
		Str("offer_id", offerID).
		Str("action", string(resp.Action)).
		Msg("offer answered")
	return out, nil
}

// RespondToCounter is the buyer accepting or declining a seller's counter.
func (e *Engine) RespondToCounter(ctx context.Context, offerID, buyerID string, accept bool) (*OfferOutcome, error) {
	listingID, err := e.store.OfferListing(ctx, offerID)
	if err != nil {
		return nil, err
	}

	action := "decline_counter"
	if accept {
		action = "accept_counter"
	}

	var out *OfferOutcome
	err = e.atomic(ctx, "respond_counter", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		o, err := tx.Offer(offerID)
		if err != nil {
			return err
		}
		if err := core.RequireOwner(o, buyerID); err != nil {
			return err
		}
		if !l.IsActive() {
			return fmt.Errorf("%w: %s is %s", core.ErrListingNotActive, l.ID, l.Status)
		}

		out = &OfferOutcome{Offer: o}
		if accept {
			if err := o.AcceptCounter(now); err != nil {
				return err
			}
			order, err := e.sellByOffer(tx, l, o, b, now)
			if err != nil {
				return err
			}
			out.Order = order
		} else {
			if err := o.DeclineCounter(now); err != nil {
				return err
			}
			b.emit(core.EventOfferDeclined, l.ID, buyerID, o.ID, o.AgreedPrice(), now)
		}
		if err := tx.SaveOffer(o); err != nil {
			return err
		}
		b.after(func() { e.metrics.Offers.With("action", action).Add(1) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) sellByOffer(tx store.Tx, l *core.Listing, o *core.Offer, b *batch, now time.Time) (*core.Order, error) {
	price := o.AgreedPrice()
	order, err := e.materializeOrder(tx, l, b, core.SourceOffer, o.ID, o.BuyerID, price, now)
	if err != nil {
		return nil, err
	}
	if err := deactivateInstructions(tx, now); err != nil {
		return nil, err
	}
	b.emit(core.EventOfferAccepted, l.ID, o.BuyerID, o.ID, price, now)
	return order, nil
}

// GetOffer returns the offer with its effective status, so an offer past
// its expiry reads as expired before the sweep persists it.
func (e *Engine) GetOffer(ctx context.Context, offerID string) (*core.Offer, error) {
	listingID, err := e.store.OfferListing(ctx, offerID)
	if err != nil {
		return nil, err
	}

	var offer *core.Offer
	err = e.atomic(ctx, "read", listingID, func(tx store.Tx, _ *batch) error {
		o, err := tx.Offer(offerID)
		if err != nil {
			return err
		}
		o.Status = o.EffectiveStatus(e.clock.Now())
		offer = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}
