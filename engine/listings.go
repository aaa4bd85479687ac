package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

// CreateListing validates l and stores it as a draft. The ID is assigned
// when empty.
func (e *Engine) CreateListing(ctx context.Context, l *core.Listing) (*core.Listing, error) {
	now := e.clock.Now()
	created := *l
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Quantity == 0 {
		created.Quantity = 1
	}
	created.Status = core.ListingDraft
	created.ExtensionCount = 0
	created.QuantityReserved = 0
	created.QuantitySold = 0
	created.CreatedAt = now
	created.UpdatedAt = now

	if err := created.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.CreateListing(ctx, &created); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}

	e.logger.Info().
		Str("listing_id", created.ID).
		Str("seller_id", created.SellerID).
		Str("pricing_mode", string(created.PricingMode)).
		Msg("listing created")
	return &created, nil
}

// PublishListing opens a draft for bidding and offers.
func (e *Engine) PublishListing(ctx context.Context, listingID, sellerID string) (*core.Listing, error) {
	var published *core.Listing
	err := e.atomic(ctx, "publish_listing", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if err := core.RequireOwner(l, sellerID); err != nil {
			return err
		}
		if l.IsAuction() && !l.AuctionEnd.After(now) {
			return fmt.Errorf("%w: auction end %s is in the past", core.ErrInvalidListing, l.AuctionEnd)
		}
		if err := l.Transition(core.ListingActive, now); err != nil {
			return err
		}
		if err := tx.SaveListing(l); err != nil {
			return err
		}
		b.emit(core.EventListingPublished, l.ID, sellerID, "", l.Price, now)
		published = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}

// CancelListing withdraws a draft or active listing. Auctions that already
// have bids cannot be cancelled.
func (e *Engine) CancelListing(ctx context.Context, listingID, sellerID string) (*core.Listing, error) {
	var cancelled *core.Listing
	err := e.atomic(ctx, "cancel_listing", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if err := core.RequireOwner(l, sellerID); err != nil {
			return err
		}
		if l.IsAuction() && len(tx.Bids()) > 0 {
			return fmt.Errorf("%w: %s", core.ErrHasBids, l.ID)
		}
		if err := l.Transition(core.ListingCancelled, now); err != nil {
			return err
		}
		if err := tx.SaveListing(l); err != nil {
			return err
		}
		if err := deactivateInstructions(tx, now); err != nil {
			return err
		}
		b.emit(core.EventListingCancelled, l.ID, sellerID, "", decimal.Zero, now)
		cancelled = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().Str("listing_id", listingID).Msg("listing cancelled")
	return cancelled, nil
}

// GetListing returns the listing.
func (e *Engine) GetListing(ctx context.Context, listingID string) (*core.Listing, error) {
	var l *core.Listing
	err := e.atomic(ctx, "read", listingID, func(tx store.Tx, _ *batch) error {
		l = tx.Listing()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}
