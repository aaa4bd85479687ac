package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

func TestCloseExpiredAuctions_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sold := h.auction(t, "50")
	unsold := h.auction(t, "50")
	reserve := h.auction(t, "50", func(l *core.Listing) {
		l.ReservePrice.Valid = true
		l.ReservePrice.Decimal = dec("100")
	})

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: sold.ID, BidderID: "x", Amount: dec("60")})
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: reserve.ID, BidderID: "x", Amount: dec("60")})
	assert.NoError(t, err)
	_, err = h.engine.RegisterAutoBid(ctx, reserve.ID, "y", dec("70"))
	assert.NoError(t, err)

	// nothing is due yet
	report, err := h.engine.CloseExpiredAuctions(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, len(report.Sold)+len(report.Expired))

	h.clock.Advance(25 * time.Hour)
	report, err = h.engine.CloseExpiredAuctions(ctx)
	assert.NoError(t, err)
	check.Equal(t, []string{sold.ID}, report.Sold)
	check.Equal(t, 2, len(report.Expired))

	for _, id := range []string{unsold.ID, reserve.ID} {
		l, err := h.engine.GetListing(ctx, id)
		assert.NoError(t, err)
		check.Equal(t, core.ListingExpired, l.Status)
	}

	// closing deactivates standing instructions
	check.NoError(t, h.store.Atomic(ctx, reserve.ID, func(tx store.Tx) error {
		for _, in := range tx.AutoBids() {
			check.False(t, in.Active)
		}
		return nil
	}))

	again, err := h.engine.CloseExpiredAuctions(ctx)
	check.NoError(t, err)
	check.Equal(t, 0, len(again.Sold))
	check.Equal(t, 0, len(again.Expired))

	l, err := h.engine.GetListing(ctx, sold.ID)
	assert.NoError(t, err)
	check.Equal(t, core.ListingSold, l.Status)
	check.Equal(t, 1, l.QuantitySold)
}

// flakyStore fails the first n critical sections with contention.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (s *flakyStore) Atomic(ctx context.Context, id string, fn func(store.Tx) error) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return core.ErrContention
	}
	return s.Store.Atomic(ctx, id, fn)
}

func TestAtomic_RetriesContentionOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	flaky := &flakyStore{Store: h.store, failures: 1}
	e := New(flaky, WithClock(h.clock), WithRetryBackoff(time.Millisecond))

	_, err := e.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	check.NoError(t, err)
	check.Equal(t, 2, flaky.calls)

	flaky.failures, flaky.calls = 2, 0
	_, err = e.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("60")})
	check.True(t, errors.Is(err, core.ErrContention))
	check.Equal(t, 2, flaky.calls)
}

func TestPublishFailureKeepsTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	h.events.err = errors.New("broker down")
	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	check.NoError(t, err)

	price, err := h.engine.GetCurrentPrice(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, "55.00", price.StringFixed(2))
}

func TestCancelListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	withBids := h.auction(t, "50")
	empty := h.auction(t, "50")

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: withBids.ID, BidderID: "x", Amount: dec("55")})
	assert.NoError(t, err)

	_, err = h.engine.CancelListing(ctx, withBids.ID, "seller")
	check.True(t, errors.Is(err, core.ErrHasBids))

	_, err = h.engine.CancelListing(ctx, empty.ID, "x")
	check.True(t, errors.Is(err, core.ErrNotOwner))

	l, err := h.engine.CancelListing(ctx, empty.ID, "seller")
	assert.NoError(t, err)
	check.Equal(t, core.ListingCancelled, l.Status)

	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: empty.ID, BidderID: "x", Amount: dec("55")})
	check.True(t, errors.Is(err, core.ErrListingNotActive))
}

func TestPublishListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.engine.CreateListing(ctx, &core.Listing{
		SellerID:    "seller",
		PricingMode: core.PricingAuction,
		Price:       dec("50"),
		AuctionEnd:  start.Add(time.Hour),
	})
	assert.NoError(t, err)
	check.Equal(t, core.ListingDraft, draft.Status)
	check.Equal(t, 1, draft.Quantity)

	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: draft.ID, BidderID: "x", Amount: dec("55")})
	check.True(t, errors.Is(err, core.ErrListingNotActive))

	_, err = h.engine.PublishListing(ctx, draft.ID, "x")
	check.True(t, errors.Is(err, core.ErrNotOwner))

	h.clock.Advance(2 * time.Hour)
	_, err = h.engine.PublishListing(ctx, draft.ID, "seller")
	check.True(t, errors.Is(err, core.ErrInvalidListing))

	_, err = h.engine.CreateListing(ctx, &core.Listing{SellerID: "seller", PricingMode: core.PricingAuction})
	check.True(t, errors.Is(err, core.ErrInvalidListing))
}
