package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

func TestPlaceBid_ProxyScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	assert.NoError(t, err)

	in, err := h.engine.RegisterAutoBid(ctx, l.ID, "y", dec("70"))
	assert.NoError(t, err)
	check.True(t, in.Active)

	res, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("60")})
	assert.NoError(t, err)
	check.NotNil(t, res.ProxyBid)
	check.Equal(t, "y", res.LeaderID)
	check.Equal(t, "61.00", res.CurrentPrice.StringFixed(2))

	res, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("65")})
	assert.NoError(t, err)
	check.Equal(t, "y", res.LeaderID)
	check.Equal(t, "66.00", res.CurrentPrice.StringFixed(2))
	check.True(t, res.ProxyBid.Generated)

	h.clock.Advance(25 * time.Hour)
	report, err := h.engine.CloseExpiredAuctions(ctx)
	assert.NoError(t, err)
	check.Equal(t, []string{l.ID}, report.Sold)

	state, err := h.engine.GetAuctionState(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, core.ListingSold, state.Status)
	check.Equal(t, "y", state.LeaderID)
	check.Equal(t, "x", state.RunnerUpID)
	check.True(t, state.Ended)

	var order *core.Order
	assert.NoError(t, h.store.Atomic(ctx, l.ID, func(tx store.Tx) error {
		var err error
		order, err = tx.OrderForListing()
		return err
	}))
	assert.NotNil(t, order)
	check.Equal(t, "y", order.BuyerID)
	check.Equal(t, "66.00", order.ItemPrice.StringFixed(2))
	check.Equal(t, core.SourceAuction, order.Source)

	bids, err := h.engine.GetBids(ctx, l.ID)
	assert.NoError(t, err)
	check.True(t, core.LedgerIncreasing(bids))
}

func TestRegisterAutoBid_TwoCeilings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "10", func(l *core.Listing) { l.Increment = dec("5") })

	_, err := h.engine.RegisterAutoBid(ctx, l.ID, "a", dec("100"))
	assert.NoError(t, err)
	price, _ := h.engine.GetCurrentPrice(ctx, l.ID)
	check.Equal(t, "10.00", price.StringFixed(2))

	loser, err := h.engine.RegisterAutoBid(ctx, l.ID, "b", dec("80"))
	assert.NoError(t, err)
	check.False(t, loser.Active)

	price, winner, err := h.engine.ResolveAutoBids(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, "85.00", price.StringFixed(2))
	check.Equal(t, "a", winner.BidderID)
	check.Equal(t, "100.00", winner.ProxyCeiling.Decimal.StringFixed(2))
}

func TestWithdrawAutoBid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "10")

	_, err := h.engine.RegisterAutoBid(ctx, l.ID, "a", dec("100"))
	assert.NoError(t, err)
	assert.NoError(t, h.engine.WithdrawAutoBid(ctx, l.ID, "a"))

	// the withdrawn ceiling no longer defends the lead
	res, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "b", Amount: dec("11")})
	assert.NoError(t, err)
	check.Nil(t, res.ProxyBid)
	check.Equal(t, "b", res.LeaderID)

	bids, err := h.engine.GetBids(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, 2, len(bids))

	err = h.engine.WithdrawAutoBid(ctx, l.ID, "a")
	check.True(t, errors.Is(err, core.ErrAutoBidNotFound))
}

func TestRegisterAutoBid_LeaderRaisesCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	assert.NoError(t, err)

	_, err = h.engine.RegisterAutoBid(ctx, l.ID, "x", dec("55"))
	check.True(t, errors.Is(err, core.ErrBidTooLow))

	in, err := h.engine.RegisterAutoBid(ctx, l.ID, "x", dec("80"))
	assert.NoError(t, err)
	check.True(t, in.Active)

	// raising your own ceiling places no bid
	price, _ := h.engine.GetCurrentPrice(ctx, l.ID)
	check.Equal(t, "55.00", price.StringFixed(2))

	check.NoError(t, h.engine.WithdrawAutoBid(ctx, l.ID, "x"))
	check.True(t, errors.Is(h.engine.WithdrawAutoBid(ctx, l.ID, "x"), core.ErrAutoBidNotFound))
}

func TestPlaceBid_ProxyCeilingOnBid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("50"), ProxyCeiling: ptr(dec("90"))})
	assert.NoError(t, err)

	res, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("60")})
	assert.NoError(t, err)
	check.Equal(t, "x", res.LeaderID)
	check.Equal(t, "61.00", res.CurrentPrice.StringFixed(2))

	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("70"), ProxyCeiling: ptr(dec("65"))})
	check.True(t, errors.Is(err, core.ErrInvalidAmount))
}

func TestPlaceBid_TieWithStandingCeiling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	_, err := h.engine.RegisterAutoBid(ctx, l.ID, "y", dec("70"))
	assert.NoError(t, err)

	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("70")})
	check.True(t, errors.Is(err, core.ErrBidTooLow))

	price, err := h.engine.GetCurrentPrice(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, "50.00", price.StringFixed(2))

	// a higher ceiling of x's own takes the lead instead
	res, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("70"), ProxyCeiling: ptr(dec("80"))})
	assert.NoError(t, err)
	check.Equal(t, "x", res.LeaderID)
	check.Equal(t, "70.00", res.CurrentPrice.StringFixed(2))
}

func TestPlaceBid_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")
	fixed := h.fixed(t, "20")

	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	assert.NoError(t, err)

	tests := []struct {
		name string
		req  BidRequest
		want error
	}{
		{"below increment", BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("55.50")}, core.ErrBidTooLow},
		{"equal to current", BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("55")}, core.ErrBidTooLow},
		{"self bid", BidRequest{ListingID: l.ID, BidderID: "seller", Amount: dec("60")}, core.ErrSelfBid},
		{"inactive bidder", BidRequest{ListingID: l.ID, BidderID: "banned", Amount: dec("60")}, core.ErrUserInactive},
		{"fractional cents", BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("60.001")}, core.ErrInvalidAmount},
		{"negative", BidRequest{ListingID: l.ID, BidderID: "y", Amount: dec("-60")}, core.ErrInvalidAmount},
		{"fixed price", BidRequest{ListingID: fixed.ID, BidderID: "y", Amount: dec("60")}, core.ErrListingNotAuction},
		{"unknown listing", BidRequest{ListingID: "missing", BidderID: "y", Amount: dec("60")}, core.ErrListingNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.PlaceBid(ctx, tt.req)
			check.True(t, errors.Is(err, tt.want))
		})
	}

	// rejected bids never touch the ledger
	bids, err := h.engine.GetBids(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, len(bids))
}

func TestPlaceBid_AfterEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50")

	h.clock.Advance(24 * time.Hour)
	_, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	check.True(t, errors.Is(err, core.ErrAuctionEnded))

	_, err = h.engine.CloseExpiredAuctions(ctx)
	assert.NoError(t, err)
	_, err = h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("55")})
	check.True(t, errors.Is(err, core.ErrAuctionEnded))
}

func TestPlaceBid_Extension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "50", func(l *core.Listing) {
		l.AuctionEnd = start.Add(10 * time.Minute)
		l.Extension = core.ExtensionPolicy{Enabled: true, Window: 5 * time.Minute}
	})

	_, err := h.engine.RegisterAutoBid(ctx, l.ID, "y", dec("100"))
	assert.NoError(t, err)

	h.clock.Advance(8 * time.Minute)
	now := h.clock.Now()

	res, err := h.engine.PlaceBid(ctx, BidRequest{ListingID: l.ID, BidderID: "x", Amount: dec("60")})
	assert.NoError(t, err)
	check.True(t, res.Extended)
	check.True(t, res.Bid.TriggeredExtension)
	check.True(t, res.AuctionEnd.Equal(now.Add(5*time.Minute)))

	// the proxy response does not extend again
	check.NotNil(t, res.ProxyBid)
	check.False(t, res.ProxyBid.TriggeredExtension)

	state, err := h.engine.GetAuctionState(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, state.ExtensionCount)
	check.True(t, state.AuctionEnd.Equal(now.Add(5*time.Minute)))
	check.True(t, slices.Contains(h.events.types(), core.EventAuctionExtended))
}

func TestPlaceBid_Concurrent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.auction(t, "10")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(bidder string, amount int) {
				defer wg.Done()
				_, _ = h.engine.PlaceBid(ctx, BidRequest{
					ListingID: l.ID,
					BidderID:  bidder,
					Amount:    dec(fmt.Sprintf("%d", amount)),
				})
			}(fmt.Sprintf("bidder-%d", i), 10+i*5+j)
		}
	}
	wg.Wait()

	bids, err := h.engine.GetBids(ctx, l.ID)
	assert.NoError(t, err)
	check.True(t, len(bids) > 0)
	check.True(t, core.LedgerIncreasing(bids))

	price, err := h.engine.GetCurrentPrice(ctx, l.ID)
	assert.NoError(t, err)
	check.True(t, price.Equal(bids[len(bids)-1].Amount))
}
