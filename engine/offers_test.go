package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openmarket/core"
)

func TestOffers_AcceptClosesOthers(t *testing.T) {
	h := newHarness(t, WithFees(core.FeeSchedule{Percent: dec("10"), Flat: dec("0.50")}))
	ctx := context.Background()
	l := h.fixed(t, "80")

	a, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("60")})
	assert.NoError(t, err)
	b, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "b", Amount: dec("65")})
	assert.NoError(t, err)

	out, err := h.engine.RespondToOffer(ctx, a.ID, "seller", OfferResponse{Action: ActionAccept})
	assert.NoError(t, err)
	check.Equal(t, core.OfferAccepted, out.Offer.Status)
	assert.NotNil(t, out.Order)
	check.Equal(t, "60.00", out.Order.ItemPrice.StringFixed(2))
	check.Equal(t, "65.00", out.Order.Total.StringFixed(2))
	check.Equal(t, "6.50", out.Order.PlatformFee.StringFixed(2))
	check.Equal(t, "53.50", out.Order.SellerPayout.StringFixed(2))
	check.Equal(t, core.SourceOffer, out.Order.Source)
	check.Equal(t, a.ID, out.Order.SourceID)

	for _, resp := range []OfferResponse{
		{Action: ActionAccept},
		{Action: ActionDecline},
		{Action: ActionCounter, Amount: dec("70")},
	} {
		_, err := h.engine.RespondToOffer(ctx, b.ID, "seller", resp)
		check.True(t, errors.Is(err, core.ErrListingNotActive))
	}

	// accepting again cannot produce a second order
	_, err = h.engine.RespondToOffer(ctx, a.ID, "seller", OfferResponse{Action: ActionAccept})
	check.True(t, errors.Is(err, core.ErrListingNotActive))

	order, err := h.engine.GetOrder(ctx, out.Order.ID)
	assert.NoError(t, err)
	check.Equal(t, "a", order.BuyerID)
}

func TestOffers_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fixed(t, "80")

	tests := []struct {
		name string
		req  OfferRequest
		want error
	}{
		{"below half", OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("39.99")}, core.ErrOfferBelowMinimum},
		{"zero", OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("0")}, core.ErrInvalidAmount},
		{"self offer", OfferRequest{ListingID: l.ID, BuyerID: "seller", Amount: dec("60")}, core.ErrSelfOffer},
		{"inactive buyer", OfferRequest{ListingID: l.ID, BuyerID: "banned", Amount: dec("60")}, core.ErrUserInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateOffer(ctx, tt.req)
			check.True(t, errors.Is(err, tt.want))
		})
	}

	offer, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("40")})
	assert.NoError(t, err)
	check.True(t, offer.ExpiresAt.Equal(start.Add(48*time.Hour)))

	_, err = h.engine.RespondToOffer(ctx, offer.ID, "a", OfferResponse{Action: ActionAccept})
	check.True(t, errors.Is(err, core.ErrNotOwner))

	_, err = h.engine.RespondToOffer(ctx, "missing", "seller", OfferResponse{Action: ActionAccept})
	check.True(t, errors.Is(err, core.ErrOfferNotFound))

	noOffers := h.auction(t, "50", func(l *core.Listing) { l.AllowOffers = false })
	_, err = h.engine.CreateOffer(ctx, OfferRequest{ListingID: noOffers.ID, BuyerID: "a", Amount: dec("60")})
	check.True(t, errors.Is(err, core.ErrOffersNotAllowed))
}

func TestOffers_CounterFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fixed(t, "80")

	offer, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("50"), Message: "cash today"})
	assert.NoError(t, err)

	_, err = h.engine.RespondToOffer(ctx, offer.ID, "seller", OfferResponse{Action: ActionCounter, Amount: dec("45")})
	check.True(t, errors.Is(err, core.ErrInvalidAmount))

	h.clock.Advance(time.Hour)
	out, err := h.engine.RespondToOffer(ctx, offer.ID, "seller", OfferResponse{Action: ActionCounter, Amount: dec("70"), Message: "best I can do"})
	assert.NoError(t, err)
	check.Equal(t, core.OfferCountered, out.Offer.Status)
	check.True(t, out.Offer.ExpiresAt.Equal(h.clock.Now().Add(48*time.Hour)))

	// only the buyer answers a counter
	_, err = h.engine.RespondToCounter(ctx, offer.ID, "seller", true)
	check.True(t, errors.Is(err, core.ErrNotOwner))

	// the seller cannot respond again
	_, err = h.engine.RespondToOffer(ctx, offer.ID, "seller", OfferResponse{Action: ActionDecline})
	check.True(t, errors.Is(err, core.ErrInvalidTransition))

	out, err = h.engine.RespondToCounter(ctx, offer.ID, "a", true)
	assert.NoError(t, err)
	check.Equal(t, core.OfferAccepted, out.Offer.Status)
	check.Equal(t, "70.00", out.Order.ItemPrice.StringFixed(2))

	l, err = h.engine.GetListing(ctx, l.ID)
	assert.NoError(t, err)
	check.Equal(t, core.ListingSold, l.Status)
}

func TestOffers_Expiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	l := h.fixed(t, "80")

	pending, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "a", Amount: dec("50")})
	assert.NoError(t, err)
	countered, err := h.engine.CreateOffer(ctx, OfferRequest{ListingID: l.ID, BuyerID: "b", Amount: dec("50")})
	assert.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	_, err = h.engine.RespondToOffer(ctx, countered.ID, "seller", OfferResponse{Action: ActionCounter, Amount: dec("60")})
	assert.NoError(t, err)

	h.clock.Advance(24 * time.Hour)

	// expired on read before any sweep, with no state change
	got, err := h.engine.GetOffer(ctx, pending.ID)
	assert.NoError(t, err)
	check.Equal(t, core.OfferExpired, got.Status)

	_, err = h.engine.RespondToOffer(ctx, pending.ID, "seller", OfferResponse{Action: ActionAccept})
	check.True(t, errors.Is(err, core.ErrOfferExpired))

	n, err := h.engine.ExpireOffers(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, n)

	got, err = h.engine.GetOffer(ctx, countered.ID)
	assert.NoError(t, err)
	check.Equal(t, core.OfferCountered, got.Status)

	h.clock.Advance(24 * time.Hour)
	n, err = h.engine.ExpireOffers(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, n)

	n, err = h.engine.ExpireOffers(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, n)

	_, err = h.engine.RespondToCounter(ctx, countered.ID, "b", true)
	check.True(t, errors.Is(err, core.ErrOfferExpired))
}
