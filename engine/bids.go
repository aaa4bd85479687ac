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

// BidRequest is a manual bid. A non-nil ProxyCeiling also registers the
// bidder's auto-bid instruction up to that amount.
type BidRequest struct {
	ListingID    string
	BidderID     string
	Amount       decimal.Decimal
	ProxyCeiling *decimal.Decimal
}

// BidResult is the ledger state after a bid commits.
type BidResult struct {
	Bid *core.Bid
	// ProxyBid is the bid proxy resolution placed in response, if any.
	ProxyBid     *core.Bid
	CurrentPrice decimal.Decimal
	LeaderID     string
	AuctionEnd   time.Time
	Extended     bool
}

// PlaceBid appends a manual bid to the listing's ledger, applies the
// extension rule and resolves standing auto-bid instructions.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (*BidResult, error) {
	res, err := e.placeBid(ctx, req)
	if err != nil {
		e.metrics.BidsRejected.With("reason", core.CodeOf(err)).Add(1)
		return nil, err
	}
	return res, nil
}

func (e *Engine) placeBid(ctx context.Context, req BidRequest) (*BidResult, error) {
	if !core.ValidMoney(req.Amount) {
		return nil, fmt.Errorf("%w: bid %s", core.ErrInvalidAmount, req.Amount)
	}
	if req.ProxyCeiling != nil && (!core.ValidMoney(*req.ProxyCeiling) || req.ProxyCeiling.LessThan(req.Amount)) {
		return nil, fmt.Errorf("%w: proxy ceiling %s is below the bid", core.ErrInvalidAmount, req.ProxyCeiling)
	}
	if err := e.requireActiveUser(ctx, req.BidderID); err != nil {
		return nil, err
	}

	var res *BidResult
	err := e.atomic(ctx, "place_bid", req.ListingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if err := e.checkBiddable(l, req.BidderID, now); err != nil {
			return err
		}

		bids := tx.Bids()
		minimum := core.MinimumNextBid(l, bids, l.EffectiveIncrement(e.increment))
		if !core.MeetsMinimum(req.Amount, minimum) {
			return fmt.Errorf("%w: minimum is %s", core.ErrBidTooLow, minimum.StringFixed(2))
		}
		// a higher ceiling of the bidder's own outbids the tie instead
		if (req.ProxyCeiling == nil || !req.ProxyCeiling.GreaterThan(req.Amount)) && core.MatchesCeiling(tx.AutoBids(), req.BidderID, req.Amount) {
			return fmt.Errorf("%w: matched by an earlier maximum bid", core.ErrBidTooLow)
		}

		bid := &core.Bid{
			ID:        uuid.NewString(),
			ListingID: l.ID,
			BidderID:  req.BidderID,
			Amount:    req.Amount,
			Seq:       core.NextSeq(bids),
			CreatedAt: now,
		}
		if req.ProxyCeiling != nil {
			bid.ProxyCeiling = decimal.NewNullDecimal(*req.ProxyCeiling)
		}

		extended := l.ApplyExtension(now)
		if extended {
			bid.TriggeredExtension = true
			b.emit(core.EventAuctionExtended, l.ID, req.BidderID, bid.ID, decimal.Zero, now)
			b.after(func() { e.metrics.AuctionExtensions.Add(1) })
		}
		if err := tx.AppendBid(bid); err != nil {
			return err
		}
		b.emit(core.EventBidPlaced, l.ID, req.BidderID, bid.ID, bid.Amount, now)
		b.after(func() { e.metrics.BidsAccepted.With("source", "manual").Add(1) })

		if req.ProxyCeiling != nil {
			if _, err := e.replaceInstruction(tx, l.ID, req.BidderID, *req.ProxyCeiling, now); err != nil {
				return err
			}
		}

		proxy, err := e.resolve(tx, l, b, now)
		if err != nil {
			return err
		}
		if err := tx.SaveListing(l); err != nil {
			return err
		}

		leader := core.LeadingBid(tx.Bids())
		res = &BidResult{
			Bid:          bid,
			ProxyBid:     proxy,
			CurrentPrice: leader.Amount,
			LeaderID:     leader.BidderID,
			AuctionEnd:   l.AuctionEnd,
			Extended:     extended,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("listing_id", req.ListingID).
		Str("bidder_id", req.BidderID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("current_price", res.CurrentPrice.StringFixed(2)).
		Bool("extended", res.Extended).
		Msg("bid accepted")
	return res, nil
}

// checkBiddable rejects bids and instructions on listings that cannot take
// them at now.
func (e *Engine) checkBiddable(l *core.Listing, bidderID string, now time.Time) error {
	if !l.IsAuction() {
		return fmt.Errorf("%w: %s", core.ErrListingNotAuction, l.ID)
	}
	switch l.Status {
	case core.ListingActive:
	case core.ListingSold, core.ListingExpired:
		return fmt.Errorf("%w: %s closed", core.ErrAuctionEnded, l.ID)
	default:
		return fmt.Errorf("%w: %s is %s", core.ErrListingNotActive, l.ID, l.Status)
	}
	if l.AuctionEnded(now) {
		return fmt.Errorf("%w: %s ended at %s", core.ErrAuctionEnded, l.ID, l.AuctionEnd.Format(time.RFC3339))
	}
	if bidderID == l.SellerID {
		return core.ErrSelfBid
	}
	return nil
}

// replaceInstruction supersedes the bidder's active instruction, if any,
// with a new one at max.
func (e *Engine) replaceInstruction(tx store.Tx, listingID, bidderID string, max decimal.Decimal, now time.Time) (*core.AutoBidInstruction, error) {
	for _, in := range tx.AutoBids() {
		if in.Active && in.BidderID == bidderID {
			in.Active = false
			in.UpdatedAt = now
			if err := tx.SaveAutoBid(&in); err != nil {
				return nil, err
			}
		}
	}

	in := &core.AutoBidInstruction{
		ID:           uuid.NewString(),
		ListingID:    listingID,
		BidderID:     bidderID,
		MaxAmount:    max,
		Active:       true,
		RegisteredAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.SaveAutoBid(in); err != nil {
		return nil, err
	}
	return in, nil
}

// resolve places the single proxy bid standing instructions call for and
// deactivates the instructions that can no longer win. Proxy bids never
// extend the auction.
func (e *Engine) resolve(tx store.Tx, l *core.Listing, b *batch, now time.Time) (*core.Bid, error) {
	bids := tx.Bids()
	instructions := tx.AutoBids()

	var placed *core.Bid
	if p := core.ResolveProxy(l, bids, instructions, l.EffectiveIncrement(e.increment)); p != nil {
		placed = &core.Bid{
			ID:           uuid.NewString(),
			ListingID:    l.ID,
			BidderID:     p.BidderID,
			Amount:       p.Amount,
			ProxyCeiling: decimal.NewNullDecimal(p.Ceiling),
			Generated:    true,
			Seq:          core.NextSeq(bids),
			CreatedAt:    now,
		}
		if err := tx.AppendBid(placed); err != nil {
			return nil, err
		}
		bids = append(bids, *placed)
		b.emit(core.EventBidProxy, l.ID, p.BidderID, placed.ID, placed.Amount, now)
		b.after(func() { e.metrics.BidsAccepted.With("source", "proxy").Add(1) })
	}

	leader := core.LeadingBid(bids)
	if leader == nil {
		return placed, nil
	}
	exhausted := core.ExhaustedInstructions(instructions, leader.BidderID, leader.Amount)
	for _, id := range exhausted {
		for _, in := range instructions {
			if in.ID != id {
				continue
			}
			in.Active = false
			in.UpdatedAt = now
			if err := tx.SaveAutoBid(&in); err != nil {
				return nil, err
			}
		}
	}
	return placed, nil
}

// RegisterAutoBid sets the bidder's ceiling on an auction and resolves
// proxy bidding immediately. A bidder who already leads may only raise the
// ceiling above the current price; anyone else must reach the minimum next
// bid.
func (e *Engine) RegisterAutoBid(ctx context.Context, listingID, bidderID string, max decimal.Decimal) (*core.AutoBidInstruction, error) {
	if !core.ValidMoney(max) {
		return nil, fmt.Errorf("%w: ceiling %s", core.ErrInvalidAmount, max)
	}
	if err := e.requireActiveUser(ctx, bidderID); err != nil {
		return nil, err
	}

	var result *core.AutoBidInstruction
	err := e.atomic(ctx, "register_autobid", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if err := e.checkBiddable(l, bidderID, now); err != nil {
			return err
		}

		bids := tx.Bids()
		leader := core.LeadingBid(bids)
		if leader != nil && leader.BidderID == bidderID {
			if !max.GreaterThan(leader.Amount) {
				return fmt.Errorf("%w: ceiling must exceed the current price of %s", core.ErrBidTooLow, leader.Amount.StringFixed(2))
			}
		} else {
			minimum := core.MinimumNextBid(l, bids, l.EffectiveIncrement(e.increment))
			if !core.MeetsMinimum(max, minimum) {
				return fmt.Errorf("%w: ceiling must reach %s", core.ErrBidTooLow, minimum.StringFixed(2))
			}
		}

		in, err := e.replaceInstruction(tx, l.ID, bidderID, max, now)
		if err != nil {
			return err
		}
		if _, err := e.resolve(tx, l, b, now); err != nil {
			return err
		}

		for _, current := range tx.AutoBids() {
			if current.ID == in.ID {
				result = &current
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("listing_id", listingID).
		Str("bidder_id", bidderID).
		Str("amount", max.StringFixed(2)).
		Bool("active", result.Active).
		Msg("auto-bid registered")
	return result, nil
}

// WithdrawAutoBid deactivates the bidder's instruction. Bids it already
// placed stay in the ledger.
func (e *Engine) WithdrawAutoBid(ctx context.Context, listingID, bidderID string) error {
	return e.atomic(ctx, "withdraw_autobid", listingID, func(tx store.Tx, _ *batch) error {
		now := e.clock.Now()
		for _, in := range tx.AutoBids() {
			if !in.Active || in.BidderID != bidderID {
				continue
			}
			in.Active = false
			in.UpdatedAt = now
			return tx.SaveAutoBid(&in)
		}
		return fmt.Errorf("%w: no active instruction for %s on %s", core.ErrAutoBidNotFound, bidderID, listingID)
	})
}

// ResolveAutoBids runs proxy resolution on an open auction and returns the
// resulting current price and leading bid.
func (e *Engine) ResolveAutoBids(ctx context.Context, listingID string) (decimal.Decimal, *core.Bid, error) {
	var (
		price  decimal.Decimal
		winner *core.Bid
	)
	err := e.atomic(ctx, "resolve_autobids", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if l.IsAuction() && l.IsActive() && !l.AuctionEnded(now) {
			if _, err := e.resolve(tx, l, b, now); err != nil {
				return err
			}
		}
		bids := tx.Bids()
		price = core.CurrentPrice(l, bids)
		winner = core.LeadingBid(bids)
		return nil
	})
	if err != nil {
		return decimal.Zero, nil, err
	}
	return price, winner, nil
}

// GetCurrentPrice returns the leading bid, or the listing price when no
// bids exist.
func (e *Engine) GetCurrentPrice(ctx context.Context, listingID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := e.atomic(ctx, "read", listingID, func(tx store.Tx, _ *batch) error {
		price = core.CurrentPrice(tx.Listing(), tx.Bids())
		return nil
	})
	return price, err
}

// AuctionState summarizes a listing's auction.
type AuctionState struct {
	ListingID      string             `json:"listing_id"`
	Status         core.ListingStatus `json:"status"`
	CurrentPrice   decimal.Decimal    `json:"current_price"`
	MinimumNextBid decimal.Decimal    `json:"minimum_next_bid"`
	LeaderID       string             `json:"leader_id,omitempty"`
	RunnerUpID     string             `json:"runner_up_id,omitempty"`
	BidCount       int                `json:"bid_count"`
	AuctionEnd     time.Time          `json:"auction_end"`
	ExtensionCount int                `json:"extension_count"`
	ReserveMet     bool               `json:"reserve_met"`
	Ended          bool               `json:"ended"`
}

// GetAuctionState reads the auction's standing in one critical section.
func (e *Engine) GetAuctionState(ctx context.Context, listingID string) (*AuctionState, error) {
	var state *AuctionState
	err := e.atomic(ctx, "read", listingID, func(tx store.Tx, _ *batch) error {
		l := tx.Listing()
		if !l.IsAuction() {
			return fmt.Errorf("%w: %s", core.ErrListingNotAuction, l.ID)
		}
		bids := tx.Bids()
		now := e.clock.Now()

		state = &AuctionState{
			ListingID:      l.ID,
			Status:         l.Status,
			CurrentPrice:   core.CurrentPrice(l, bids),
			MinimumNextBid: core.MinimumNextBid(l, bids, l.EffectiveIncrement(e.increment)),
			BidCount:       len(bids),
			AuctionEnd:     l.AuctionEnd,
			ExtensionCount: l.ExtensionCount,
			Ended:          !l.IsActive() || l.AuctionEnded(now),
		}
		standings := core.RankBidders(bids)
		if len(standings) > 0 {
			state.LeaderID = standings[0].BidderID
			state.ReserveMet = core.MeetsReserve(standings[0].Amount, l.ReservePrice)
		}
		if len(standings) > 1 {
			state.RunnerUpID = standings[1].BidderID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// GetBids returns the listing's ledger in commit order.
func (e *Engine) GetBids(ctx context.Context, listingID string) ([]core.Bid, error) {
	var bids []core.Bid
	err := e.atomic(ctx, "read", listingID, func(tx store.Tx, _ *batch) error {
		bids = tx.Bids()
		return nil
	})
	return bids, err
}
