package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

// CloseReport lists what one CloseExpiredAuctions pass did.
type CloseReport struct {
	Sold    []string `json:"sold"`
	Expired []string `json:"expired"`
	// Skipped counts due listings another caller had already closed.
	Skipped int `json:"skipped"`
}

// CloseExpiredAuctions closes every active auction whose end has passed.
// Each listing is re-checked inside its critical section, so running the
// sweep again, or concurrently, closes nothing twice. Failures on one
// listing do not stop the others and are returned joined.
func (e *Engine) CloseExpiredAuctions(ctx context.Context) (*CloseReport, error) {
	now := e.clock.Now()
	ids, err := e.store.DueAuctions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due auctions: %w", err)
	}

	report := &CloseReport{}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := e.closeAuction(ctx, id, report); err != nil {
			e.logger.Error().Err(err).Str("listing_id", id).Msg("failed to close auction")
			errs = append(errs, fmt.Errorf("listing %s: %w", id, err))
		}
	}

	if len(report.Sold)+len(report.Expired) > 0 {
		e.logger.Info().
			Int("sold", len(report.Sold)).
			Int("expired", len(report.Expired)).
			Int("skipped", report.Skipped).
			Msg("closed expired auctions")
	}
	return report, errors.Join(errs...)
}

func (e *Engine) closeAuction(ctx context.Context, listingID string, report *CloseReport) error {
	return e.atomic(ctx, "close_auction", listingID, func(tx store.Tx, b *batch) error {
		now := e.clock.Now()
		l := tx.Listing()
		if !l.IsAuction() || !l.IsActive() || !l.AuctionEnded(now) {
			b.after(func() { report.Skipped++ })
			return nil
		}

		winner, outcome := core.CloseOutcome(l, tx.Bids())
		if outcome == core.ListingSold {
			order, err := e.materializeOrder(tx, l, b, core.SourceAuction, winner.ID, winner.BidderID, winner.Amount, now)
			if err != nil {
				return err
			}
			b.emit(core.EventAuctionSold, l.ID, winner.BidderID, order.ID, winner.Amount, now)
			b.after(func() {
				report.Sold = append(report.Sold, l.ID)
				e.metrics.AuctionsClosed.With("outcome", "sold").Add(1)
			})
		} else {
			if err := l.Transition(core.ListingExpired, now); err != nil {
				return err
			}
			if err := tx.SaveListing(l); err != nil {
				return err
			}
			b.emit(core.EventAuctionExpired, l.ID, "", "", decimal.Zero, now)
			b.after(func() {
				report.Expired = append(report.Expired, l.ID)
				e.metrics.AuctionsClosed.With("outcome", "expired").Add(1)
			})
		}
		return deactivateInstructions(tx, now)
	})
}

// ExpireOffers marks every open offer past its expiry as expired and
// returns how many changed.
func (e *Engine) ExpireOffers(ctx context.Context) (int, error) {
	now := e.clock.Now()
	ids, err := e.store.DueOffers(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due offers: %w", err)
	}

	expired := 0
	var errs []error
	for _, id := range ids {
		err := e.atomic(ctx, "expire_offers", id, func(tx store.Tx, b *batch) error {
			now := e.clock.Now()
			n := 0
			for _, o := range tx.Offers() {
				if !o.Expire(now) {
					continue
				}
				if err := tx.SaveOffer(&o); err != nil {
					return err
				}
				n++
				b.emit(core.EventOfferExpired, o.ListingID, "", o.ID, o.Amount, now)
			}
			b.after(func() {
				expired += n
				e.metrics.Offers.With("action", "expire").Add(float64(n))
			})
			return nil
		})
		if err != nil {
			e.logger.Error().Err(err).Str("listing_id", id).Msg("failed to expire offers")
			errs = append(errs, fmt.Errorf("listing %s: %w", id, err))
		}
	}
	return expired, errors.Join(errs...)
}
