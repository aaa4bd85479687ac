package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudx-io/openmarket/core"
)

// pgTx writes through to the transaction and keeps a copy of the listing's
// rows so reads inside the critical section see earlier writes.
type pgTx struct {
	ctx context.Context
	tx  *sql.Tx

	listing  *core.Listing
	bids     []core.Bid
	autobids []core.AutoBidInstruction
	offers   []core.Offer
	order    *core.Order
}

func (t *pgTx) load() error {
	id := t.listing.ID

	rows, err := t.tx.QueryContext(t.ctx, selectBids+" WHERE listing_id = $1 ORDER BY seq", id)
	if err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan bid: %w", err)
		}
		t.bids = append(t.bids, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load bids: %w", err)
	}

	rows, err = t.tx.QueryContext(t.ctx, selectAutoBids+" WHERE listing_id = $1 ORDER BY registered_at, id", id)
	if err != nil {
		return fmt.Errorf("failed to load auto-bids: %w", err)
	}
	for rows.Next() {
		a, err := scanAutoBid(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan auto-bid: %w", err)
		}
		t.autobids = append(t.autobids, *a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load auto-bids: %w", err)
	}

	rows, err = t.tx.QueryContext(t.ctx, selectOffers+" WHERE listing_id = $1 ORDER BY created_at, id", id)
	if err != nil {
		return fmt.Errorf("failed to load offers: %w", err)
	}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan offer: %w", err)
		}
		t.offers = append(t.offers, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load offers: %w", err)
	}

	o, err := scanOrder(t.tx.QueryRowContext(t.ctx, selectOrders+" WHERE listing_id = $1", id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to load order: %w", err)
	default:
		t.order = o
	}
	return nil
}

func (t *pgTx) Listing() *core.Listing {
	l := *t.listing
	return &l
}

func (t *pgTx) SaveListing(l *core.Listing) error {
	if l.ID != t.listing.ID {
		return fmt.Errorf("listing %s saved inside transaction for %s", l.ID, t.listing.ID)
	}
	if _, err := t.tx.ExecContext(t.ctx, updateListing, listingArgs(l)...); err != nil {
		return classify(err, "failed to update listing")
	}
	c := *l
	t.listing = &c
	return nil
}

func (t *pgTx) Bids() []core.Bid {
	return append([]core.Bid(nil), t.bids...)
}

func (t *pgTx) AppendBid(b *core.Bid) error {
	_, err := t.tx.ExecContext(t.ctx, insertBid,
		b.ID, b.ListingID, b.BidderID, b.Amount, b.ProxyCeiling,
		b.Generated, b.TriggeredExtension, b.Seq, b.CreatedAt)
	if err != nil {
		return classify(err, "failed to insert bid")
	}
	t.bids = append(t.bids, *b)
	return nil
}

func (t *pgTx) AutoBids() []core.AutoBidInstruction {
	return append([]core.AutoBidInstruction(nil), t.autobids...)
}

func (t *pgTx) SaveAutoBid(a *core.AutoBidInstruction) error {
	_, err := t.tx.ExecContext(t.ctx, upsertAutoBid,
		a.ID, a.ListingID, a.BidderID, a.MaxAmount, a.Active,
		a.RegisteredAt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return classify(err, "failed to save auto-bid")
	}
	for i := range t.autobids {
		if t.autobids[i].ID == a.ID {
			t.autobids[i] = *a
			return nil
		}
	}
	t.autobids = append(t.autobids, *a)
	return nil
}

func (t *pgTx) Offers() []core.Offer {
	return append([]core.Offer(nil), t.offers...)
}

func (t *pgTx) Offer(id string) (*core.Offer, error) {
	for _, o := range t.offers {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrOfferNotFound, id)
}

func (t *pgTx) SaveOffer(o *core.Offer) error {
	_, err := t.tx.ExecContext(t.ctx, upsertOffer,
		o.ID, o.ListingID, o.BuyerID, o.Amount, o.Message, o.Status,
		o.CounterAmount, o.CounterMessage, o.ExpiresAt, o.CreatedAt,
		nullTime(o.RespondedAt), nullTime(o.CounteredAt))
	if err != nil {
		return classify(err, "failed to save offer")
	}
	for i := range t.offers {
		if t.offers[i].ID == o.ID {
			t.offers[i] = *o
			return nil
		}
	}
	t.offers = append(t.offers, *o)
	return nil
}

func (t *pgTx) OrderForListing() (*core.Order, error) {
	if t.order == nil {
		return nil, nil
	}
	o := *t.order
	return &o, nil
}

func (t *pgTx) InsertOrder(o *core.Order) error {
	if _, err := t.tx.ExecContext(t.ctx, insertOrder, orderArgs(o)...); err != nil {
		return classify(err, "failed to insert order")
	}
	c := *o
	t.order = &c
	return nil
}

func (t *pgTx) UpdateOrder(o *core.Order) error {
	res, err := t.tx.ExecContext(t.ctx, updateOrder, updateOrderArgs(o)...)
	if err != nil {
		return classify(err, "failed to update order")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, o.ID)
	}
	c := *o
	t.order = &c
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
