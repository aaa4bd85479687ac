package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/lock"
)

type state struct {
	listing  core.Listing
	bids     []core.Bid
	autobids []core.AutoBidInstruction
	offers   []core.Offer
	order    *core.Order
}

func (s *state) clone() *state {
	c := &state{
		listing:  s.listing,
		bids:     append([]core.Bid(nil), s.bids...),
		autobids: append([]core.AutoBidInstruction(nil), s.autobids...),
		offers:   append([]core.Offer(nil), s.offers...),
	}
	if s.order != nil {
		o := *s.order
		o.Receipt = append([]byte(nil), s.order.Receipt...)
		c.order = &o
	}
	return c
}

// Memory is an in-process Store. Each listing's state is replaced wholesale
// on commit, so readers never observe a partial transition.
type Memory struct {
	locker lock.Locker

	mu       sync.RWMutex
	listings map[string]*state
	offers   map[string]string
	orders   map[string]string
}

// NewMemory returns an empty Memory store serialized by locker.
func NewMemory(locker lock.Locker) *Memory {
	if locker == nil {
		locker = lock.NewLocal(0)
	}
	return &Memory{
		locker:   locker,
		listings: make(map[string]*state),
		offers:   make(map[string]string),
		orders:   make(map[string]string),
	}
}

func (m *Memory) CreateListing(_ context.Context, l *core.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; ok {
		return fmt.Errorf("listing %s already exists", l.ID)
	}
	m.listings[l.ID] = &state{listing: *l}
	return nil
}

func (m *Memory) get(id string) (*state, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.listings[id]
	return s, ok
}

func (m *Memory) Atomic(ctx context.Context, listingID string, fn func(Tx) error) error {
	if _, ok := m.get(listingID); !ok {
		return fmt.Errorf("%w: %s", core.ErrListingNotFound, listingID)
	}

	release, err := m.locker.Acquire(ctx, listingID)
	if errors.Is(err, lock.ErrTimeout) {
		return fmt.Errorf("%w: listing %s", core.ErrContention, listingID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock listing %s: %w", listingID, err)
	}
	defer release()

	current, ok := m.get(listingID)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrListingNotFound, listingID)
	}

	tx := &memTx{s: current.clone()}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[listingID] = tx.s
	for _, o := range tx.s.offers {
		m.offers[o.ID] = listingID
	}
	if tx.s.order != nil {
		m.orders[tx.s.order.ID] = listingID
	}
	return nil
}

func (m *Memory) OfferListing(_ context.Context, offerID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.offers[offerID]
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrOfferNotFound, offerID)
	}
	return id, nil
}

func (m *Memory) OrderListing(_ context.Context, orderID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrOrderNotFound, orderID)
	}
	return id, nil
}

func (m *Memory) DueAuctions(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.listings {
		l := s.listing
		if l.IsAuction() && l.IsActive() && !l.AuctionEnd.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) DueOffers(_ context.Context, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, s := range m.listings {
		for _, o := range s.offers {
			if o.IsOpen() && !o.ExpiresAt.After(now) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memTx struct {
	s *state
}

func (tx *memTx) Listing() *core.Listing {
	l := tx.s.listing
	return &l
}

func (tx *memTx) SaveListing(l *core.Listing) error {
	if l.ID != tx.s.listing.ID {
		return fmt.Errorf("listing %s saved inside transaction for %s", l.ID, tx.s.listing.ID)
	}
	tx.s.listing = *l
	return nil
}

func (tx *memTx) Bids() []core.Bid {
	return append([]core.Bid(nil), tx.s.bids...)
}

func (tx *memTx) AppendBid(b *core.Bid) error {
	if n := len(tx.s.bids); n > 0 && b.Seq <= tx.s.bids[n-1].Seq {
		return fmt.Errorf("bid %s out of sequence: %d after %d", b.ID, b.Seq, tx.s.bids[n-1].Seq)
	}
	tx.s.bids = append(tx.s.bids, *b)
	return nil
}

func (tx *memTx) AutoBids() []core.AutoBidInstruction {
	return append([]core.AutoBidInstruction(nil), tx.s.autobids...)
}

func (tx *memTx) SaveAutoBid(a *core.AutoBidInstruction) error {
	for i := range tx.s.autobids {
		if tx.s.autobids[i].ID == a.ID {
			tx.s.autobids[i] = *a
			return nil
		}
	}
	tx.s.autobids = append(tx.s.autobids, *a)
	return nil
}

func (tx *memTx) Offers() []core.Offer {
	return append([]core.Offer(nil), tx.s.offers...)
}

func (tx *memTx) Offer(id string) (*core.Offer, error) {
	for _, o := range tx.s.offers {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", core.ErrOfferNotFound, id)
}

func (tx *memTx) SaveOffer(o *core.Offer) error {
	for i := range tx.s.offers {
		if tx.s.offers[i].ID == o.ID {
			tx.s.offers[i] = *o
			return nil
		}
	}
	tx.s.offers = append(tx.s.offers, *o)
	return nil
}

func (tx *memTx) OrderForListing() (*core.Order, error) {
	if tx.s.order == nil {
		return nil, nil
	}
	o := *tx.s.order
	return &o, nil
}

func (tx *memTx) InsertOrder(o *core.Order) error {
	if tx.s.order != nil {
		return fmt.Errorf("%w: listing %s has order %s", core.ErrAlreadySold, o.ListingID, tx.s.order.ID)
	}
	c := *o
	tx.s.order = &c
	return nil
}

func (tx *memTx) UpdateOrder(o *core.Order) error {
	if tx.s.order == nil || tx.s.order.ID != o.ID {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, o.ID)
	}
	c := *o
	tx.s.order = &c
	return nil
}
