package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/lock"
	"github.com/cloudx-io/openmarket/store"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAccounts lists inactive users; everyone else is active.
type fakeAccounts map[string]bool

func (a fakeAccounts) IsActive(_ context.Context, userID string) (bool, error) {
	inactive, ok := a[userID]
	return !ok || !inactive, nil
}

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []core.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var types []core.EventType
	for _, ev := range r.events {
		types = append(types, ev.Type)
	}
	return types
}

type harness struct {
	engine *Engine
	store  *store.Memory
	clock  *fakeClock
	events *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:  store.NewMemory(lock.NewLocal(time.Second)),
		clock:  &fakeClock{now: start},
		events: &recorder{},
	}
	base := []Option{
		WithClock(h.clock),
		WithPublisher(h.events),
		WithAccounts(fakeAccounts{"banned": true}),
		WithRetryBackoff(time.Millisecond),
	}
	h.engine = New(h.store, append(base, opts...)...)
	return h
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// auction creates and publishes an auction starting at price.
func (h *harness) auction(t *testing.T, price string, mutate ...func(*core.Listing)) *core.Listing {
	t.Helper()
	l := &core.Listing{
		SellerID:    "seller",
		Title:       "Vintage camera",
		PricingMode: core.PricingAuction,
		Price:       dec(price),
		Increment:   dec("1"),
		AllowOffers: true,
		AuctionEnd:  start.Add(24 * time.Hour),
	}
	for _, fn := range mutate {
		fn(l)
	}
	return h.publish(t, l)
}

// fixed creates and publishes a fixed price listing accepting offers.
func (h *harness) fixed(t *testing.T, price string) *core.Listing {
	t.Helper()
	return h.publish(t, &core.Listing{
		SellerID:      "seller",
		Title:         "Desk lamp",
		PricingMode:   core.PricingFixed,
		Price:         dec(price),
		ShippingPrice: dec("5"),
		AllowOffers:   true,
	})
}

func (h *harness) publish(t *testing.T, l *core.Listing) *core.Listing {
	t.Helper()
	ctx := context.Background()
	created, err := h.engine.CreateListing(ctx, l)
	assert.NoError(t, err)
	published, err := h.engine.PublishListing(ctx, created.ID, created.SellerID)
	assert.NoError(t, err)
	return published
}
