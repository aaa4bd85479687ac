// Package engine runs every listing state transition: bids, proxy bidding,
// auction close, offer negotiation and order creation. Each transition runs
// inside the listing's critical section provided by the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
	"github.com/cloudx-io/openmarket/store"
)

// Accounts reports whether a user may trade.
type Accounts interface {
	IsActive(ctx context.Context, userID string) (bool, error)
}

// Publisher receives committed events.
type Publisher interface {
	Publish(ctx context.Context, event core.Event) error
}

// Sealer signs a settlement receipt for a new order.
type Sealer interface {
	Seal(order core.Order, ledger []core.Bid) ([]byte, error)
}

// Engine is safe for concurrent use.
type Engine struct {
	store     store.Store
	clock     core.Clock
	accounts  Accounts
	publisher Publisher
	sealer    Sealer
	fees      core.FeeSchedule
	logger    zerolog.Logger
	metrics   *Metrics

	offerWindow     time.Duration
	increment       decimal.Decimal
	minOfferPercent decimal.Decimal
	retryBackoff    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for every time-dependent decision.
func WithClock(c core.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAccounts enables the active-user check for bidders and buyers.
func WithAccounts(a Accounts) Option {
	return func(e *Engine) { e.accounts = a }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithSealer attaches a signed receipt to every new order.
func WithSealer(s Sealer) Option {
	return func(e *Engine) { e.sealer = s }
}

func WithFees(f core.FeeSchedule) Option {
	return func(e *Engine) { e.fees = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOfferWindow sets how long offers and counters stay open.
func WithOfferWindow(d time.Duration) Option {
	return func(e *Engine) { e.offerWindow = d }
}

// WithDefaultIncrement sets the bid step for listings without their own.
func WithDefaultIncrement(d decimal.Decimal) Option {
	return func(e *Engine) { e.increment = d }
}

// WithMinOfferPercent sets the minimum offer for listings without their own.
func WithMinOfferPercent(d decimal.Decimal) Option {
	return func(e *Engine) { e.minOfferPercent = d }
}

// WithRetryBackoff sets the pause before retrying a contended listing.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// New returns an Engine over s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           s,
		clock:           core.SystemClock,
		logger:          zerolog.Nop(),
		metrics:         NopMetrics(),
		offerWindow:     core.DefaultOfferWindow,
		increment:       core.DefaultIncrement,
		minOfferPercent: decimal.NewFromInt(50),
		retryBackoff:    25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// batch collects what a transition did so it is reported only on commit.
type batch struct {
	events []core.Event
	hooks  []func()
}

func (b *batch) emit(typ core.EventType, listingID, actorID, refID string, amount decimal.Decimal, now time.Time) {
	b.events = append(b.events, core.Event{
		ID:         uuid.NewString(),
		Type:       typ,
		ListingID:  listingID,
		ActorID:    actorID,
		RefID:      refID,
		Amount:     amount,
		OccurredAt: now,
	})
}

// after registers fn to run once the transition commits.
func (b *batch) after(fn func()) {
	b.hooks = append(b.hooks, fn)
}

// atomic runs fn in the listing's critical section. A contended listing is
// retried once before the error surfaces.
func (e *Engine) atomic(ctx context.Context, op, listingID string, fn func(store.Tx, *batch) error) error {
	var b *batch
	run := func(tx store.Tx) error {
		b = &batch{}
		start := time.Now()
		defer func() {
			e.metrics.CriticalSection.With("op", op).Observe(time.Since(start).Seconds())
		}()
		return fn(tx, b)
	}

	err := e.store.Atomic(ctx, listingID, run)
	if errors.Is(err, core.ErrContention) {
		e.metrics.LockContention.With("op", op).Add(1)
		e.logger.Debug().Str("op", op).Str("listing_id", listingID).Msg("listing contended, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.retryBackoff):
		}

		err = e.store.Atomic(ctx, listingID, run)
		if errors.Is(err, core.ErrContention) {
			e.metrics.LockContention.With("op", op).Add(1)
		}
	}
	if err != nil {
		return err
	}

	for _, hook := range b.hooks {
		hook()
	}
	e.publish(ctx, b.events)
	return nil
}

// publish is best-effort: a committed transition is never undone because
// an event could not be delivered.
func (e *Engine) publish(ctx context.Context, events []core.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			e.logger.Warn().Err(err).
				Str("event", string(ev.Type)).
				Str("listing_id", ev.ListingID).
				Msg("failed to publish event")
		}
	}
}

func (e *Engine) requireActiveUser(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrNotOwner
	}
	if e.accounts == nil {
		return nil
	}
	active, err := e.accounts.IsActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check account %s: %w", userID, err)
	}
	if !active {
		return core.ErrUserInactive
	}
	return nil
}
