package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

func testEvent() core.Event {
	return core.Event{
		ID:         "event-1",
		Type:       core.EventBidPlaced,
		ListingID:  "listing-1",
		ActorID:    "x",
		RefID:      "bid-1",
		Amount:     decimal.RequireFromString("55"),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubjectAndChannel(t *testing.T) {
	check.Equal(t, "market.bid.placed.listing-1", Subject(testEvent()))
	check.Equal(t, "listing_events:listing-1", Channel("listing-1"))
}

type failing struct {
	calls int
	err   error
}

func (f *failing) Publish(context.Context, core.Event) error {
	f.calls++
	return f.err
}

func TestFanout(t *testing.T) {
	boom := errors.New("boom")
	a := &failing{err: boom}
	b := &failing{}

	err := Fanout{a, b}.Publish(context.Background(), testEvent())
	check.True(t, errors.Is(err, boom))
	check.Equal(t, 1, a.calls)
	check.Equal(t, 1, b.calls)

	check.NoError(t, Fanout{b}.Publish(context.Background(), testEvent()))
}

func TestRedis_PublishSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var logs bytes.Buffer
	ch, err := Subscribe(ctx, client, "listing-1", zerolog.New(&logs))
	assert.NoError(t, err)

	assert.NoError(t, client.Publish(ctx, Channel("listing-1"), "not json").Err())
	assert.NoError(t, NewRedis(client).Publish(ctx, testEvent()))

	select {
	case ev := <-ch:
		check.Equal(t, "event-1", ev.ID)
		check.Equal(t, core.EventBidPlaced, ev.Type)
		check.Equal(t, "55.00", ev.Amount.StringFixed(2))
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
	// the malformed payload was read and reported before the event
	check.True(t, strings.Contains(logs.String(), "dropping malformed event"))
	check.True(t, strings.Contains(logs.String(), "listing_events:listing-1"))
}
