package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cloudx-io/openmarket/core"
)

// Redis publishes events on per-listing pub/sub channels for real-time
// subscribers. Delivery is at-most-once.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (p *Redis) Publish(ctx context.Context, event core.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(event.ListingID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", Channel(event.ListingID), err)
	}
	return nil
}

// Subscribe streams events for one listing until ctx is done. Payloads that
// are not events are dropped and reported to logger.
func Subscribe(ctx context.Context, client redis.UniversalClient, listingID string, logger zerolog.Logger) (<-chan core.Event, error) {
	sub := client.Subscribe(ctx, Channel(listingID))
	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Channel(listingID), err)
	}

	out := make(chan core.Event)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev core.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
