// Package events delivers committed engine events to downstream systems.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudx-io/openmarket/core"
)

// Publisher matches engine.Publisher.
type Publisher interface {
	Publish(ctx context.Context, event core.Event) error
}

// Fanout publishes every event to each publisher in turn. Every publisher
// is attempted even when an earlier one fails.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event core.Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subject is the NATS subject an event is published on.
func Subject(event core.Event) string {
	return fmt.Sprintf("market.%s.%s", event.Type, event.ListingID)
}

// Channel is the Redis pub/sub channel for a listing's events.
func Channel(listingID string) string {
	return "listing_events:" + listingID
}
