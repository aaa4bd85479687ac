package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/openmarket/core"
)

const (
	StreamName = "MARKET_EVENTS"
	// StreamSubjects covers every subject produced by Subject.
	StreamSubjects = "market.>"
)

// JetStream publishes events to a persistent NATS stream and waits for the
// server's acknowledgement.
type JetStream struct {
	js      jetstream.JetStream
	timeout time.Duration
}

// NewJetStream ensures the event stream exists on conn.
func NewJetStream(ctx context.Context, conn *nats.Conn) (*JetStream, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed listing, bid, offer and order transitions",
		Subjects:    []string{StreamSubjects},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStream{js: js, timeout: 5 * time.Second}, nil
}

func (p *JetStream) Publish(ctx context.Context, event core.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// dedupe redeliveries server-side by event id
	if _, err := p.js.Publish(ctx, Subject(event), data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
