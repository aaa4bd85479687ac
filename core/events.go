package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a committed state transition.
type EventType string

const (
	EventBidPlaced        EventType = "bid.placed"
	EventBidProxy         EventType = "bid.proxy"
	EventAuctionExtended  EventType = "auction.extended"
	EventAuctionSold      EventType = "auction.sold"
	EventAuctionExpired   EventType = "auction.expired"
	EventOfferCreated     EventType = "offer.created"
	EventOfferAccepted    EventType = "offer.accepted"
	EventOfferDeclined    EventType = "offer.declined"
	EventOfferCountered   EventType = "offer.countered"
	EventOfferExpired     EventType = "offer.expired"
	EventOrderCreated     EventType = "order.created"
	EventOrderUpdated     EventType = "order.updated"
	EventListingPublished EventType = "listing.published"
	EventListingCancelled EventType = "listing.cancelled"
)

// Event describes a transition after it has been committed.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ListingID string    `json:"listing_id"`
	// ActorID is the user that caused the transition, empty for sweeps.
	ActorID string `json:"actor_id,omitempty"`
	// RefID is the bid, offer or order the event is about.
	RefID      string          `json:"ref_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}
