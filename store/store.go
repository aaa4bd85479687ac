// Package store persists listings together with the bids, auto-bid
// instructions, offers and order that belong to them.
package store

import (
	"context"
	"time"

	"github.com/cloudx-io/openmarket/core"
)

// Tx is the view of one listing inside its critical section. Slices and
// pointers returned by a Tx are copies; changes are written with the Save,
// Append and Insert methods and become visible only when the enclosing
// Atomic call commits.
type Tx interface {
	Listing() *core.Listing
	SaveListing(l *core.Listing) error

	// Bids returns the ledger in commit order.
	Bids() []core.Bid
	AppendBid(b *core.Bid) error

	AutoBids() []core.AutoBidInstruction
	SaveAutoBid(a *core.AutoBidInstruction) error

	Offers() []core.Offer
	Offer(id string) (*core.Offer, error)
	SaveOffer(o *core.Offer) error

	// OrderForListing returns nil, nil when the listing has no order.
	OrderForListing() (*core.Order, error)
	InsertOrder(o *core.Order) error
	UpdateOrder(o *core.Order) error
}

// Store is the listing store.
type Store interface {
	CreateListing(ctx context.Context, l *core.Listing) error

	// Atomic runs fn with exclusive access to the listing. fn's writes are
	// committed only if it returns nil. Acquisition timeouts surface as
	// core.ErrContention.
	Atomic(ctx context.Context, listingID string, fn func(Tx) error) error

	// OfferListing and OrderListing resolve the listing an offer or order
	// belongs to, so callers can enter the right critical section.
	OfferListing(ctx context.Context, offerID string) (string, error)
	OrderListing(ctx context.Context, orderID string) (string, error)

	// DueAuctions returns active auctions whose end is at or before now.
	DueAuctions(ctx context.Context, now time.Time) ([]string, error)
	// DueOffers returns listings with open offers expiring at or before now.
	DueOffers(ctx context.Context, now time.Time) ([]string, error)
}
