package postgres

import (
	"database/sql"
	"time"

	"github.com/cloudx-io/openmarket/core"
)

type scanner interface {
	Scan(dest ...any) error
}

const listingColumns = `id, seller_id, title, pricing_mode, status, price, reserve_price,
	increment, shipping_price, allow_offers, min_offer_percent, auction_end,
	extension_enabled, extension_window_ms, max_extensions, extension_count,
	quantity, quantity_reserved, quantity_sold, created_at, updated_at, closed_at`

const (
	selectListing = `SELECT ` + listingColumns + ` FROM listings`

	insertListing = `INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	updateListing = `UPDATE listings SET
		seller_id = $2, title = $3, pricing_mode = $4, status = $5, price = $6,
		reserve_price = $7, increment = $8, shipping_price = $9, allow_offers = $10,
		min_offer_percent = $11, auction_end = $12, extension_enabled = $13,
		extension_window_ms = $14, max_extensions = $15, extension_count = $16,
		quantity = $17, quantity_reserved = $18, quantity_sold = $19,
		created_at = $20, updated_at = $21, closed_at = $22
		WHERE id = $1`
)

func listingArgs(l *core.Listing) []any {
	return []any{
		l.ID, l.SellerID, l.Title, l.PricingMode, l.Status, l.Price, l.ReservePrice,
		l.Increment, l.ShippingPrice, l.AllowOffers, l.MinOfferPercent, nullTime(l.AuctionEnd),
		l.Extension.Enabled, l.Extension.Window.Milliseconds(), l.Extension.MaxExtensions, l.ExtensionCount,
		l.Quantity, l.QuantityReserved, l.QuantitySold, l.CreatedAt, l.UpdatedAt, nullTime(l.ClosedAt),
	}
}

func scanListing(row scanner) (*core.Listing, error) {
	var (
		l                    core.Listing
		windowMS             int64
		createdAt, updatedAt time.Time
		auctionEnd, closedAt sql.NullTime
	)
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.PricingMode, &l.Status, &l.Price, &l.ReservePrice,
		&l.Increment, &l.ShippingPrice, &l.AllowOffers, &l.MinOfferPercent, &auctionEnd,
		&l.Extension.Enabled, &windowMS, &l.Extension.MaxExtensions, &l.ExtensionCount,
		&l.Quantity, &l.QuantityReserved, &l.QuantitySold, &createdAt, &updatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Extension.Window = time.Duration(windowMS) * time.Millisecond
	l.AuctionEnd = fromNullTime(auctionEnd)
	l.ClosedAt = fromNullTime(closedAt)
	l.CreatedAt = createdAt.UTC()
	l.UpdatedAt = updatedAt.UTC()
	return &l, nil
}

const (
	selectBids = `SELECT id, listing_id, bidder_id, amount, proxy_ceiling, generated,
		triggered_extension, seq, created_at FROM bids`

	insertBid = `INSERT INTO bids (id, listing_id, bidder_id, amount, proxy_ceiling,
		generated, triggered_extension, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

func scanBid(row scanner) (*core.Bid, error) {
	var b core.Bid
	err := row.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.Amount, &b.ProxyCeiling,
		&b.Generated, &b.TriggeredExtension, &b.Seq, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

const (
	selectAutoBids = `SELECT id, listing_id, bidder_id, max_amount, active,
		registered_at, created_at, updated_at FROM autobids`

	upsertAutoBid = `INSERT INTO autobids (id, listing_id, bidder_id, max_amount, active,
		registered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			max_amount = EXCLUDED.max_amount,
			active = EXCLUDED.active,
			registered_at = EXCLUDED.registered_at,
			updated_at = EXCLUDED.updated_at`
)

func scanAutoBid(row scanner) (*core.AutoBidInstruction, error) {
	var a core.AutoBidInstruction
	err := row.Scan(&a.ID, &a.ListingID, &a.BidderID, &a.MaxAmount, &a.Active,
		&a.RegisteredAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.RegisteredAt = a.RegisteredAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

const (
	selectOffers = `SELECT id, listing_id, buyer_id, amount, message, status,
		counter_amount, counter_message, expires_at, created_at, responded_at,
		countered_at FROM offers`

	upsertOffer = `INSERT INTO offers (id, listing_id, buyer_id, amount, message, status,
		counter_amount, counter_message, expires_at, created_at, responded_at, countered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			counter_amount = EXCLUDED.counter_amount,
			counter_message = EXCLUDED.counter_message,
			expires_at = EXCLUDED.expires_at,
			responded_at = EXCLUDED.responded_at,
			countered_at = EXCLUDED.countered_at`
)

func scanOffer(row scanner) (*core.Offer, error) {
	var (
		o                        core.Offer
		respondedAt, counteredAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.Amount, &o.Message, &o.Status,
		&o.CounterAmount, &o.CounterMessage, &o.ExpiresAt, &o.CreatedAt,
		&respondedAt, &counteredAt)
	if err != nil {
		return nil, err
	}
	o.ExpiresAt = o.ExpiresAt.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.RespondedAt = fromNullTime(respondedAt)
	o.CounteredAt = fromNullTime(counteredAt)
	return &o, nil
}

const orderColumns = `id, listing_id, buyer_id, seller_id, source, source_id,
	item_price, shipping_price, total, platform_fee, seller_payout, status,
	payment_ref, shipping_address, tracking_number, tracking_carrier, receipt,
	created_at, updated_at, paid_at, shipped_at, delivered_at, completed_at`

const (
	selectOrders = `SELECT ` + orderColumns + ` FROM orders`

	insertOrder = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	updateOrder = `UPDATE orders SET
		status = $2, payment_ref = $3, shipping_address = $4,
		tracking_number = $5, tracking_carrier = $6, receipt = $7,
		updated_at = $8, paid_at = $9, shipped_at = $10,
		delivered_at = $11, completed_at = $12
		WHERE id = $1`
)

func orderArgs(o *core.Order) []any {
	return []any{
		o.ID, o.ListingID, o.BuyerID, o.SellerID, o.Source, o.SourceID,
		o.ItemPrice, o.ShippingPrice, o.Total, o.PlatformFee, o.SellerPayout, o.Status,
		o.PaymentRef, o.ShippingAddress, o.TrackingNumber, o.TrackingCarrier, o.Receipt,
		o.CreatedAt, o.UpdatedAt, nullTime(o.PaidAt), nullTime(o.ShippedAt),
		nullTime(o.DeliveredAt), nullTime(o.CompletedAt),
	}
}

func updateOrderArgs(o *core.Order) []any {
	return []any{
		o.ID, o.Status, o.PaymentRef, o.ShippingAddress, o.TrackingNumber,
		o.TrackingCarrier, o.Receipt, o.UpdatedAt, nullTime(o.PaidAt),
		nullTime(o.ShippedAt), nullTime(o.DeliveredAt), nullTime(o.CompletedAt),
	}
}

func scanOrder(row scanner) (*core.Order, error) {
	var (
		o                                      core.Order
		paidAt, shippedAt, deliveredAt, doneAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.SellerID, &o.Source, &o.SourceID,
		&o.ItemPrice, &o.ShippingPrice, &o.Total, &o.PlatformFee, &o.SellerPayout, &o.Status,
		&o.PaymentRef, &o.ShippingAddress, &o.TrackingNumber, &o.TrackingCarrier, &o.Receipt,
		&o.CreatedAt, &o.UpdatedAt, &paidAt, &shippedAt, &deliveredAt, &doneAt)
	if err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	o.PaidAt = fromNullTime(paidAt)
	o.ShippedAt = fromNullTime(shippedAt)
	o.DeliveredAt = fromNullTime(deliveredAt)
	o.CompletedAt = fromNullTime(doneAt)
	return &o, nil
}
