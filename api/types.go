package api

import (
	"encoding/base64"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

// ExtensionPolicy is the wire form of core.ExtensionPolicy.
type ExtensionPolicy struct {
	Enabled       bool  `json:"enabled"`
	WindowSeconds int64 `json:"window_seconds"`
	MaxExtensions int   `json:"max_extensions,omitempty"`
}

// CreateListingRequest creates a draft listing owned by the caller.
type CreateListingRequest struct {
	Title           string              `json:"title"`
	PricingMode     core.PricingMode    `json:"pricing_mode"`
	Price           decimal.Decimal     `json:"price"`
	ReservePrice    decimal.NullDecimal `json:"reserve_price"`
	Increment       decimal.Decimal     `json:"increment"`
	ShippingPrice   decimal.Decimal     `json:"shipping_price"`
	AllowOffers     bool                `json:"allow_offers"`
	MinOfferPercent decimal.Decimal     `json:"min_offer_percent"`
	AuctionEnd      time.Time           `json:"auction_end"`
	Extension       ExtensionPolicy     `json:"extension"`
	Quantity        int                 `json:"quantity"`
}

func (r CreateListingRequest) listing(sellerID string) *core.Listing {
	return &core.Listing{
		SellerID:        sellerID,
		Title:           r.Title,
		PricingMode:     r.PricingMode,
		Price:           r.Price,
		ReservePrice:    r.ReservePrice,
		Increment:       r.Increment,
		ShippingPrice:   r.ShippingPrice,
		AllowOffers:     r.AllowOffers,
		MinOfferPercent: r.MinOfferPercent,
		AuctionEnd:      r.AuctionEnd,
		Extension: core.ExtensionPolicy{
			Enabled:       r.Extension.Enabled,
			Window:        time.Duration(r.Extension.WindowSeconds) * time.Second,
			MaxExtensions: r.Extension.MaxExtensions,
		},
		Quantity: r.Quantity,
	}
}

// ListingResponse is a listing as returned to clients.
type ListingResponse struct {
	ID              string              `json:"id"`
	SellerID        string              `json:"seller_id"`
	Title           string              `json:"title"`
	PricingMode     core.PricingMode    `json:"pricing_mode"`
	Status          core.ListingStatus  `json:"status"`
	Price           decimal.Decimal     `json:"price"`
	ReservePrice    decimal.NullDecimal `json:"reserve_price"`
	Increment       decimal.Decimal     `json:"increment"`
	ShippingPrice   decimal.Decimal     `json:"shipping_price"`
	AllowOffers     bool                `json:"allow_offers"`
	MinOfferPercent decimal.Decimal     `json:"min_offer_percent"`
	AuctionEnd      *time.Time          `json:"auction_end,omitempty"`
	Extension       ExtensionPolicy     `json:"extension"`
	ExtensionCount  int                 `json:"extension_count"`
	Quantity        int                 `json:"quantity"`
	QuantitySold    int                 `json:"quantity_sold"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func newListingResponse(l *core.Listing) ListingResponse {
	resp := ListingResponse{
		ID:              l.ID,
		SellerID:        l.SellerID,
		Title:           l.Title,
		PricingMode:     l.PricingMode,
		Status:          l.Status,
		Price:           l.Price,
		ReservePrice:    l.ReservePrice,
		Increment:       l.Increment,
		ShippingPrice:   l.ShippingPrice,
		AllowOffers:     l.AllowOffers,
		MinOfferPercent: l.MinOfferPercent,
		Extension: ExtensionPolicy{
			Enabled:       l.Extension.Enabled,
			WindowSeconds: int64(l.Extension.Window / time.Second),
			MaxExtensions: l.Extension.MaxExtensions,
		},
		ExtensionCount: l.ExtensionCount,
		Quantity:       l.Quantity,
		QuantitySold:   l.QuantitySold,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
	if !l.AuctionEnd.IsZero() {
		end := l.AuctionEnd
		resp.AuctionEnd = &end
	}
	return resp
}

// BidRequest places a bid as the caller. MaxAmount, when set, also
// registers an auto-bid up to that amount.
type BidRequest struct {
	Amount    decimal.Decimal  `json:"amount"`
	MaxAmount *decimal.Decimal `json:"max_amount,omitempty"`
}

// BidResponse reports the ledger after an accepted bid.
type BidResponse struct {
	Bid          *core.Bid       `json:"bid"`
	ProxyBid     *core.Bid       `json:"proxy_bid,omitempty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LeaderID     string          `json:"leader_id"`
	AuctionEnd   time.Time       `json:"auction_end"`
	Extended     bool            `json:"extended"`
}

// AutoBidRequest registers or replaces the caller's auto-bid ceiling.
type AutoBidRequest struct {
	MaxAmount decimal.Decimal `json:"max_amount"`
}

// OfferRequest makes an offer as the caller.
type OfferRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message,omitempty"`
}

// RespondRequest is the seller's answer to an offer.
type RespondRequest struct {
	Action  string          `json:"action"` // accept | decline | counter
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message,omitempty"`
}

// CounterResponseRequest is the buyer's answer to a counter.
type CounterResponseRequest struct {
	Accept bool `json:"accept"`
}

// OfferOutcomeResponse is an offer after a response, and the order it
// created, if any.
type OfferOutcomeResponse struct {
	Offer *core.Offer    `json:"offer"`
	Order *OrderResponse `json:"order,omitempty"`
}

// ReceiptBase64 is a COSE_Sign1 receipt encoded for JSON transport.
type ReceiptBase64 string

// Decode returns the raw COSE bytes.
func (r ReceiptBase64) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(string(r))
}

// OrderResponse is an order with its receipt base64-encoded.
type OrderResponse struct {
	core.Order
	Receipt ReceiptBase64 `json:"receipt,omitempty"`
}

func newOrderResponse(o *core.Order) *OrderResponse {
	if o == nil {
		return nil
	}
	resp := &OrderResponse{Order: *o}
	if len(o.Receipt) > 0 {
		resp.Receipt = ReceiptBase64(base64.StdEncoding.EncodeToString(o.Receipt))
	}
	return resp
}

// PaymentRequest is the payment collaborator's confirmation.
type PaymentRequest struct {
	PaymentRef      string `json:"payment_ref"`
	ShippingAddress string `json:"shipping_address"`
}

// ShipRequest carries tracking details.
type ShipRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
