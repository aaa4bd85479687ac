package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingMode selects how a listing is sold.
type PricingMode string

const (
	PricingFixed   PricingMode = "fixed"
	PricingAuction PricingMode = "auction"
)

// ListingStatus is the lifecycle state of a listing.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "draft"
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingExpired   ListingStatus = "expired"
	ListingCancelled ListingStatus = "cancelled"
)

// ExtensionPolicy controls anti-sniping extensions of an auction's end time.
type ExtensionPolicy struct {
	Enabled bool          `json:"enabled"`
	Window  time.Duration `json:"window"`
	// MaxExtensions caps the number of extensions. Zero means unbounded.
	MaxExtensions int `json:"max_extensions,omitempty"`
}

// Listing is a catalog entry offered by a seller.
type Listing struct {
	ID          string        `json:"id"`
	SellerID    string        `json:"seller_id"`
	Title       string        `json:"title"`
	PricingMode PricingMode   `json:"pricing_mode"`
	Status      ListingStatus `json:"status"`

	// Price is the starting price for auctions and the asking price otherwise.
	Price         decimal.Decimal     `json:"price"`
	ReservePrice  decimal.NullDecimal `json:"reserve_price"`
	Increment     decimal.Decimal     `json:"increment"`
	ShippingPrice decimal.Decimal     `json:"shipping_price"`

	AllowOffers     bool            `json:"allow_offers"`
	MinOfferPercent decimal.Decimal `json:"min_offer_percent"`

	AuctionEnd     time.Time       `json:"auction_end"`
	Extension      ExtensionPolicy `json:"extension"`
	ExtensionCount int             `json:"extension_count"`

	Quantity         int `json:"quantity"`
	QuantityReserved int `json:"quantity_reserved"`
	QuantitySold     int `json:"quantity_sold"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ClosedAt  time.Time `json:"closed_at"`
}

// Bid is a single entry in a listing's bid ledger.
type Bid struct {
	ID           string              `json:"id"`
	ListingID    string              `json:"listing_id"`
	BidderID     string              `json:"bidder_id"`
	Amount       decimal.Decimal     `json:"amount"`
	ProxyCeiling decimal.NullDecimal `json:"proxy_ceiling"`

	// Generated marks bids placed by proxy resolution rather than a bidder.
	Generated          bool `json:"generated"`
	TriggeredExtension bool `json:"triggered_extension"`

	// Seq is the commit position of the bid within its listing, starting at 1.
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// AutoBidInstruction is a standing authorization to bid up to MaxAmount.
type AutoBidInstruction struct {
	ID        string          `json:"id"`
	ListingID string          `json:"listing_id"`
	BidderID  string          `json:"bidder_id"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Active    bool            `json:"active"`

	// RegisteredAt changes whenever MaxAmount does and breaks ceiling ties.
	RegisteredAt time.Time `json:"registered_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Owner returns the bidder that holds the instruction.
func (a *AutoBidInstruction) Owner() string { return a.BidderID }

// OfferStatus is the negotiation state of an offer.
type OfferStatus string

const (
	OfferPending   OfferStatus = "pending"
	OfferAccepted  OfferStatus = "accepted"
	OfferDeclined  OfferStatus = "declined"
	OfferCountered OfferStatus = "countered"
	OfferExpired   OfferStatus = "expired"
)

// Offer is a buyer's proposal to purchase a listing at a price.
type Offer struct {
	ID        string          `json:"id"`
	ListingID string          `json:"listing_id"`
	BuyerID   string          `json:"buyer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message,omitempty"`
	Status    OfferStatus     `json:"status"`

	CounterAmount  decimal.NullDecimal `json:"counter_amount"`
	CounterMessage string              `json:"counter_message,omitempty"`

	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	RespondedAt time.Time `json:"responded_at"`
	CounteredAt time.Time `json:"countered_at"`
}

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCompleted OrderStatus = "completed"
)

// OrderSource records which winning path created an order.
type OrderSource string

const (
	SourceAuction OrderSource = "auction"
	SourceOffer   OrderSource = "offer"
)

// Order is the billable record created when a listing is sold.
type Order struct {
	ID        string      `json:"id"`
	ListingID string      `json:"listing_id"`
	BuyerID   string      `json:"buyer_id"`
	SellerID  string      `json:"seller_id"`
	Source    OrderSource `json:"source"`
	// SourceID is the winning bid id or the accepted offer id.
	SourceID string `json:"source_id"`

	ItemPrice     decimal.Decimal `json:"item_price"`
	ShippingPrice decimal.Decimal `json:"shipping_price"`
	Total         decimal.Decimal `json:"total"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	SellerPayout  decimal.Decimal `json:"seller_payout"`

	Status     OrderStatus `json:"status"`
	PaymentRef string      `json:"payment_ref,omitempty"`

	ShippingAddress string `json:"shipping_address,omitempty"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	TrackingCarrier string `json:"tracking_carrier,omitempty"`

	// Receipt is a COSE_Sign1 settlement statement, empty when signing is off.
	Receipt []byte `json:"receipt,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PaidAt      time.Time `json:"paid_at"`
	ShippedAt   time.Time `json:"shipped_at"`
	DeliveredAt time.Time `json:"delivered_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Owner returns the seller, who is responsible for fulfilment.
func (o *Order) Owner() string { return o.SellerID }
