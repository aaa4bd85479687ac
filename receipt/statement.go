// Package receipt signs settlement statements for new orders so buyers,
// sellers and losing bidders can verify the outcome offline.
package receipt

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openmarket/core"
)

// Statement is the signed settlement of one order. The ledger appears only
// as salted bid hashes, so the statement reveals no bidder identities.
type Statement struct {
	OrderID      string `cbor:"order_id" json:"order_id"`
	ListingID    string `cbor:"listing_id" json:"listing_id"`
	Source       string `cbor:"source" json:"source"`
	SourceID     string `cbor:"source_id" json:"source_id"`
	ItemPrice    string `cbor:"item_price" json:"item_price"`
	Total        string `cbor:"total" json:"total"`
	PlatformFee  string `cbor:"platform_fee" json:"platform_fee"`
	SellerPayout string `cbor:"seller_payout" json:"seller_payout"`

	// BidHashes are SHA256(bid_id|amount|nonce) in commit order.
	BidHashes    []string `cbor:"bid_hashes" json:"bid_hashes"`
	LedgerDigest string   `cbor:"ledger_digest" json:"ledger_digest"`
	Nonce        string   `cbor:"nonce" json:"nonce"`
	IssuedAt     int64    `cbor:"issued_at" json:"issued_at"`
}

func newStatement(order core.Order, ledger []core.Bid, nonce string, issuedAt int64) Statement {
	ordered := slices.Clone(ledger)
	slices.SortFunc(ordered, func(a, b core.Bid) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})

	hashes := make([]string, 0, len(ordered))
	for _, bid := range ordered {
		hashes = append(hashes, core.ComputeBidHash(bid.ID, bid.Amount, nonce))
	}

	return Statement{
		OrderID:      order.ID,
		ListingID:    order.ListingID,
		Source:       string(order.Source),
		SourceID:     order.SourceID,
		ItemPrice:    order.ItemPrice.StringFixed(2),
		Total:        order.Total.StringFixed(2),
		PlatformFee:  order.PlatformFee.StringFixed(2),
		SellerPayout: order.SellerPayout.StringFixed(2),
		BidHashes:    hashes,
		LedgerDigest: core.ComputeLedgerDigest(hashes, nonce),
		Nonce:        nonce,
		IssuedAt:     issuedAt,
	}
}

// IncludesBid reports whether the bid with id and amount was part of the
// settled ledger.
func (s *Statement) IncludesBid(bidID string, amount decimal.Decimal) bool {
	return slices.Contains(s.BidHashes, core.ComputeBidHash(bidID, amount, s.Nonce))
}

// Consistent reports whether the ledger digest matches the bid hashes.
func (s *Statement) Consistent() bool {
	return s.LedgerDigest == core.ComputeLedgerDigest(s.BidHashes, s.Nonce)
}
