package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BidderStanding is a bidder's best bid within a ledger.
type BidderStanding struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	BidID    string          `json:"bid_id"`
	Rank     int             `json:"rank"`
}

// LeadingBid returns the highest bid in the ledger, breaking ties by the
// earliest commit. Returns nil for an empty ledger.
func LeadingBid(bids []Bid) *Bid {
	var leader *Bid
	for i := range bids {
		bid := &bids[i]
		if leader == nil || bid.Amount.GreaterThan(leader.Amount) ||
			(bid.Amount.Equal(leader.Amount) && bid.Seq < leader.Seq) {
			leader = bid
		}
	}
	return leader
}

// CurrentPrice is the leading bid amount for auctions with bids, and the
// listing price otherwise.
func CurrentPrice(l *Listing, bids []Bid) decimal.Decimal {
	if l.IsAuction() {
		if leader := LeadingBid(bids); leader != nil {
			return leader.Amount
		}
	}
	return l.Price
}

// MinimumNextBid is the starting price for an auction without bids and the
// current price plus the increment afterwards.
func MinimumNextBid(l *Listing, bids []Bid, increment decimal.Decimal) decimal.Decimal {
	leader := LeadingBid(bids)
	if leader == nil {
		return l.Price
	}
	return leader.Amount.Add(increment)
}

// NextSeq returns the sequence number for the next bid appended to bids.
func NextSeq(bids []Bid) int64 {
	var seq int64
	for _, bid := range bids {
		if bid.Seq > seq {
			seq = bid.Seq
		}
	}
	return seq + 1
}

// LedgerIncreasing reports whether bid amounts strictly increase in commit order.
func LedgerIncreasing(bids []Bid) bool {
	ordered := make([]Bid, len(bids))
	copy(ordered, bids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
	for i := 1; i < len(ordered); i++ {
		if !ordered[i].Amount.GreaterThan(ordered[i-1].Amount) {
			return false
		}
	}
	return true
}

// RankBidders returns each bidder's highest bid sorted by amount descending.
// Ties go to the bidder whose best bid committed first.
func RankBidders(bids []Bid) []BidderStanding {
	best := make(map[string]*Bid)
	for i := range bids {
		bid := &bids[i]
		existing, ok := best[bid.BidderID]
		if !ok || bid.Amount.GreaterThan(existing.Amount) {
			best[bid.BidderID] = bid
		}
	}

	standings := make([]BidderStanding, 0, len(best))
	seqs := make(map[string]int64, len(best))
	for bidder, bid := range best {
		standings = append(standings, BidderStanding{
			BidderID: bidder,
			Amount:   bid.Amount,
			BidID:    bid.ID,
		})
		seqs[bidder] = bid.Seq
	}

	sort.Slice(standings, func(i, j int) bool {
		if !standings[i].Amount.Equal(standings[j].Amount) {
			return standings[i].Amount.GreaterThan(standings[j].Amount)
		}
		return seqs[standings[i].BidderID] < seqs[standings[j].BidderID]
	})

	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}
