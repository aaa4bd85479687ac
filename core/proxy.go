package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ProxyBid is the single bid proxy resolution places on behalf of the
// winning instruction.
type ProxyBid struct {
	BidderID      string
	InstructionID string
	Amount        decimal.Decimal
	Ceiling       decimal.Decimal
}

type contender struct {
	bidderID      string
	instructionID string
	ceiling       decimal.Decimal
	registeredAt  time.Time
	leader        bool
}

// ResolveProxy computes the outcome of proxy bidding in closed form.
//
// Only the two highest ceilings matter: the highest ceiling wins at
// min(highest, second + increment). Equal ceilings go to the earliest
// registration at exactly the ceiling. The current leader competes with
// max(its own ceiling, the current price). Returns nil when no instruction
// can outbid the leader, or when the winner already leads at the resolved
// price.
func ResolveProxy(l *Listing, bids []Bid, instructions []AutoBidInstruction, increment decimal.Decimal) *ProxyBid {
	leader := LeadingBid(bids)

	contenders := make([]contender, 0, len(instructions)+1)
	challengers := 0

	var leaderEntry *contender
	if leader != nil {
		leaderEntry = &contender{
			bidderID:     leader.BidderID,
			ceiling:      leader.Amount,
			registeredAt: leader.CreatedAt,
			leader:       true,
		}
	}

	for _, in := range instructions {
		if !in.Active || in.ListingID != l.ID {
			continue
		}
		if leaderEntry != nil && in.BidderID == leaderEntry.bidderID {
			if in.MaxAmount.GreaterThan(leaderEntry.ceiling) {
				leaderEntry.ceiling = in.MaxAmount
				leaderEntry.registeredAt = in.RegisteredAt
			}
			leaderEntry.instructionID = in.ID
			continue
		}

		if leader != nil {
			// a challenger must be able to exceed the current price
			if !in.MaxAmount.GreaterThan(leader.Amount) {
				continue
			}
		} else if in.MaxAmount.LessThan(l.Price) {
			continue
		}

		contenders = append(contenders, contender{
			bidderID:      in.BidderID,
			instructionID: in.ID,
			ceiling:       in.MaxAmount,
			registeredAt:  in.RegisteredAt,
		})
		challengers++
	}

	if challengers == 0 {
		return nil
	}
	if leaderEntry != nil {
		contenders = append(contenders, *leaderEntry)
	}

	sort.SliceStable(contenders, func(i, j int) bool {
		a, b := contenders[i], contenders[j]
		if !a.ceiling.Equal(b.ceiling) {
			return a.ceiling.GreaterThan(b.ceiling)
		}
		return a.registeredAt.Before(b.registeredAt)
	})

	winner := contenders[0]
	var price decimal.Decimal
	switch {
	case len(contenders) == 1:
		// first bid on an auction with a single standing instruction
		price = l.Price
	case winner.ceiling.Equal(contenders[1].ceiling):
		price = winner.ceiling
	default:
		price = minDecimal(winner.ceiling, contenders[1].ceiling.Add(increment))
	}

	if winner.leader && leader != nil && !price.GreaterThan(leader.Amount) {
		return nil
	}

	return &ProxyBid{
		BidderID:      winner.bidderID,
		InstructionID: winner.instructionID,
		Amount:        price,
		Ceiling:       winner.ceiling,
	}
}

// ExhaustedInstructions returns the ids of active instructions that can no
// longer outbid the leader at price.
func ExhaustedInstructions(instructions []AutoBidInstruction, leaderID string, price decimal.Decimal) []string {
	var ids []string
	for _, in := range instructions {
		if in.Active && in.BidderID != leaderID && !in.MaxAmount.GreaterThan(price) {
			ids = append(ids, in.ID)
		}
	}
	return ids
}

// MatchesCeiling reports whether amount ties another bidder's active
// ceiling. The standing instruction was registered first and holds the tie.
func MatchesCeiling(instructions []AutoBidInstruction, bidderID string, amount decimal.Decimal) bool {
	for _, in := range instructions {
		if in.Active && in.BidderID != bidderID && in.MaxAmount.Equal(amount) {
			return true
		}
	}
	return false
}
