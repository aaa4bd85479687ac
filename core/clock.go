package core

import "time"

// Clock provides the current time. This interface enables dependency
// injection for deterministic testing of time-dependent transitions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock in UTC.
var SystemClock Clock = systemClock{}

// ApplyExtension pushes the auction end out to now + window when a manual
// bid lands inside the extension window. It reports whether the end moved.
// Proxy-generated bids never extend, so callers only invoke this for bids
// submitted by a bidder.
func (l *Listing) ApplyExtension(now time.Time) bool {
	p := l.Extension
	if !l.IsAuction() || !p.Enabled || p.Window <= 0 {
		return false
	}
	if p.MaxExtensions > 0 && l.ExtensionCount >= p.MaxExtensions {
		return false
	}
	if l.AuctionEnd.Sub(now) >= p.Window {
		return false
	}

	extended := now.Add(p.Window)
	if !extended.After(l.AuctionEnd) {
		return false
	}
	l.AuctionEnd = extended
	l.ExtensionCount++
	l.UpdatedAt = now
	return true
}

// CloseOutcome decides how an ended auction closes. It returns the winning
// bid and ListingSold when the leading bid meets the reserve, and a nil bid
// with ListingExpired otherwise.
func CloseOutcome(l *Listing, bids []Bid) (*Bid, ListingStatus) {
	leader := LeadingBid(bids)
	if leader == nil || !MeetsReserve(leader.Amount, l.ReservePrice) {
		return nil, ListingExpired
	}
	return leader, ListingSold
}
