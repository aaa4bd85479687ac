package core

import "errors"

// Kind classifies an engine error by how a caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation errors are rejected synchronously with no state change.
	KindValidation
	// KindConflict errors require the caller to re-fetch state before retrying.
	KindConflict
	// KindContention errors are transient lock timeouts.
	KindContention
	KindNotFound
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindContention:
		return "contention"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a classified engine error. Sentinels below are compared with
// errors.Is and usually wrapped with detail via fmt.Errorf("%w: ...").
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrBidTooLow         = newError(KindValidation, "bid_too_low", "bid too low")
	ErrSelfBid           = newError(KindValidation, "self_bid", "sellers cannot bid on their own listing")
	ErrInvalidAmount     = newError(KindValidation, "invalid_amount", "invalid amount")
	ErrOfferBelowMinimum = newError(KindValidation, "offer_below_minimum", "offer below minimum")
	ErrSelfOffer         = newError(KindValidation, "self_offer", "sellers cannot make offers on their own listing")
	ErrInvalidListing    = newError(KindValidation, "invalid_listing", "invalid listing")
	ErrListingNotAuction = newError(KindValidation, "listing_not_auction", "listing is not an auction")
	ErrOffersNotAllowed  = newError(KindValidation, "offers_not_allowed", "listing does not accept offers")
	ErrAuctionEnded      = newError(KindConflict, "auction_ended", "auction has ended")
	ErrAlreadySold       = newError(KindConflict, "already_sold", "listing already sold")
	ErrListingNotActive  = newError(KindConflict, "listing_no_longer_active", "listing is no longer active")
	ErrOfferExpired      = newError(KindConflict, "offer_expired", "offer has expired")
	ErrInvalidTransition = newError(KindConflict, "invalid_transition", "invalid state transition")
	ErrHasBids           = newError(KindConflict, "has_bids", "auction already has bids")
	ErrContention        = newError(KindContention, "contention", "listing is busy, retry")
	ErrListingNotFound   = newError(KindNotFound, "listing_not_found", "listing not found")
	ErrOfferNotFound     = newError(KindNotFound, "offer_not_found", "offer not found")
	ErrOrderNotFound     = newError(KindNotFound, "order_not_found", "order not found")
	ErrAutoBidNotFound   = newError(KindNotFound, "autobid_not_found", "auto-bid not found")
	ErrNotOwner          = newError(KindForbidden, "not_owner", "caller does not own this resource")
	ErrUserInactive      = newError(KindForbidden, "user_inactive", "user is not active")
)

// KindOf returns the Kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsRetryable reports whether err is a transient contention error.
func IsRetryable(err error) bool {
	return KindOf(err) == KindContention
}

// Owned is implemented by entities with a single owning identity.
type Owned interface {
	Owner() string
}

// RequireOwner fails with ErrNotOwner unless userID owns e.
func RequireOwner(e Owned, userID string) error {
	if userID == "" || e.Owner() != userID {
		return ErrNotOwner
	}
	return nil
}
