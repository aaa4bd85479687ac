package core

import (
	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 2 // cents

// DefaultIncrement is the minimum bid step when neither the listing nor the
// engine configures one.
var DefaultIncrement = decimal.NewFromInt(1)

// RoundMoney rounds d to monetaryPrecision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(monetaryPrecision)
}

// MeetsMinimum returns true if amount is at least minimum, compared at
// monetary precision.
func MeetsMinimum(amount, minimum decimal.Decimal) bool {
	return RoundMoney(amount).GreaterThanOrEqual(RoundMoney(minimum))
}

// MeetsReserve returns true if amount satisfies an optional reserve price.
// A listing without a reserve accepts any amount.
func MeetsReserve(amount decimal.Decimal, reserve decimal.NullDecimal) bool {
	if !reserve.Valid {
		return true
	}
	return MeetsMinimum(amount, reserve.Decimal)
}

// ValidMoney reports whether d is a positive amount with at most
// monetaryPrecision decimal places.
func ValidMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(RoundMoney(d))
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
