package core

import (
	"github.com/shopspring/decimal"
)

// FeeSchedule is the platform commission taken from each sale.
type FeeSchedule struct {
	// Percent of the item price, e.g. 12.95.
	Percent decimal.Decimal
	// Flat amount added to every order's fee.
	Flat decimal.Decimal
}

// Settlement is the money breakdown of a sale.
type Settlement struct {
	ItemPrice     decimal.Decimal
	ShippingPrice decimal.Decimal
	Total         decimal.Decimal
	PlatformFee   decimal.Decimal
	SellerPayout  decimal.Decimal
}

// Settle computes totals, fee and payout for a sale. The fee is rounded to
// cents and never exceeds the item price, so the payout is never negative.
func (f FeeSchedule) Settle(itemPrice, shipping decimal.Decimal) Settlement {
	hundred := decimal.NewFromInt(100)

	fee := itemPrice.Mul(f.Percent).Div(hundred).Add(f.Flat)
	fee = RoundMoney(fee)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	if fee.GreaterThan(itemPrice) {
		fee = itemPrice
	}

	return Settlement{
		ItemPrice:     itemPrice,
		ShippingPrice: shipping,
		Total:         itemPrice.Add(shipping),
		PlatformFee:   fee,
		SellerPayout:  itemPrice.Sub(fee),
	}
}
