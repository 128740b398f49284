package services

import "github.com/shopspring/decimal"

// paymentTolerance is one minor unit; confirmed amounts within it of the expected value are accepted
var paymentTolerance = decimal.New(1, -2)

// HalfOf returns the initial instalment for a total, rounded to cents
func HalfOf(total decimal.Decimal) decimal.Decimal {
	return total.Div(decimal.NewFromInt(2)).Round(2)
}

// ToMinorUnits converts an amount to integer cents
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer cents to an amount
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func withinTolerance(confirmed, expected decimal.Decimal) bool {
	return confirmed.Sub(expected).Abs().LessThanOrEqual(paymentTolerance)
}
