package models

import "github.com/shopspring/decimal"

// Currency is the ISO code used for every charge and transfer.
const Currency = "gbp"

// ToMinorUnits converts a major-unit amount to pence using round(amount × 100).
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts pence back to a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// RoundMoney rounds to two decimal places, half to even.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(2)
}
