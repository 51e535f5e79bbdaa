package domain

import "github.com/shopspring/decimal"

// Amounts are kept at a fixed scale of 2 (currency minor units).

// Normalize rounds an amount half-up to two decimal places. It is applied
// exactly once, at the caller boundary; the ledger never re-rounds.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}
