package domain

import "github.com/shopspring/decimal"

// Monetary columns use NUMERIC(20,8); rates use NUMERIC(20,10).
const (
	AmountScale = 8
	RateScale   = 10
)

// Convert returns amount × rate truncated to the stored amount scale.
// The multiplication itself is exact; only the persistence boundary rounds.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Truncate(AmountScale)
}

// Positive reports whether d is strictly greater than zero.
func Positive(d decimal.Decimal) bool {
	return d.Sign() > 0
}
