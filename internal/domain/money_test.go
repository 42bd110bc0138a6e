package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	cases := []struct {
		amount, rate, want string
	}{
		{"1000", "0.85", "850"},
		{"100", "151.4", "15140"},
		{"0.01", "0.92", "0.0092"},
		// Truncation, not rounding, at 8 decimal places.
		{"1", "0.123456789", "0.12345678"},
		{"3", "0.333333333333", "0.99999999"},
	}
	for _, tc := range cases {
		got := Convert(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.rate))
		require.True(t, decimal.RequireFromString(tc.want).Equal(got),
			"%s * %s: expected %s, got %s", tc.amount, tc.rate, tc.want, got)
	}
}

func TestPositive(t *testing.T) {
	require.True(t, Positive(decimal.RequireFromString("0.00000001")))
	require.False(t, Positive(decimal.Zero))
	require.False(t, Positive(decimal.RequireFromString("-1")))
}
