package rate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestStaticProviderCrossRates(t *testing.T) {
	p := DefaultStaticProvider()
	ctx := context.Background()

	quote, err := p.GetRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.True(t, quote.Rate.Equal(decimal.RequireFromString("0.92")), "got %s", quote.Rate)

	// Cross rate through USD: EUR -> GBP = 0.79 / 0.92.
	quote, err = p.GetRate(ctx, "EUR", "GBP")
	require.NoError(t, err)
	expected := decimal.RequireFromString("0.79").Div(decimal.RequireFromString("0.92"))
	require.True(t, quote.Rate.Equal(expected), "got %s", quote.Rate)
}

func TestStaticProviderSameCurrency(t *testing.T) {
	p := DefaultStaticProvider()
	quote, err := p.GetRate(context.Background(), "USD", "USD")
	require.NoError(t, err)
	require.True(t, quote.Rate.Equal(decimal.NewFromInt(1)))
}

func TestStaticProviderUnknownPair(t *testing.T) {
	p := DefaultStaticProvider()
	_, err := p.GetRate(context.Background(), "USD", "XAU")
	require.ErrorIs(t, err, ErrPairNotFound)
}

func TestNewStaticProviderRejectsBadRate(t *testing.T) {
	_, err := NewStaticProvider(map[string]string{"USD": "not-a-number"})
	require.Error(t, err)
}
