package rate

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPairNotFound reports that no rate is known for the requested pair.
var ErrPairNotFound = errors.New("no rate for currency pair")

// Quote is one snapshotted exchange rate.
type Quote struct {
	BaseCurrency   string          `json:"base_currency"`
	TargetCurrency string          `json:"target_currency"`
	Rate           decimal.Decimal `json:"rate"`
	AsOf           time.Time       `json:"as_of"`
}

// Provider answers point-in-time rate lookups. The settlement path calls it
// exactly once per order, at creation; later refreshes never touch an order.
type Provider interface {
	GetRate(ctx context.Context, base, target string) (Quote, error)
}

// StaticProvider serves rates from a fixed table. Used in development and tests.
type StaticProvider struct {
	rates map[string]decimal.Decimal // base currency -> USD-relative rate
}

// NewStaticProvider builds a provider over USD-relative base rates.
func NewStaticProvider(usdRates map[string]string) (*StaticProvider, error) {
	rates := make(map[string]decimal.Decimal, len(usdRates))
	for currency, raw := range usdRates {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		rates[currency] = d
	}
	return &StaticProvider{rates: rates}, nil
}

// DefaultStaticProvider covers the majors with fixed indicative rates.
func DefaultStaticProvider() *StaticProvider {
	p, _ := NewStaticProvider(map[string]string{
		"USD": "1",
		"EUR": "0.92",
		"GBP": "0.79",
		"JPY": "151.4",
		"CAD": "1.36",
	})
	return p
}

func (p *StaticProvider) GetRate(_ context.Context, base, target string) (Quote, error) {
	if base == target {
		return Quote{BaseCurrency: base, TargetCurrency: target, Rate: decimal.NewFromInt(1), AsOf: time.Now().UTC()}, nil
	}
	baseRate, ok := p.rates[base]
	targetRate, ok2 := p.rates[target]
	if !ok || !ok2 {
		return Quote{}, ErrPairNotFound
	}
	// Rate = target / base, both expressed relative to USD.
	return Quote{
		BaseCurrency:   base,
		TargetCurrency: target,
		Rate:           targetRate.Div(baseRate),
		AsOf:           time.Now().UTC(),
	}, nil
}
