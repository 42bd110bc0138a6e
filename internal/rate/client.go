package rate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Client fetches conversion tables from an exchangerate-api style endpoint:
// GET {baseURL}/{apiKey}/latest/{base}.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type latestResponse struct {
	Result             string                 `json:"result"`
	TimeLastUpdateUnix int64                  `json:"time_last_update_unix"`
	ConversionRates    map[string]json.Number `json:"conversion_rates"`
}

// FetchRates returns the conversion table for one base currency.
func (c *Client) FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, time.Time, error) {
	url := fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, fmt.Errorf("fetch rates for %s: unexpected status %d", base, resp.StatusCode)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode rates for %s: %w", base, err)
	}
	if payload.Result != "success" || len(payload.ConversionRates) == 0 {
		return nil, time.Time{}, fmt.Errorf("fetch rates for %s: provider result %q", base, payload.Result)
	}

	rates := make(map[string]decimal.Decimal, len(payload.ConversionRates))
	for target, raw := range payload.ConversionRates {
		d, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("parse rate %s/%s: %w", base, target, err)
		}
		rates[target] = d
	}
	return rates, time.Unix(payload.TimeLastUpdateUnix, 0).UTC(), nil
}
