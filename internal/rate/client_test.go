package rate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestClientFetchRates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/test-key/latest/USD", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"result": "success",
			"time_last_update_unix": 1700000000,
			"conversion_rates": {"USD": 1, "EUR": 0.85, "JPY": 151.4}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	rates, asOf, err := c.FetchRates(context.Background(), "USD")
	require.NoError(t, err)
	require.Len(t, rates, 3)
	require.True(t, rates["EUR"].Equal(decimal.RequireFromString("0.85")))
	require.Equal(t, time.Unix(1700000000, 0).UTC(), asOf)
}

func TestClientFetchRatesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": "error", "error-type": "invalid-key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, _, err := c.FetchRates(context.Background(), "USD")
	require.Error(t, err)
}

func TestClientFetchRatesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	_, _, err := c.FetchRates(context.Background(), "USD")
	require.Error(t, err)
}
