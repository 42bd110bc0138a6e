package worker

import (
	"context"
	"sync"
	"time"

	"github.com/fxmarket/forex-marketplace/internal/observability"
	"github.com/fxmarket/forex-marketplace/internal/rate"
	"go.uber.org/zap"
)

// RatePoller refreshes exchange rates from the upstream provider on a fixed
// interval. Orders price against the most recent snapshot; a failed refresh
// leaves the previous rates in place.
type RatePoller struct {
	client   *rate.Client
	store    *rate.Store
	bases    []string
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRatePoller constructs a poller with a default hourly interval.
func NewRatePoller(client *rate.Client, store *rate.Store, bases []string) *RatePoller {
	return &RatePoller{
		client:   client,
		store:    store,
		bases:    bases,
		interval: time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the refresh interval.
func (w *RatePoller) WithInterval(interval time.Duration) *RatePoller {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and refreshes rates at the configured interval.
func (w *RatePoller) Start(ctx context.Context) {
	zap.L().Info("rate poller starting",
		zap.Duration("interval", w.interval),
		zap.Strings("bases", w.bases),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("rate poller context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("rate poller stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *RatePoller) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *RatePoller) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *RatePoller) runOnce(ctx context.Context) {
	if err := w.RefreshOnce(ctx); err != nil {
		observability.IncrementWorkerRun("rate_poller", "failed")
		zap.L().Error("rate refresh failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("rate_poller", "success")
}

// RefreshOnce fetches and stores rates for every configured base currency.
// The first error aborts the pass; already stored bases keep their update.
func (w *RatePoller) RefreshOnce(ctx context.Context) error {
	for _, base := range w.bases {
		rates, asOf, err := w.client.FetchRates(ctx, base)
		if err != nil {
			return err
		}
		for target, value := range rates {
			if target == base {
				continue
			}
			if err := w.store.UpsertRate(ctx, base, target, value, asOf); err != nil {
				return err
			}
		}
		zap.L().Info("rates refreshed",
			zap.String("base", base),
			zap.Int("pairs", len(rates)),
			zap.Time("as_of", asOf),
		)
	}
	return nil
}
