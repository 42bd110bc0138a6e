package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	settlementCounter     *prometheus.CounterVec
	walletMovementCounter *prometheus.CounterVec
	cacheCounter          *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_settlements_total",
			Help: "Settlement attempt outcomes",
		}, []string{"result"})

		walletMovementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_movements_total",
			Help: "Wallet debit and credit outcomes",
		}, []string{"direction", "outcome"})

		cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_events_total",
			Help: "Read-through cache hits and misses",
		}, []string{"outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			settlementCounter,
			walletMovementCounter,
			cacheCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementSettlement(result string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(result).Inc()
}

func IncrementWalletMovement(direction, outcome string) {
	if walletMovementCounter == nil {
		return
	}
	walletMovementCounter.WithLabelValues(direction, outcome).Inc()
}

func IncrementCacheEvent(outcome string) {
	if cacheCounter == nil {
		return
	}
	cacheCounter.WithLabelValues(outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
