// Package metrics exposes Prometheus instrumentation for the trading bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dca-trading-btc-binance/internal/logger"
)

// Metrics holds all Prometheus metrics for the trading bot.
type Metrics struct {
	CandlesProcessed prometheus.Counter   // Closed candles fully processed
	CandlesDropped   prometheus.Counter   // Candles dropped while paused/stopping
	OrdersTotal      *prometheus.CounterVec // Orders placed, by side
	OrderRetries     prometheus.Counter   // Transient order retries
	ErrorsTotal      prometheus.Counter   // Errors caught in the candle path
	VersionConflicts prometheus.Counter   // Optimistic lock misses
	Paused           prometheus.Gauge     // 1 while the strategy is paused
	QueueDepth       prometheus.Gauge     // Candles waiting behind the current one
	HeapBytes        prometheus.Gauge     // Heap in use, sampled by the health loop
	CandleDuration   prometheus.Histogram // Candle handling duration
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		CandlesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "candles_processed_total",
			Help: "Total number of closed candles fully processed",
		}),
		CandlesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "candles_dropped_total",
			Help: "Total number of candles dropped while paused or stopping",
		}),
		OrdersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of orders placed",
		}, []string{"side"}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of transient order retries",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors caught in the candle path",
		}),
		VersionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "version_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts",
		}),
		Paused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "strategy_paused",
			Help: "1 while the strategy is paused",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "candle_queue_depth",
			Help: "Candles queued behind the one being processed",
		}),
		HeapBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "heap_bytes",
			Help: "Heap in use as sampled by the health loop",
		}),
		CandleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "candle_duration_seconds",
			Help:    "Duration of one candle-close handling pass",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Serve exposes /metrics on addr. Best-effort: listen failures are logged.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
}
