// Package metrics holds the domain-specific Prometheus collectors that
// supplement the generic HTTP metrics in internal/middleware: fan-out
// latency per source, VectorCache hit rate, circuit-breaker state, and SSE
// stream duration. Collector shape (CounterVec/HistogramVec/GaugeVec,
// registered via prometheus.Registerer) follows middleware.NewMetrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every orchestration-layer collector.
type Metrics struct {
	SourceFetchDuration *prometheus.HistogramVec
	SourceFetchTotal    *prometheus.CounterVec

	CacheLookupsTotal *prometheus.CounterVec

	BreakerState *prometheus.GaugeVec

	StreamDuration *prometheus.HistogramVec
	StreamChunks   *prometheus.HistogramVec

	QueryErrorsTotal *prometheus.CounterVec
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SourceFetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_source_fetch_duration_seconds",
				Help:    "Latency of one source adapter's Search call.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"source", "outcome"},
		),
		SourceFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_source_fetch_total",
				Help: "Total source fetches by source and outcome (ok, error, rate_limited, breaker_open).",
			},
			[]string{"source", "outcome"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vector_cache_lookups_total",
				Help: "VectorCache lookups by result (hit, miss).",
			},
			[]string{"result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state per key: 0=closed, 1=half_open, 2=open.",
			},
			[]string{"key"},
		),
		StreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_stream_duration_seconds",
				Help:    "Duration of one /chat/stream SSE connection, start event to terminal event.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"provider", "outcome"},
		),
		StreamChunks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_stream_chunks_total",
				Help:    "Number of chunk events written per completed stream.",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
			},
			[]string{"provider"},
		),
		QueryErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_errors_total",
				Help: "Terminal query errors by wire error kind.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.SourceFetchDuration,
		m.SourceFetchTotal,
		m.CacheLookupsTotal,
		m.BreakerState,
		m.StreamDuration,
		m.StreamChunks,
		m.QueryErrorsTotal,
	)
	return m
}

// BreakerStateValue maps a breaker.State name to the gauge value BreakerState
// expects. Kept here (rather than importing internal/breaker) to avoid a
// dependency cycle — callers pass the already-stringified state.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
