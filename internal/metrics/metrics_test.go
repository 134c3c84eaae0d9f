package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SourceFetchTotal.WithLabelValues("jira", "ok").Inc()
	m.CacheLookupsTotal.WithLabelValues("hit").Inc()
	m.BreakerState.WithLabelValues("jira").Set(BreakerStateValue("open"))
	m.QueryErrorsTotal.WithLabelValues("auth").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"orchestrator_source_fetch_duration_seconds",
		"orchestrator_source_fetch_total",
		"vector_cache_lookups_total",
		"circuit_breaker_state",
		"chat_stream_duration_seconds",
		"chat_stream_chunks_total",
		"query_errors_total",
	} {
		if !names[want] {
			t.Errorf("expected collector %q to be registered and reported", want)
		}
	}
}

func TestBreakerStateValue(t *testing.T) {
	cases := map[string]float64{
		"closed":    0,
		"half_open": 1,
		"open":      2,
		"unknown":   0,
	}
	for state, want := range cases {
		if got := BreakerStateValue(state); got != want {
			t.Errorf("BreakerStateValue(%q) = %v, want %v", state, got, want)
		}
	}
}

func TestMetrics_BreakerStateGaugeValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BreakerState.WithLabelValues("github").Set(BreakerStateValue("half_open"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	var found *dto.Metric
	for _, f := range families {
		if f.GetName() != "circuit_breaker_state" {
			continue
		}
		for _, mm := range f.GetMetric() {
			found = mm
		}
	}
	if found == nil {
		t.Fatal("circuit_breaker_state metric not found")
	}
	if got := found.GetGauge().GetValue(); got != 1 {
		t.Errorf("gauge value = %v, want 1", got)
	}
}
