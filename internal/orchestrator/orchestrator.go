// Package orchestrator implements Orchestrator: parallel fan-out to
// selected sources under rate-limit and circuit-breaker control, per
// SPEC_FULL §4.8. The errgroup-based fan-out shape is grounded in the
// teacher's internal/service/retriever.go, generalized from a two-way
// vector+BM25 fan-out to an arbitrary per-source fan-out over SelectionResult.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
	"github.com/connexus-ai/raqa-orchestrator/internal/metrics"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/ratelimit"
	"github.com/connexus-ai/raqa-orchestrator/internal/source"
)

// CacheWriter schedules the fire-and-forget chunk + embed + VectorCache
// insert work after a successful source fetch. It is invoked asynchronously
// and its error, if any, is only logged — it must never affect the current
// query's result.
type CacheWriter interface {
	ScheduleWrite(ctx context.Context, src model.SourceId, docs []model.Document)
}

// Result is one source's contribution to the aggregation, successful or
// not. Documents is empty on error.
type Result struct {
	Source    model.SourceId
	Documents []model.Document
	Err       error
}

// Orchestrator fans out a query to every source in a SelectionResult,
// enforcing per-source rate limits and circuit breaking, and aggregates
// results under the query's deadline.
type Orchestrator struct {
	registry          *source.Registry
	gate              *ratelimit.Gate
	breakers          *breaker.Registry
	cacheWriter       CacheWriter
	perSourceDeadline time.Duration
	metrics           *metrics.Metrics
}

// New builds an Orchestrator. cacheWriter may be nil, in which case
// asynchronous cache writes are skipped (useful in tests).
func New(registry *source.Registry, gate *ratelimit.Gate, breakers *breaker.Registry, cacheWriter CacheWriter, perSourceDeadline time.Duration) *Orchestrator {
	return &Orchestrator{
		registry:          registry,
		gate:              gate,
		breakers:          breakers,
		cacheWriter:       cacheWriter,
		perSourceDeadline: perSourceDeadline,
	}
}

// WithMetrics attaches a collector set for per-source fetch latency/outcome
// and circuit-breaker state. Optional: an Orchestrator built without
// WithMetrics, or given a nil m, simply skips recording.
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Fetch fans out to every source in selection.Sources in parallel and
// returns one Result per source, in the SelectionResult's deterministic
// order — the order downstream components (ContextBuilder) depend on.
// Fetch returns only after every source's fetch has returned. Each fetch
// runs under a sub-deadline no later than the query's deadline, so an
// adapter that honours its context reports an error once that passes; a
// result an adapter returns after the deadline is kept, not discarded.
// Cache writes run detached from ctx (ScheduleWrite gets a context without
// cancellation), so they proceed even after ctx is done.
func (o *Orchestrator) Fetch(ctx context.Context, query model.Query, selection model.SelectionResult) []Result {
	results := make([]Result, len(selection.Sources))
	for i, src := range selection.Sources {
		results[i] = Result{Source: src}
	}

	g, gCtx := errgroup.WithContext(ctx)

	for i, src := range selection.Sources {
		i, src := i, src
		g.Go(func() error {
			results[i] = o.fetchOne(gCtx, query, src)
			return nil // a single source's failure must not cancel the others
		})
	}

	_ = g.Wait()
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, query model.Query, src model.SourceId) Result {
	adapter, ok := o.registry.Get(src)
	if !ok {
		return Result{Source: src, Err: errSourceNotConfigured(src)}
	}

	subDeadline := query.Deadline
	if o.perSourceDeadline > 0 {
		candidate := time.Now().Add(o.perSourceDeadline)
		if candidate.Before(subDeadline) || subDeadline.IsZero() {
			subDeadline = candidate
		}
	}

	outcome, err := o.gate.Acquire(ctx, string(src), subDeadline)
	if err != nil {
		return Result{Source: src, Err: err}
	}
	if outcome == ratelimit.OutcomeDeadlineExceeded {
		o.recordFetch(src, "rate_limited", 0)
		return Result{Source: src, Err: errDeadlineExceeded(src)}
	}

	cb := o.breakers.For(string(src))
	if !cb.Allow() {
		o.recordFetch(src, "breaker_open", 0)
		o.recordBreakerState(src, cb)
		return Result{Source: src, Err: errUnavailable(src)}
	}

	limit := query.Options.PerSourceLimit
	if limit <= 0 {
		limit = 10
	}

	searchCtx := ctx
	if !subDeadline.IsZero() {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithDeadline(ctx, subDeadline)
		defer cancel()
	}

	start := time.Now()
	docs, err := adapter.Search(searchCtx, query.Text, limit)
	// A cancelled fetch (client disconnect, overall query deadline) is not
	// the source's fault and must not trip its breaker; a per-source
	// deadline timeout is still a genuine failure.
	if !errors.Is(err, context.Canceled) {
		cb.Report(err == nil)
	}
	o.recordBreakerState(src, cb)

	if err != nil {
		o.recordFetch(src, "error", time.Since(start))
		slog.Warn("orchestrator: source fetch failed", "source", src, "error", err)
		return Result{Source: src, Err: err}
	}
	o.recordFetch(src, "ok", time.Since(start))

	if o.cacheWriter != nil && len(docs) > 0 {
		o.cacheWriter.ScheduleWrite(context.WithoutCancel(ctx), src, docs)
	}

	return Result{Source: src, Documents: docs}
}

func (o *Orchestrator) recordFetch(src model.SourceId, outcome string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.SourceFetchTotal.WithLabelValues(string(src), outcome).Inc()
	if d > 0 {
		o.metrics.SourceFetchDuration.WithLabelValues(string(src), outcome).Observe(d.Seconds())
	}
}

func (o *Orchestrator) recordBreakerState(src model.SourceId, cb *breaker.Breaker) {
	if o.metrics == nil {
		return
	}
	o.metrics.BreakerState.WithLabelValues(string(src)).Set(metrics.BreakerStateValue(cb.CurrentState().String()))
}

type orchestratorError struct {
	source model.SourceId
	kind   string
}

func (e orchestratorError) Error() string {
	return string(e.source) + ": " + e.kind
}

func errSourceNotConfigured(src model.SourceId) error {
	return orchestratorError{source: src, kind: "source not configured"}
}

func errDeadlineExceeded(src model.SourceId) error {
	return orchestratorError{source: src, kind: "deadline_exceeded"}
}

func errUnavailable(src model.SourceId) error {
	return orchestratorError{source: src, kind: "unavailable"}
}
