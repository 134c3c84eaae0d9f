// Package source defines the SourceAdapter contract every external
// knowledge-source integration satisfies (SPEC_FULL §4.3), plus a Registry
// built once at startup from settings — the "dynamic dispatch over
// SourceId" design note in spec.md §9.
package source

import (
	"context"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// Adapter is the uniform capability set every integration satisfies. It is
// responsible only for wire calls and shape normalization: rate limiting and
// circuit breaking are applied around it by the orchestrator, not inside it.
// Neither the adapter nor the orchestrator retries a failed Search.
type Adapter interface {
	// Search returns at most limit documents relevant to query, honoring
	// ctx cancellation.
	Search(ctx context.Context, query string, limit int) ([]model.Document, error)
	// Healthy is a cheap readiness probe used by the Router to avoid
	// selecting dead sources.
	Healthy() bool
	// Id returns this adapter's SourceId.
	Id() model.SourceId
}

// Registry holds one Adapter per configured SourceId, constructed once at
// startup. The core never does runtime string matching to find an adapter;
// it looks one up here.
type Registry struct {
	adapters map[model.SourceId]Adapter
}

// NewRegistry builds a Registry from a fixed adapter set.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.SourceId]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Id()] = a
	}
	return r
}

// Get returns the Adapter for id, and whether it was found.
func (r *Registry) Get(id model.SourceId) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// Healthy reports whether id is registered and currently healthy.
func (r *Registry) Healthy(id model.SourceId) bool {
	a, ok := r.adapters[id]
	return ok && a.Healthy()
}

// Configured returns every SourceId with a registered adapter.
func (r *Registry) Configured() []model.SourceId {
	ids := make([]model.SourceId, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
