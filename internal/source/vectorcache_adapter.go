package source

import (
	"context"
	"fmt"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// VectorCacheSearcher is the subset of vectorcache.Cache this adapter needs.
type VectorCacheSearcher interface {
	Query(ctx context.Context, vector []float32, k int, minScore float64) ([]model.CacheEntry, error)
}

// QueryEmbedder embeds a single query string for the similarity search.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// VectorCacheAdapter exposes VectorCache as a SourceAdapter under SourceId
// "vector_cache" — the one source the Router always includes (SPEC_FULL
// §4.5a), since a cache hit lets a repeated query short-circuit every other
// external fetch.
type VectorCacheAdapter struct {
	cache    VectorCacheSearcher
	embedder QueryEmbedder
	minScore float64
}

// NewVectorCacheAdapter builds a VectorCacheAdapter. minScore <= 0 falls back
// to the spec's default similarity floor of 0.35.
func NewVectorCacheAdapter(cache VectorCacheSearcher, embedder QueryEmbedder, minScore float64) *VectorCacheAdapter {
	if minScore <= 0 {
		minScore = 0.35
	}
	return &VectorCacheAdapter{cache: cache, embedder: embedder, minScore: minScore}
}

// Id satisfies Adapter.
func (a *VectorCacheAdapter) Id() model.SourceId { return model.SourceVectorCache }

// Healthy satisfies Adapter. The cache has no remote dependency on the
// request path beyond the already-pooled Postgres connection, so it is
// always considered healthy — a failing Search call is reported through its
// own error return instead.
func (a *VectorCacheAdapter) Healthy() bool { return true }

// Search embeds query locally and returns the limit nearest cached chunks
// above the similarity floor, each wrapped as a Document so it flows through
// the same ContextBuilder path as a live source fetch.
func (a *VectorCacheAdapter) Search(ctx context.Context, query string, limit int) ([]model.Document, error) {
	vec, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("source.VectorCacheAdapter.Search: embed: %w", err)
	}

	entries, err := a.cache.Query(ctx, vec, limit, a.minScore)
	if err != nil {
		return nil, fmt.Errorf("source.VectorCacheAdapter.Search: %w", err)
	}

	// The Document's Source is this adapter's own ("vector_cache"), not the
	// Chunk's originating source — a cache hit is a distinct provenance from
	// a fresh fetch of the same document, and must be labeled as such so it
	// dedupes and ranks correctly downstream.
	docs := make([]model.Document, 0, len(entries))
	for _, e := range entries {
		docs = append(docs, model.Document{
			ID:     e.Chunk.DocID,
			Source: model.SourceVectorCache,
			Title:  e.Chunk.Title,
			URL:    e.Chunk.URL,
			Body:   e.Chunk.Text,
		})
	}
	return docs, nil
}
