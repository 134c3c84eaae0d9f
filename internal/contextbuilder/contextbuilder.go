// Package contextbuilder implements ContextBuilder: deduplication, ranking,
// and token-budgeted packing of chunks into the prompt context, per
// SPEC_FULL §4.9/§4.9a.
package contextbuilder

import (
	"context"
	"fmt"
	"sort"

	"github.com/connexus-ai/raqa-orchestrator/internal/chunker"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

const (
	defaultMaxChunksPerDoc  = 2
	separatorOverheadTokens = 4
	semanticWeight          = 0.7
	nativeWeight            = 0.3
)

// Embedder is the subset of the embedding Model this package depends on.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder packs retrieved documents into a token-budgeted, deduplicated,
// ranked context.
type Builder struct {
	embedder       Embedder
	splitter       *chunker.Splitter
	maxChunksPerDoc int
}

// New creates a Builder. maxChunksPerDoc <= 0 falls back to the spec
// default of 2.
func New(embedder Embedder, splitter *chunker.Splitter, maxChunksPerDoc int) *Builder {
	if maxChunksPerDoc <= 0 {
		maxChunksPerDoc = defaultMaxChunksPerDoc
	}
	return &Builder{embedder: embedder, splitter: splitter, maxChunksPerDoc: maxChunksPerDoc}
}

// scoredChunk pairs a Chunk with its document's native score (if any) and
// the computed relevance score used for ranking.
type scoredChunk struct {
	chunk  model.Chunk
	docID  string
	source model.SourceId
	score  float64
}

// Packed is the output of Build: the selected chunks in pack order plus the
// set of sources that actually contributed at least one chunk.
type Packed struct {
	Chunks      []model.Chunk
	UsedSources []model.SourceId
}

// Build runs the full §4.9 algorithm: chunk every document, embed the query
// and all new chunks in one batched call, score, stable-sort, dedupe per
// document, then greedily pack under tokenBudget.
func (b *Builder) Build(ctx context.Context, query string, bySource map[model.SourceId][]model.Document, tokenBudget int) (Packed, error) {
	var allChunks []model.Chunk
	docScores := make(map[string]*float64) // keyed by (source,doc_id)

	// Iterate sources in the fixed AllSources order (not map range order,
	// which Go randomizes per call) so Build is deterministic for a given
	// input: two calls with identical bySource must produce identical
	// ordering among equally-scored chunks.
	for _, src := range model.AllSources {
		docs, ok := bySource[src]
		if !ok {
			continue
		}
		for _, doc := range docs {
			chunks, err := b.splitter.Split(doc)
			if err != nil {
				continue // empty-body documents contribute nothing, not an error
			}
			allChunks = append(allChunks, chunks...)
			docScores[docKey(src, doc.ID)] = doc.Score
		}
	}

	if len(allChunks) == 0 {
		return Packed{}, nil
	}

	texts := make([]string, 0, len(allChunks)+1)
	texts = append(texts, query)
	for _, c := range allChunks {
		texts = append(texts, c.Text)
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return Packed{}, fmt.Errorf("contextbuilder.Build: embed: %w", err)
	}
	if len(vectors) != len(texts) {
		return Packed{}, fmt.Errorf("contextbuilder.Build: got %d vectors for %d texts", len(vectors), len(texts))
	}
	queryVec := vectors[0]
	chunkVecs := vectors[1:]

	scored := make([]scoredChunk, len(allChunks))
	for i, c := range allChunks {
		semantic := cosine(queryVec, chunkVecs[i])
		score := semantic

		if native := docScores[docKey(c.Source, c.DocID)]; native != nil {
			score = semanticWeight*semantic + nativeWeight*normalize(*native)
		}

		scored[i] = scoredChunk{chunk: c, docID: c.DocID, source: c.Source, score: score}
	}

	// Stable sort descending by score preserves fan-out order among ties,
	// which keeps Build() deterministic for a fixed input.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	deduped := dedupe(scored, b.maxChunksPerDoc)

	return pack(deduped, tokenBudget), nil
}

func docKey(source model.SourceId, docID string) string {
	return string(source) + "|" + docID
}

// dedupe keeps, per (source, doc_id), the highest-scoring chunk plus up to
// maxPerDoc-1 additional high-scoring chunks from the same document. Each
// document's kept chunks are first put in ascending ordinal order, but the
// returned slice is then stably re-sorted by score, so ordinal order
// survives only among chunks with equal scores.
func dedupe(scored []scoredChunk, maxPerDoc int) []scoredChunk {
	perDocCount := make(map[string]int)
	perDocChunks := make(map[string][]scoredChunk)
	var docOrder []string

	for _, sc := range scored {
		key := docKey(sc.source, sc.docID)
		if perDocCount[key] >= maxPerDoc {
			continue
		}
		if perDocCount[key] == 0 {
			docOrder = append(docOrder, key)
		}
		perDocCount[key]++
		perDocChunks[key] = append(perDocChunks[key], sc)
	}

	var out []scoredChunk
	for _, key := range docOrder {
		chunks := perDocChunks[key]
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].chunk.Ordinal < chunks[j].chunk.Ordinal
		})
		out = append(out, chunks...)
	}

	// Re-sort the deduplicated set by score so packing still proceeds
	// highest-value-first across documents.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// pack greedily accepts chunks until tokenBudget would be exceeded. Each
// accepted chunk reserves token_count + separator overhead.
func pack(scored []scoredChunk, tokenBudget int) Packed {
	usedSet := make(map[model.SourceId]bool)
	var chunks []model.Chunk
	remaining := tokenBudget

	for _, sc := range scored {
		cost := sc.chunk.TokenCount + separatorOverheadTokens
		if cost > remaining {
			continue
		}
		remaining -= cost
		chunks = append(chunks, sc.chunk)
		usedSet[sc.source] = true
	}

	used := make([]model.SourceId, 0, len(usedSet))
	for _, s := range model.AllSources {
		if usedSet[s] {
			used = append(used, s)
		}
	}

	return Packed{Chunks: chunks, UsedSources: used}
}

func normalize(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
	}
	return dot // vectors are already L2-normalized, so dot product == cosine similarity
}
