// Package embedding implements the Embedder component: a deterministic,
// local text-to-vector transform with no remote call on the request path.
package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

const (
	// maxBatchSize caps the texts accepted per EmbedBatch call.
	maxBatchSize = 32
	// defaultDimensions is the reference vector width from spec.md §3.
	defaultDimensions = 384
)

// Model is a deterministic local embedder. It hashes token n-grams into a
// fixed-width feature space (the hashing trick) and L2-normalizes the
// result, so the same text always produces the same vector with no network
// round trip. It stands in for a remote ML embedding service: the
// request-path latency budget in SPEC_FULL §4.4a forbids a blocking call
// out to a hosted model.
type Model struct {
	dimensions int

	warmOnce sync.Once
	warmed   bool
}

// New creates a Model with the given vector width. dimensions <= 0 falls
// back to the reference width of 384.
func New(dimensions int) *Model {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Model{dimensions: dimensions}
}

// Model reports a static identifier for the embedding model in effect.
func (m *Model) Model() string {
	return fmt.Sprintf("local-hashing-%d", m.dimensions)
}

// Dimensions reports the vector width produced by this Model.
func (m *Model) Dimensions() int {
	return m.dimensions
}

// Warmup primes the model so the first real EmbedBatch call on the request
// path pays no extra cost. It must run once at process start per
// SPEC_FULL §4.4a; it is otherwise a no-op since there is no external
// model or weight file to load.
func (m *Model) Warmup(ctx context.Context) error {
	m.warmOnce.Do(func() {
		_, _ = m.EmbedBatch(ctx, []string{"warmup"})
		m.warmed = true
	})
	return nil
}

// EmbedBatch transforms texts into L2-normalized vectors, batching
// internally at maxBatchSize. Mirrors the batching/validate/normalize shape
// of a remote embedding client but does the work locally and synchronously.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding.EmbedBatch: no texts provided")
	}

	out := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		for _, text := range texts[i:end] {
			out = append(out, m.embedOne(text))
		}
	}
	return out, nil
}

// EmbedText embeds a single string; a convenience wrapper over EmbedBatch.
func (m *Model) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedOne hashes each token and each token bigram into the vector space,
// accumulating a signed contribution per feature (the Vowpal Wabbit-style
// hashing trick), then L2-normalizes the result.
func (m *Model) embedOne(text string) []float32 {
	vec := make([]float64, m.dimensions)
	tokens := tokenize(text)

	for i, tok := range tokens {
		hashInto(vec, tok)
		if i+1 < len(tokens) {
			hashInto(vec, tok+"_"+tokens[i+1])
		}
	}

	return l2Normalize(vec, m.dimensions)
}

// hashInto accumulates a feature's signed contribution into vec using two
// independent hash functions: one picks the bucket, the other picks the
// sign, which limits collision bias relative to a single hash.
func hashInto(vec []float64, feature string) {
	bucketHash := fnv.New32a()
	bucketHash.Write([]byte(feature))
	bucket := int(bucketHash.Sum32()) % len(vec)
	if bucket < 0 {
		bucket += len(vec)
	}

	signHash := fnv.New32()
	signHash.Write([]byte(feature))
	sign := 1.0
	if signHash.Sum32()%2 == 0 {
		sign = -1.0
	}

	vec[bucket] += sign
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func l2Normalize(vec []float64, dims int) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)

	out := make([]float32, dims)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
