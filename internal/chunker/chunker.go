// Package chunker implements the Chunker component: a token-aware splitter
// that produces overlapping windows from a Document's body.
package chunker

import (
	"fmt"
	"math"
	"strings"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

const (
	defaultMaxTokens = 512
	defaultOverlap   = 64
	// tokensPerWord approximates sub-word tokenization the way the teacher's
	// splitter does, absent an exact counter from the configured LLM.
	tokensPerWord = 1.3
)

// Splitter produces overlapping, token-bounded windows over document text.
type Splitter struct {
	maxTokens int
	overlap   int
}

// New creates a Splitter. maxTokens <= 0 falls back to 512, overlap < 0
// falls back to 64. overlap is clamped below maxTokens so windows always
// advance.
func New(maxTokens, overlap int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if overlap < 0 {
		overlap = defaultOverlap
	}
	if overlap >= maxTokens {
		overlap = maxTokens - 1
	}
	return &Splitter{maxTokens: maxTokens, overlap: overlap}
}

// Split turns a Document into one or more Chunks. The last window may be
// shorter than maxTokens; a body shorter than maxTokens yields exactly one
// chunk. Ordinals start at 0 and increase monotonically.
func (s *Splitter) Split(doc model.Document) ([]model.Chunk, error) {
	body := strings.TrimSpace(doc.Body)
	if body == "" {
		return nil, fmt.Errorf("chunker.Split: document %s has empty body", doc.ID)
	}

	words := strings.Fields(body)
	wordsPerWindow := wordsForTokens(s.maxTokens)
	overlapWords := wordsForTokens(s.overlap)
	stride := wordsPerWindow - overlapWords
	if stride <= 0 {
		stride = 1
	}

	var chunks []model.Chunk
	ordinal := 0
	for start := 0; start < len(words); start += stride {
		end := start + wordsPerWindow
		if end > len(words) {
			end = len(words)
		}

		text := strings.Join(words[start:end], " ")
		chunks = append(chunks, model.Chunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, ordinal),
			DocID:      doc.ID,
			Source:     doc.Source,
			Title:      doc.Title,
			URL:        doc.URL,
			Text:       text,
			TokenCount: EstimateTokens(text),
			Ordinal:    ordinal,
		})
		ordinal++

		if end == len(words) {
			break
		}
	}

	return chunks, nil
}

// EstimateTokens approximates token count by word count, matching the
// teacher's provider-neutral heuristic when no exact LLM counter is
// configured.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * tokensPerWord))
}

func wordsForTokens(tokens int) int {
	n := int(float64(tokens) / tokensPerWord)
	if n <= 0 {
		n = 1
	}
	return n
}
