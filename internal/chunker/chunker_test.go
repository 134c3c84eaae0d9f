package chunker

import (
	"strings"
	"testing"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

func repeatWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}

func TestSplit_ShortBodyProducesOneChunk(t *testing.T) {
	s := New(512, 64)
	doc := model.Document{ID: "doc-1", Source: model.SourceConfluence, Title: "t", Body: "hello world this is short"}

	chunks, err := s.Split(doc)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Ordinal != 0 {
		t.Errorf("Ordinal = %d, want 0", chunks[0].Ordinal)
	}
	if chunks[0].DocID != "doc-1" {
		t.Errorf("DocID = %q, want doc-1", chunks[0].DocID)
	}
}

func TestSplit_LongBodyProducesMultipleOverlappingChunks(t *testing.T) {
	s := New(100, 20)
	doc := model.Document{ID: "doc-2", Source: model.SourceJira, Title: "big", Body: repeatWords(1000)}

	chunks, err := s.Split(doc)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple", len(chunks))
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d: Ordinal = %d, want %d", i, c.Ordinal, i)
		}
		if c.TokenCount > 100+1 {
			t.Errorf("chunk %d: TokenCount = %d, exceeds max 100 by more than rounding", i, c.TokenCount)
		}
	}
}

func TestSplit_PreservesDocMetadata(t *testing.T) {
	s := New(512, 64)
	doc := model.Document{
		ID:     "doc-3",
		Source: model.SourceSlack,
		Title:  "incident thread",
		URL:    "https://slack.example.com/thread/1",
		Body:   "some content about an incident",
	}

	chunks, err := s.Split(doc)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	for _, c := range chunks {
		if c.Source != model.SourceSlack {
			t.Errorf("Source = %q, want %q", c.Source, model.SourceSlack)
		}
		if c.Title != "incident thread" {
			t.Errorf("Title = %q, want %q", c.Title, "incident thread")
		}
		if c.URL != doc.URL {
			t.Errorf("URL = %q, want %q", c.URL, doc.URL)
		}
	}
}

func TestSplit_RejectsEmptyBody(t *testing.T) {
	s := New(512, 64)
	doc := model.Document{ID: "doc-4", Source: model.SourceWeb, Body: "   "}

	if _, err := s.Split(doc); err == nil {
		t.Error("expected error for empty body")
	}
}

func TestSplit_OrdinalsMonotonicallyIncreasing(t *testing.T) {
	s := New(50, 10)
	doc := model.Document{ID: "doc-5", Source: model.SourceGithub, Body: repeatWords(500)}

	chunks, err := s.Split(doc)
	if err != nil {
		t.Fatalf("Split() error: %v", err)
	}
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Fatalf("chunks not in monotonically increasing ordinal order at index %d: got %d", i, c.Ordinal)
		}
	}
}

func TestNew_ClampsOverlapBelowMax(t *testing.T) {
	s := New(10, 10)
	if s.overlap >= s.maxTokens {
		t.Errorf("overlap %d should be clamped below maxTokens %d", s.overlap, s.maxTokens)
	}
}

func TestEstimateTokens(t *testing.T) {
	got := EstimateTokens("one two three four")
	if got <= 0 {
		t.Errorf("EstimateTokens() = %d, want positive", got)
	}
}
