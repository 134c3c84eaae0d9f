package cachewriter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs [][]byte
	err  error
}

func (f *fakePublisher) Publish(ctx context.Context, data []byte) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, data)
	f.mu.Unlock()
	return f.err
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestWriter_ScheduleWrite_PublishesMessage(t *testing.T) {
	pub := &fakePublisher{}
	w := New(pub)

	w.ScheduleWrite(context.Background(), model.SourceJira, []model.Document{{ID: "d1", Body: "hello"}})

	deadline := time.After(time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for publish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	pub.mu.Lock()
	var payload writeMessage
	err := json.Unmarshal(pub.msgs[0], &payload)
	pub.mu.Unlock()
	if err != nil {
		t.Fatalf("unmarshal published message: %v", err)
	}
	if payload.Source != model.SourceJira || len(payload.Documents) != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestWriter_ScheduleWrite_NoDocsIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	w := New(pub)
	w.ScheduleWrite(context.Background(), model.SourceJira, nil)

	time.Sleep(50 * time.Millisecond)
	if pub.count() != 0 {
		t.Error("expected no publish for empty docs")
	}
}

func TestWriter_ScheduleWrite_PublishErrorSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	w := New(pub)
	w.ScheduleWrite(context.Background(), model.SourceJira, []model.Document{{ID: "d1"}})

	deadline := time.After(time.Second)
	for pub.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for publish attempt")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorker_Process_SplitEmbedInsert(t *testing.T) {
	splitter := fakeSplitter{chunks: []model.Chunk{{ID: "c1", Text: "hello"}}}
	embedder := fakeEmbedder{vectors: [][]float32{{0.1, 0.2}}}
	inserter := &fakeInserter{}

	worker := NewWorker(nil, splitter, embedder, inserter)
	if err := worker.process(context.Background(), []model.Document{{ID: "d1", Body: "hello"}}); err != nil {
		t.Fatalf("process() error: %v", err)
	}
	if len(inserter.chunks) != 1 || inserter.chunks[0].ID != "c1" {
		t.Errorf("chunks = %+v", inserter.chunks)
	}
}

func TestWorker_Process_EmptyChunksIsNoop(t *testing.T) {
	worker := NewWorker(nil, fakeSplitter{}, fakeEmbedder{}, &fakeInserter{})
	if err := worker.process(context.Background(), nil); err != nil {
		t.Fatalf("process() error: %v", err)
	}
}

func TestWorker_Process_SplitErrorPropagates(t *testing.T) {
	splitter := fakeSplitter{err: errors.New("split failed")}
	worker := NewWorker(nil, splitter, fakeEmbedder{}, &fakeInserter{})
	if err := worker.process(context.Background(), []model.Document{{ID: "d1", Body: "x"}}); err == nil {
		t.Fatal("expected error when splitting fails")
	}
}

type fakeSplitter struct {
	chunks []model.Chunk
	err    error
}

func (f fakeSplitter) Split(doc model.Document) ([]model.Chunk, error) {
	return f.chunks, f.err
}

type fakeEmbedder struct {
	vectors [][]float32
	err     error
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return f.vectors, f.err
}

type fakeInserter struct {
	chunks []model.Chunk
}

func (f *fakeInserter) Insert(ctx context.Context, chunks []model.Chunk, embeddings []model.Embedding) error {
	f.chunks = chunks
	return nil
}
