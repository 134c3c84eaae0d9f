package cachewriter

import (
	"context"
	"encoding/json"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// Splitter is the subset of chunker.Splitter the worker needs.
type Splitter interface {
	Split(doc model.Document) ([]model.Chunk, error)
}

// Embedder is the subset of embedding.Model the worker needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Inserter is the subset of vectorcache.Cache the worker needs.
type Inserter interface {
	Insert(ctx context.Context, chunks []model.Chunk, embeddings []model.Embedding) error
}

// Subscription is the subset of *pubsub.Subscription the worker needs.
type Subscription interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Worker drains the cache-write queue a Writer publishes to, turning each
// batch of freshly fetched documents into chunks, embeddings, and a
// VectorCache insert.
type Worker struct {
	sub      Subscription
	splitter Splitter
	embedder Embedder
	cache    Inserter
}

// NewWorker builds a Worker. Run must be called once to start draining.
func NewWorker(sub Subscription, splitter Splitter, embedder Embedder, cache Inserter) *Worker {
	return &Worker{sub: sub, splitter: splitter, embedder: embedder, cache: cache}
}

// Run blocks, processing messages until ctx is cancelled or the
// subscription's Receive call returns (e.g. on shutdown). A message whose
// handling fails is nacked so Pub/Sub redelivers it; one that succeeds is
// acked.
func (w *Worker) Run(ctx context.Context) error {
	return w.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var payload writeMessage
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			slog.Error("cachewriter: malformed message, dropping", "error", err)
			msg.Ack()
			return
		}
		if err := w.process(ctx, payload.Documents); err != nil {
			slog.Warn("cachewriter: processing failed, will retry", "source", payload.Source, "error", err)
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (w *Worker) process(ctx context.Context, docs []model.Document) error {
	var allChunks []model.Chunk
	for _, doc := range docs {
		chunks, err := w.splitter.Split(doc)
		if err != nil {
			return err
		}
		allChunks = append(allChunks, chunks...)
	}
	if len(allChunks) == 0 {
		return nil
	}

	texts := make([]string, len(allChunks))
	for i, c := range allChunks {
		texts[i] = c.Text
	}
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	embeddings := make([]model.Embedding, len(allChunks))
	for i, c := range allChunks {
		embeddings[i] = model.Embedding{ChunkID: c.ID, Vector: vectors[i]}
	}
	return w.cache.Insert(ctx, allChunks, embeddings)
}
