// Package cachewriter implements orchestrator.CacheWriter: the fire-and-
// forget "chunk + embed + cache insert" queue that lets a live source fetch
// enrich the VectorCache for future queries, per SPEC_FULL §4.8 and its
// domain-stack note that cloud.google.com/go/pubsub backs this queue. A
// Writer publishes one message per successful source fetch; a Worker
// subscribes and performs the actual chunk/embed/insert work, decoupled
// from the request that triggered it so a client disconnect never aborts
// an in-flight cache write.
package cachewriter

import (
	"context"
	"encoding/json"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// writeMessage is the JSON payload published for one source's batch of
// freshly fetched documents.
type writeMessage struct {
	Source    model.SourceId   `json:"source"`
	Documents []model.Document `json:"documents"`
}

// Publisher abstracts a Pub/Sub topic down to a single synchronous publish
// call, so tests can supply a fake without needing a real *pubsub.Topic.
type Publisher interface {
	Publish(ctx context.Context, data []byte) error
}

// TopicPublisher adapts a *pubsub.Topic to Publisher, blocking on the
// publish's server ack before returning.
type TopicPublisher struct {
	Topic *pubsub.Topic
}

// Publish satisfies Publisher.
func (p TopicPublisher) Publish(ctx context.Context, data []byte) error {
	_, err := p.Topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	return err
}

// Writer satisfies orchestrator.CacheWriter by publishing to a Pub/Sub
// topic rather than doing the chunk/embed/insert work inline — the
// Orchestrator's fetch path must never block on it.
type Writer struct {
	publisher Publisher
}

// New builds a Writer over an already-configured Publisher.
func New(publisher Publisher) *Writer {
	return &Writer{publisher: publisher}
}

// ScheduleWrite satisfies orchestrator.CacheWriter. Publishing happens on a
// detached goroutine so neither the caller's context cancellation nor the
// publish round-trip can slow down the query that triggered it; a publish
// failure is only logged.
func (w *Writer) ScheduleWrite(ctx context.Context, src model.SourceId, docs []model.Document) {
	if len(docs) == 0 || w.publisher == nil {
		return
	}
	data, err := json.Marshal(writeMessage{Source: src, Documents: docs})
	if err != nil {
		slog.Warn("cachewriter: marshal failed", "source", src, "error", err)
		return
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if err := w.publisher.Publish(detached, data); err != nil {
			slog.Warn("cachewriter: publish failed", "source", src, "error", err)
		}
	}()
}
