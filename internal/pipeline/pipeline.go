// Package pipeline implements QueryPipeline: the top-level composer that
// drives Router, Orchestrator, ContextBuilder, and LLMStreamer for one
// Query and writes every StreamProtocol event, per SPEC_FULL §4.12.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/connexus-ai/raqa-orchestrator/internal/contextbuilder"
	"github.com/connexus-ai/raqa-orchestrator/internal/llm"
	"github.com/connexus-ai/raqa-orchestrator/internal/metrics"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/orchestrator"
	"github.com/connexus-ai/raqa-orchestrator/internal/protocol"
)

// ErrorKind is the closed set of wire-level failure classifications from
// spec.md §7. It is distinct from llm.ErrorKind, which classifies a
// provider's own errors before this package folds them into the broader
// taxonomy below.
type ErrorKind string

const (
	ErrAuth            ErrorKind = "auth"
	ErrConfig          ErrorKind = "config"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrUpstreamTimeout ErrorKind = "upstream_timeout"
	ErrUpstreamError   ErrorKind = "upstream_error"
	ErrDeadline        ErrorKind = "deadline"
	ErrClientSlow      ErrorKind = "client_slow"
	ErrInternal        ErrorKind = "internal"
)

// Router selects candidate sources for a query.
type Router interface {
	Select(query model.Query) model.SelectionResult
}

// Orchestrator fans a query out to the selected sources.
type Orchestrator interface {
	Fetch(ctx context.Context, query model.Query, selection model.SelectionResult) []orchestrator.Result
}

// ContextBuilder packs retrieved documents into a token-budgeted context.
type ContextBuilder interface {
	Build(ctx context.Context, query string, bySource map[model.SourceId][]model.Document, tokenBudget int) (contextbuilder.Packed, error)
}

// TranscriptStore persists one finished turn. Failures are logged and
// swallowed per spec.md §7 — a persistence error must never surface as a
// query error.
type TranscriptStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn model.Turn) error
}

// StreamerFactory resolves the LLMStreamer for a user's chosen provider and
// credentials. It is a factory rather than a fixed dependency because the
// provider is a per-request Settings choice, not a process-wide one.
type StreamerFactory func(settings model.Settings) (llm.Streamer, error)

const (
	defaultTokenBudget       = 4000
	defaultHistoryTurnBudget = 6
	defaultFirstTokenTimeout = 20 * time.Second
)

// Pipeline wires the four retrieval-and-generation components together.
type Pipeline struct {
	router          Router
	orchestrator    Orchestrator
	contextBuilder  ContextBuilder
	streamerFactory StreamerFactory
	store           TranscriptStore

	systemPrompt      string
	tokenBudget       int
	historyTurnBudget int
	firstTokenTimeout time.Duration
	metrics           *metrics.Metrics
}

// WithMetrics attaches a collector set for stream duration, chunk counts,
// and terminal error kinds. Optional: a Pipeline built without it simply
// skips recording.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// New builds a Pipeline. store may be nil to disable transcript persistence
// (e.g. in tests).
func New(router Router, orch Orchestrator, cb ContextBuilder, streamerFactory StreamerFactory, store TranscriptStore, systemPrompt string, tokenBudget, historyTurnBudget int, firstTokenTimeout time.Duration) *Pipeline {
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	if historyTurnBudget <= 0 {
		historyTurnBudget = defaultHistoryTurnBudget
	}
	if firstTokenTimeout <= 0 {
		firstTokenTimeout = defaultFirstTokenTimeout
	}
	return &Pipeline{
		router:            router,
		orchestrator:      orch,
		contextBuilder:    cb,
		streamerFactory:   streamerFactory,
		store:             store,
		systemPrompt:      systemPrompt,
		tokenBudget:       tokenBudget,
		historyTurnBudget: historyTurnBudget,
		firstTokenTimeout: firstTokenTimeout,
	}
}

// Run executes the full §4.12 sequence for one query, writing every event
// to w. The returned error is nil whenever a terminal event (done or error)
// was successfully written — Run's own error return only signals that the
// SSE connection itself broke (client_slow / write failure), since at that
// point no further event can reach the client anyway.
func (p *Pipeline) Run(ctx context.Context, w *protocol.Writer, query model.Query, settings model.Settings, history []model.Turn) error {
	runStart := time.Now()
	if err := w.Start(); err != nil {
		return err
	}

	if !query.Deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, query.Deadline)
		defer cancel()
	}

	selection := p.router.Select(query)
	if err := w.Sources(selection.Sources); err != nil {
		return err
	}

	results := p.orchestrator.Fetch(ctx, query, selection)
	bySource := make(map[model.SourceId][]model.Document)
	for _, r := range results {
		if r.Err != nil {
			slog.Warn("pipeline: source fetch failed", "source", r.Source, "error", r.Err)
			continue
		}
		if len(r.Documents) > 0 {
			bySource[r.Source] = r.Documents
		}
	}

	if ctx.Err() != nil && len(bySource) == 0 {
		return p.terminateError(w, ErrDeadline, "query deadline exceeded during retrieval")
	}

	packed, err := p.contextBuilder.Build(ctx, query.Text, bySource, p.tokenBudget)
	if err != nil {
		return p.terminateError(w, ErrInternal, "failed to build context")
	}

	contextPayload := toContextPayload(packed)
	if err := w.Context(contextPayload); err != nil {
		return err
	}

	streamer, err := p.streamerFactory(settings)
	if err != nil {
		return p.terminateError(w, ErrConfig, err.Error())
	}

	messages := p.buildMessages(settings, packed, history, query.Text)
	params := llm.Params{Model: settings.LLMModel, APIKey: settings.LLMAPIKey}

	answer, chunks, streamErr := p.stream(ctx, w, streamer, messages, params)
	if streamErr != nil {
		kind, message := mapStreamError(streamErr)
		p.recordStream(settings.LLMProvider, runStart, chunks, "error")
		return p.terminateError(w, kind, message)
	}
	p.recordStream(settings.LLMProvider, runStart, chunks, "ok")

	if p.store != nil {
		turn := model.Turn{
			UserMessage: query.Text,
			BotResponse: answer,
			Sources:     selection.Sources,
			UsedSources: packed.UsedSources,
			Timestamp:   time.Now(),
		}
		go func() {
			persistCtx := context.WithoutCancel(ctx)
			if err := p.store.AppendTurn(persistCtx, query.SessionID, turn); err != nil {
				slog.Warn("pipeline: transcript persistence failed", "session_id", query.SessionID, "error", err)
			}
		}()
	}

	return w.Done(protocol.DonePayload{
		Sources:     selection.Sources,
		UsedSources: packed.UsedSources,
		Documents:   contextPayload.Documents,
	})
}

// stream forwards every LLMStreamer token as a "chunk" event, enforcing
// first_token_timeout on the first event only (a stream that has already
// started is not subject to a second timeout — spec.md §4.10 places the
// timeout at stream start, not per-token).
func (p *Pipeline) stream(ctx context.Context, w *protocol.Writer, streamer llm.Streamer, messages []llm.Message, params llm.Params) (string, int, error) {
	tokens, errs := streamer.Stream(ctx, messages, params)

	var answer string
	chunks := 0
	first := true
	for tokens != nil || errs != nil {
		var timeout <-chan time.Time
		if first {
			timer := time.NewTimer(p.firstTokenTimeout)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case tok, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			first = false
			answer += string(tok)
			chunks++
			if err := w.Chunk(string(tok)); err != nil {
				return answer, chunks, err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return answer, chunks, err
		case <-timeout:
			return answer, chunks, llm.NewStreamError(llm.KindUpstreamTimeout, errors.New("first token did not arrive within deadline"))
		case <-ctx.Done():
			return answer, chunks, ctx.Err()
		}
	}
	return answer, chunks, nil
}

func (p *Pipeline) recordStream(provider model.LLMProvider, start time.Time, chunks int, outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.StreamDuration.WithLabelValues(string(provider), outcome).Observe(time.Since(start).Seconds())
	if outcome == "ok" {
		p.metrics.StreamChunks.WithLabelValues(string(provider)).Observe(float64(chunks))
	}
}

func (p *Pipeline) recordQueryError(kind ErrorKind) {
	if p.metrics == nil {
		return
	}
	p.metrics.QueryErrorsTotal.WithLabelValues(string(kind)).Inc()
}

func (p *Pipeline) terminateError(w *protocol.Writer, kind ErrorKind, message string) error {
	p.recordQueryError(kind)
	return w.Error(string(kind), message)
}

// buildMessages assembles the ordered conversation per spec.md §4.12 step 3:
// system prompt, context block, bounded prior history, then the question.
func (p *Pipeline) buildMessages(settings model.Settings, packed contextbuilder.Packed, history []model.Turn, question string) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: p.systemPrompt}}

	if contextBlock := renderContextBlock(packed); contextBlock != "" {
		messages = append(messages, llm.Message{Role: "system", Content: contextBlock})
	}

	turns := history
	if len(turns) > p.historyTurnBudget {
		turns = turns[len(turns)-p.historyTurnBudget:]
	}
	for _, t := range turns {
		messages = append(messages,
			llm.Message{Role: "user", Content: t.UserMessage},
			llm.Message{Role: "assistant", Content: t.BotResponse},
		)
	}

	messages = append(messages, llm.Message{Role: "user", Content: question})
	return messages
}

func renderContextBlock(packed contextbuilder.Packed) string {
	if len(packed.Chunks) == 0 {
		return ""
	}
	block := "Use the following retrieved context to answer the question. Cite sources by title when relevant.\n\n"
	for _, c := range packed.Chunks {
		block += fmt.Sprintf("[%s: %s]\n%s\n\n", c.Source, c.Title, c.Text)
	}
	return block
}

func toContextPayload(packed contextbuilder.Packed) protocol.ContextPayload {
	seen := make(map[string]bool)
	var docs []protocol.ContextDocument
	for _, c := range packed.Chunks {
		key := string(c.Source) + "|" + c.DocID
		if seen[key] {
			continue
		}
		seen[key] = true
		docs = append(docs, protocol.ContextDocument{Source: c.Source, Title: c.Title, URL: c.URL})
	}
	return protocol.ContextPayload{
		Count:       len(packed.Chunks),
		UsedSources: packed.UsedSources,
		Documents:   docs,
	}
}

// mapStreamError folds an llm.ErrorKind (and any other stream-ending error,
// e.g. ctx.Err()) into the wire-level taxonomy.
func mapStreamError(err error) (ErrorKind, string) {
	var se *llm.StreamError
	if errors.As(err, &se) {
		switch se.Kind {
		case llm.KindAuth:
			return ErrAuth, se.Error()
		case llm.KindRateLimited:
			return ErrRateLimited, se.Error()
		case llm.KindUpstreamTimeout:
			return ErrUpstreamTimeout, se.Error()
		case llm.KindBadRequest, llm.KindUpstreamError:
			return ErrUpstreamError, se.Error()
		default:
			return ErrUpstreamError, se.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadline, "query deadline exceeded during generation"
	}
	return ErrUpstreamError, err.Error()
}
