// Package llm implements LLMStreamer: a thin, provider-neutral layer over
// the supported language-model families, per SPEC_FULL §4.10/§4.10a. Four
// provider adapters (google_gemini, openai_compatible, anthropic,
// ollama_local) satisfy the same Streamer contract; a ResilientStreamer
// wraps any of them with circuit-breaker protection around the first byte
// of a stream.
package llm

import (
	"context"
	"fmt"
)

// Message is one entry in the ordered conversation handed to the provider,
// including the assembled system/context message.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Token is an incremental text fragment produced by a provider.
type Token string

// Params carries the per-request knobs a provider adapter needs. BaseURL
// overrides the default endpoint (used by openai_compatible for self-hosted
// gateways, and by ollama_local for a non-default host).
type Params struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// ErrorKind is the closed set of provider-error classifications every
// adapter must map its failures into, per spec.md §4.10.
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"
	KindRateLimited     ErrorKind = "rate_limited"
	KindBadRequest      ErrorKind = "bad_request"
	KindUpstreamTimeout ErrorKind = "upstream_timeout"
	KindUpstreamError   ErrorKind = "upstream_error"
)

// StreamError pairs a mapped ErrorKind with the underlying cause so callers
// get both a stable wire-safe kind and a loggable message.
type StreamError struct {
	Kind ErrorKind
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError wraps err with kind unless err is nil, in which case it
// returns nil.
func NewStreamError(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &StreamError{Kind: kind, Err: err}
}

// Streamer is the contract every provider adapter and the ResilientStreamer
// wrapper satisfy.
type Streamer interface {
	// Stream begins a completion request and returns a channel of text
	// fragments and a channel that carries at most one terminal error.
	// Both channels are closed when the stream ends. Cancelling ctx stops
	// the upstream request and closes both channels promptly.
	Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error)
}

// ProviderName is the closed set of supported LLMStreamer providers. Its
// values differ from model.LLMProvider's wire values; New maps each
// model.LLMProvider onto one ProviderName, which also keys its breaker.
type ProviderName string

const (
	ProviderOpenAICompatible ProviderName = "openai_compatible"
	ProviderAnthropic        ProviderName = "anthropic"
	ProviderGoogleGemini     ProviderName = "google_gemini"
	ProviderOllamaLocal      ProviderName = "ollama_local"
)

// httpStatusKind maps a provider's HTTP status code to the closed error
// set. Adapters that parse a structured error body may refine this further
// (e.g. distinguishing a quota error from a generic 429).
func httpStatusKind(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimited
	case status >= 400 && status < 500:
		return KindBadRequest
	case status == 504:
		return KindUpstreamTimeout
	default:
		return KindUpstreamError
	}
}
