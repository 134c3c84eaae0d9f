package llm

import (
	"context"

	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
)

// ResilientStreamer wraps a Streamer with the CircuitBreaker, grounded in
// other_examples/.../resilient_client.go's ResilientClient.ChatStream: the
// breaker gates admission and observes only whether the stream produced its
// first byte before any error. A stream that starts successfully is never
// retried mid-flight — re-issuing a half-delivered stream would duplicate
// tokens already written to the client.
type ResilientStreamer struct {
	inner Streamer
	cb    *breaker.Breaker
}

// NewResilientStreamer wraps inner with cb. cb is typically
// breakers.For(string(provider)) from a shared breaker.Registry.
func NewResilientStreamer(inner Streamer, cb *breaker.Breaker) *ResilientStreamer {
	return &ResilientStreamer{inner: inner, cb: cb}
}

// Stream admits the call through the breaker, then watches the inner
// stream's first event to decide the breaker outcome: a first Token means
// success, a first-event error means failure. Every event after the first
// is passed through unreported — the breaker has already made its call for
// this request.
func (r *ResilientStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	if !r.cb.Allow() {
		close(tokens)
		errs <- NewStreamError(KindUpstreamError, errCircuitOpen)
		close(errs)
		return tokens, errs
	}

	innerTokens, innerErrs := r.inner.Stream(ctx, messages, params)

	go func() {
		defer close(tokens)
		defer close(errs)

		reported := false
		report := func(success bool) {
			if !reported {
				r.cb.Report(success)
				reported = true
			}
		}

		for {
			select {
			case tok, ok := <-innerTokens:
				if !ok {
					innerTokens = nil
					if innerErrs == nil {
						report(true)
						return
					}
					continue
				}
				report(true)
				select {
				case tokens <- tok:
				case <-ctx.Done():
					return
				}
			case err, ok := <-innerErrs:
				if !ok {
					innerErrs = nil
					if innerTokens == nil {
						report(true)
						return
					}
					continue
				}
				report(false)
				select {
				case errs <- err:
				case <-ctx.Done():
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errs
}

var errCircuitOpen = streamerError("llm: circuit open, provider unavailable")

type streamerError string

func (e streamerError) Error() string { return string(e) }
