package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/connexus-ai/raqa-orchestrator/internal/breaker"
)

type stubStreamer struct {
	tokens []Token
	err    error
	delay  time.Duration
}

func (s stubStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)
	go func() {
		defer close(tokens)
		defer close(errs)
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return
			}
		}
		for _, tok := range s.tokens {
			select {
			case tokens <- tok:
			case <-ctx.Done():
				return
			}
		}
		if s.err != nil {
			errs <- s.err
		}
	}()
	return tokens, errs
}

func drain(t *testing.T, tokens <-chan Token, errs <-chan error) ([]Token, error) {
	t.Helper()
	var got []Token
	var err error
	tokOpen, errOpen := true, true
	for tokOpen || errOpen {
		select {
		case tok, ok := <-tokens:
			if !ok {
				tokOpen = false
				tokens = nil
				continue
			}
			got = append(got, tok)
		case e, ok := <-errs:
			if !ok {
				errOpen = false
				errs = nil
				continue
			}
			err = e
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining streamer")
		}
	}
	return got, err
}

func TestResilientStreamer_PassesThroughTokensOnSuccess(t *testing.T) {
	inner := stubStreamer{tokens: []Token{"hello", " world"}}
	r := NewResilientStreamer(inner, breaker.New(breaker.DefaultConfig()))

	tokens, errs := r.Stream(context.Background(), nil, Params{})
	got, err := drain(t, tokens, errs)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "hello" || got[1] != " world" {
		t.Errorf("got %v, want [hello, world]", got)
	}
}

func TestResilientStreamer_RecordsFailureOnFirstByteError(t *testing.T) {
	inner := stubStreamer{err: NewStreamError(KindUpstreamError, errors.New("boom"))}
	cb := breaker.New(breaker.Config{FailureThreshold: 0.1, MinSamples: 1, WindowSize: 5, CoolDown: time.Minute, CoolDownMax: time.Minute})
	r := NewResilientStreamer(inner, cb)

	tokens, errs := r.Stream(context.Background(), nil, Params{})
	_, err := drain(t, tokens, errs)
	if err == nil {
		t.Fatal("expected streamer error")
	}

	if cb.Allow() {
		t.Error("expected breaker to trip open after first-byte failure")
	}
}

func TestResilientStreamer_OpenCircuitRejectsWithoutCallingInner(t *testing.T) {
	called := false
	inner := callTrackingStreamer{called: &called}
	cb := breaker.New(breaker.Config{FailureThreshold: 0.1, MinSamples: 1, WindowSize: 5, CoolDown: time.Minute, CoolDownMax: time.Minute})
	cb.Report(false) // one failure trips a MinSamples=1 breaker

	r := NewResilientStreamer(inner, cb)
	tokens, errs := r.Stream(context.Background(), nil, Params{})
	_, err := drain(t, tokens, errs)

	if err == nil {
		t.Fatal("expected open-circuit error")
	}
	if called {
		t.Error("inner streamer should not have been called with an open circuit")
	}
}

type callTrackingStreamer struct {
	called *bool
}

func (c callTrackingStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	*c.called = true
	tokens := make(chan Token)
	errs := make(chan error)
	close(tokens)
	close(errs)
	return tokens, errs
}

func TestResilientStreamer_CancelStopsStreamPromptly(t *testing.T) {
	inner := stubStreamer{tokens: []Token{"a"}, delay: time.Second}
	r := NewResilientStreamer(inner, breaker.New(breaker.DefaultConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	tokens, errs := r.Stream(ctx, nil, Params{})
	cancel()

	done := make(chan struct{})
	go func() {
		drain(t, tokens, errs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancellation did not stop the stream promptly")
	}
}

func TestHTTPStatusKind(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindAuth,
		403: KindAuth,
		429: KindRateLimited,
		400: KindBadRequest,
		504: KindUpstreamTimeout,
		500: KindUpstreamError,
	}
	for status, want := range cases {
		if got := httpStatusKind(status); got != want {
			t.Errorf("httpStatusKind(%d) = %s, want %s", status, got, want)
		}
	}
}
