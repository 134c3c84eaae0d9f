package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collectTokens(t *testing.T, tokens <-chan Token, errs <-chan error) ([]string, error) {
	t.Helper()
	var got []string
	var err error
	for tokens != nil || errs != nil {
		select {
		case tok, ok := <-tokens:
			if !ok {
				tokens = nil
				continue
			}
			got = append(got, string(tok))
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			err = e
		}
	}
	return got, err
}

func TestGeminiStreamer_ParsesSSEFramesUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"lo"}]}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := srv.Client()
	client.Transport = rewriteHostTransport{target: srv.URL}
	g := NewGeminiStreamer(client, "proj", "global")

	tokens, errs := g.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, Params{Model: "gemini-2.5-flash", APIKey: "k"})
	got, err := collectTokens(t, tokens, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "Hello" {
		t.Errorf("got %q, want %q", strings.Join(got, ""), "Hello")
	}
}

// rewriteHostTransport redirects every request to target regardless of the
// original URL, so provider adapters that hardcode a production host can be
// exercised against an httptest.Server.
type rewriteHostTransport struct {
	target string
}

func (rt rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL := rt.target + req.URL.Path
	if req.URL.RawQuery != "" {
		targetURL += "?" + req.URL.RawQuery
	}
	redirected, err := http.NewRequestWithContext(req.Context(), req.Method, targetURL, req.Body)
	if err != nil {
		return nil, err
	}
	redirected.Header = req.Header
	return http.DefaultTransport.RoundTrip(redirected)
}

func TestOpenAIStreamer_ParsesSSEFramesUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"foo"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"bar"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := NewOpenAIStreamer(srv.Client())
	tokens, errs := o.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, Params{Model: "gpt-x", APIKey: "k", BaseURL: srv.URL})
	got, err := collectTokens(t, tokens, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "foobar" {
		t.Errorf("got %q, want %q", strings.Join(got, ""), "foobar")
	}
}

func TestOpenAIStreamer_MapsNonOKStatusToErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	o := NewOpenAIStreamer(srv.Client())
	tokens, errs := o.Stream(context.Background(), nil, Params{BaseURL: srv.URL})
	_, err := collectTokens(t, tokens, errs)

	var se *StreamError
	if err == nil {
		t.Fatal("expected an error")
	}
	if !asStreamError(err, &se) {
		t.Fatalf("error is not a *StreamError: %v", err)
	}
	if se.Kind != KindRateLimited {
		t.Errorf("kind = %s, want rate_limited", se.Kind)
	}
}

func asStreamError(err error, target **StreamError) bool {
	if se, ok := err.(*StreamError); ok {
		*target = se
		return true
	}
	return false
}

func TestAnthropicStreamer_ParsesContentBlockDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" there"}}`+"\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {"type":"message_stop"}`+"\n\n")
	}))
	defer srv.Close()

	a := NewAnthropicStreamer(srv.Client())
	tokens, errs := a.Stream(context.Background(), []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}}, Params{Model: "claude-x", APIKey: "k", BaseURL: srv.URL})
	got, err := collectTokens(t, tokens, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "Hi there" {
		t.Errorf("got %q, want %q", strings.Join(got, ""), "Hi there")
	}
}

func TestOllamaStreamer_ParsesJSONLinesUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"content":"ab"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"content":"cd"},"done":false}`+"\n")
		fmt.Fprint(w, `{"message":{"content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	o := NewOllamaStreamer(srv.Client())
	tokens, errs := o.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}, Params{Model: "llama3", BaseURL: srv.URL})
	got, err := collectTokens(t, tokens, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, "") != "abcd" {
		t.Errorf("got %q, want %q", strings.Join(got, ""), "abcd")
	}
}
