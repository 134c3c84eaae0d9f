package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/raqa-orchestrator/internal/llm"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/protocol"
)

const testSecret = "router-test-secret"

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }

type fakeRunner struct {
	onRun func(ctx context.Context, w *protocol.Writer) error
}

func (f fakeRunner) Run(ctx context.Context, w *protocol.Writer, query model.Query, settings model.Settings, history []model.Turn) error {
	if f.onRun != nil {
		return f.onRun(ctx, w)
	}
	w.Start()
	return w.Done(protocol.DonePayload{})
}

type fakeStore struct{}

func (fakeStore) GetSettings(ctx context.Context, userID string) (model.Settings, error) {
	return model.Settings{}, nil
}
func (fakeStore) PutSettings(ctx context.Context, userID string, settings model.Settings) error {
	return nil
}
func (fakeStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	return nil, nil
}
func (fakeStore) DeleteHistory(ctx context.Context, sessionID string) error {
	return nil
}

func newTestDeps() *Dependencies {
	return &Dependencies{
		DB:                 fakeDB{},
		Version:            "test",
		Pipeline:           fakeRunner{},
		Store:              fakeStore{},
		StreamerFactory:    func(model.Settings) (llm.Streamer, error) { return nil, nil },
		InternalAuthSecret: testSecret,
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	r := New(newTestDeps())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	r := New(newTestDeps())
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response was not JSON: %v", err)
	}
	if body["error"] == "" {
		t.Error("expected a non-empty error message")
	}
}

func TestRouter_ChatWithoutAuthIsRejected(t *testing.T) {
	r := New(newTestDeps())
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_ChatStreamWithInternalAuth(t *testing.T) {
	deps := newTestDeps()
	r := New(deps)

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-Internal-Auth", testSecret)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestRouter_ChatStreamWrongInternalSecretIsRejected(t *testing.T) {
	deps := newTestDeps()
	r := New(deps)

	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_SettingsRoundTripWithInternalAuth(t *testing.T) {
	deps := newTestDeps()
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/settings/user-1", nil)
	req.Header.Set("X-Internal-Auth", testSecret)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body = %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_MetricsEndpointRegisteredWhenConfigured(t *testing.T) {
	deps := newTestDeps()
	reg := prometheus.NewRegistry()
	deps.MetricsReg = reg

	r := New(deps)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_MetricsEndpointAbsentWhenNotConfigured(t *testing.T) {
	r := New(newTestDeps())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when no metrics registry is configured", rec.Code)
	}
}
