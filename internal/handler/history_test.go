package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

type fakeTranscriptStore struct {
	turns     []model.Turn
	historyErr error
	deleteErr error
	deletedID string
}

func (f fakeTranscriptStore) History(ctx context.Context, sessionID string) ([]model.Turn, error) {
	return f.turns, f.historyErr
}

func (f *fakeTranscriptStore) DeleteHistory(ctx context.Context, sessionID string) error {
	f.deletedID = sessionID
	return f.deleteErr
}

func TestHistory_ReturnsTurns(t *testing.T) {
	store := fakeTranscriptStore{turns: []model.Turn{{UserMessage: "hi", BotResponse: "hello"}}}

	r := chi.NewRouter()
	r.Get("/chat/history/{session_id}", History(store))

	req := httptest.NewRequest(http.MethodGet, "/chat/history/sess-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp historyResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.History) != 1 || resp.History[0].UserMessage != "hi" {
		t.Errorf("History = %+v", resp.History)
	}
}

func TestHistory_StoreError(t *testing.T) {
	store := fakeTranscriptStore{historyErr: errors.New("redis down")}

	r := chi.NewRouter()
	r.Get("/chat/history/{session_id}", History(store))

	req := httptest.NewRequest(http.MethodGet, "/chat/history/sess-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestDeleteHistory_OK(t *testing.T) {
	store := &fakeTranscriptStore{}

	r := chi.NewRouter()
	r.Delete("/chat/history/{session_id}", DeleteHistory(store))

	req := httptest.NewRequest(http.MethodDelete, "/chat/history/sess-9", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.deletedID != "sess-9" {
		t.Errorf("deletedID = %q, want sess-9", store.deletedID)
	}
}
