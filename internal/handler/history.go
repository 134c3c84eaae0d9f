package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// historyResponse is the GET /chat/history/{session_id} body.
type historyResponse struct {
	History []model.Turn `json:"history"`
}

// HistoryDeleter deletes a session's transcript.
type HistoryDeleter interface {
	DeleteHistory(ctx context.Context, sessionID string) error
}

// History returns the GET /chat/history/{session_id} handler.
func History(store HistorySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if sessionID == "" {
			respondError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		turns, err := store.History(r.Context(), sessionID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		respondJSON(w, http.StatusOK, historyResponse{History: turns})
	}
}

// DeleteHistory returns the DELETE /chat/history/{session_id} handler.
func DeleteHistory(store HistoryDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		if sessionID == "" {
			respondError(w, http.StatusBadRequest, "session_id is required")
			return
		}
		if err := store.DeleteHistory(r.Context(), sessionID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete history")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
