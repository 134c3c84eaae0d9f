package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/store"
)

// SettingsWriter persists a user's Settings.
type SettingsWriter interface {
	PutSettings(ctx context.Context, userID string, settings model.Settings) error
}

// GetSettings returns the GET /settings/{user_id} handler. A user with no
// saved settings gets the zero-value Settings back rather than a 404 — the
// client renders that as "use defaults".
func GetSettings(settingsSrc SettingsSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		settings, err := settingsSrc.GetSettings(r.Context(), userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		respondJSON(w, http.StatusOK, settings)
	}
}

// PostSettings returns the POST /settings?user_id=<string> handler.
func PostSettings(settingsDst SettingsWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		var settings model.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := settingsDst.PutSettings(r.Context(), userID, settings); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
