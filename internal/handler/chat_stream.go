package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/protocol"
	"github.com/connexus-ai/raqa-orchestrator/internal/store"
)

// QueryRunner is the subset of pipeline.Pipeline the chat handlers need.
// Modeling it as an interface keeps handler tests free of the full
// retrieval/generation stack.
type QueryRunner interface {
	Run(ctx context.Context, w *protocol.Writer, query model.Query, settings model.Settings, history []model.Turn) error
}

// SettingsSource resolves a user's saved Settings, falling back to a zero
// value (and thus the configured default provider) when none are saved.
type SettingsSource interface {
	GetSettings(ctx context.Context, userID string) (model.Settings, error)
}

// HistorySource resolves a session's prior transcript for prompt assembly.
type HistorySource interface {
	History(ctx context.Context, sessionID string) ([]model.Turn, error)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// loadQuery decodes the common {message, session_id} body and resolves the
// caller's settings and prior history, shared by both the streaming and
// non-streaming chat endpoints.
func loadQuery(r *http.Request, settingsSrc SettingsSource, historySrc HistorySource, queryDeadline time.Duration) (model.Query, model.Settings, []model.Turn, error) {
	userID := r.URL.Query().Get("user_id")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.Query{}, model.Settings{}, nil, errBadRequest{err}
	}

	settings, err := settingsSrc.GetSettings(r.Context(), userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// A lookup failure other than "not found" is swallowed to defaults —
		// a broken settings read must never block a chat request.
		settings = model.Settings{}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		// A fresh conversation has no session yet — mint one so the client
		// can address it in subsequent turns without generating its own ID.
		sessionID = uuid.NewString()
	}

	history, err := historySrc.History(r.Context(), sessionID)
	if err != nil {
		history = nil
	}

	query := model.Query{
		Text:      req.Message,
		SessionID: sessionID,
		UserID:    userID,
	}
	if queryDeadline > 0 {
		query.Deadline = time.Now().Add(queryDeadline)
	}
	return query, settings, history, nil
}

type errBadRequest struct{ err error }

func (e errBadRequest) Error() string { return e.err.Error() }

// ChatStream returns the SSE streaming handler for POST /chat/stream.
func ChatStream(pipeline QueryRunner, settingsSrc SettingsSource, historySrc HistorySource, queryDeadline time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, settings, history, err := loadQuery(r, settingsSrc, historySrc, queryDeadline)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if query.Text == "" {
			respondError(w, http.StatusBadRequest, "message is required")
			return
		}

		// Set before NewWriter, since it writes response headers.
		w.Header().Set("X-Session-Id", query.SessionID)

		sw, err := protocol.NewWriter(w)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		if err := pipeline.Run(r.Context(), sw, query, settings, history); err != nil {
			// The SSE connection itself broke (client disconnect, write
			// failure) after headers were already sent — nothing further
			// can be written to the client at this point.
			return
		}
	}
}
