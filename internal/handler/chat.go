package handler

import (
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
	"github.com/connexus-ai/raqa-orchestrator/internal/protocol"
)

// chatResponse is the non-streaming POST /chat body: the same information
// the SSE path delivers incrementally, collapsed into one JSON object.
type chatResponse struct {
	SessionID   string                     `json:"session_id"`
	Response    string                     `json:"response"`
	Sources     []model.SourceId           `json:"sources"`
	UsedSources []model.SourceId           `json:"used_sources"`
	Documents   []protocol.ContextDocument `json:"documents"`
}

// Chat returns the non-streaming handler for POST /chat. It runs the same
// QueryRunner as ChatStream against an in-memory SSE sink (httptest.Recorder
// satisfies http.Flusher via its no-op Flush), then re-assembles the
// recorded events into a single JSON response — spec.md's implementation
// note for the non-streaming path.
func Chat(pipeline QueryRunner, settingsSrc SettingsSource, historySrc HistorySource, queryDeadline time.Duration) http.HandlerFunc {
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

		rec := httptest.NewRecorder()
		sw, err := protocol.NewWriter(rec)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if err := pipeline.Run(r.Context(), sw, query, settings, history); err != nil {
			respondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		events, err := protocol.ParseEvents(rec.Body.Bytes())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to assemble response")
			return
		}

		resp, errPayload, ok := assembleChatResponse(events)
		if !ok {
			respondError(w, mapErrorKindStatus(errPayload.Kind), errPayload.Message)
			return
		}
		resp.SessionID = query.SessionID
		respondJSON(w, http.StatusOK, resp)
	}
}

// assembleChatResponse replays a recorded event stream into a single
// chatResponse. ok is false when the stream ended in an "error" event,
// in which case errPayload carries the terminal failure.
func assembleChatResponse(events []protocol.Event) (chatResponse, protocol.ErrorPayload, bool) {
	var resp chatResponse
	for _, ev := range events {
		switch ev.Type {
		case protocol.EventChunk:
			var chunk protocol.ChunkPayload
			if err := ev.Unmarshal(&chunk); err == nil {
				resp.Response += chunk.Text
			}
		case protocol.EventContext:
			var ctxPayload protocol.ContextPayload
			if err := ev.Unmarshal(&ctxPayload); err == nil {
				resp.Documents = ctxPayload.Documents
			}
		case protocol.EventDone:
			var done protocol.DonePayload
			if err := ev.Unmarshal(&done); err == nil {
				resp.Sources = done.Sources
				resp.UsedSources = done.UsedSources
				if len(done.Documents) > 0 {
					resp.Documents = done.Documents
				}
			}
		case protocol.EventError:
			var errPayload protocol.ErrorPayload
			ev.Unmarshal(&errPayload)
			return chatResponse{}, errPayload, false
		}
	}
	return resp, protocol.ErrorPayload{}, true
}

// mapErrorKindStatus maps a pipeline ErrorKind to the HTTP status the
// non-streaming path reports it under, since there is no SSE "error" event
// to carry the kind out-of-band here.
func mapErrorKindStatus(kind string) int {
	switch kind {
	case "auth":
		return http.StatusUnauthorized
	case "rate_limited":
		return http.StatusTooManyRequests
	case "config":
		return http.StatusBadRequest
	case "upstream_timeout", "deadline":
		return http.StatusGatewayTimeout
	case "client_slow":
		return http.StatusRequestTimeout
	default:
		return http.StatusBadGateway
	}
}
