package handler

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes v as the JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorPayload is the JSON shape for a handler-level failure, distinct from
// pipeline's in-stream ErrorPayload (see internal/protocol) — these are
// plain HTTP errors returned before any SSE stream starts.
type errorPayload struct {
	Error string `json:"error"`
}

// respondError writes a JSON {"error": message} body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorPayload{Error: message})
}
