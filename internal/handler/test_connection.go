package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/connexus-ai/raqa-orchestrator/internal/llm"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// connectionCheckTimeout bounds how long POST /test-connection waits for a
// first token before reporting the provider unreachable.
const connectionCheckTimeout = 10 * time.Second

// providerStatus is one component's entry in the test-connection report.
type providerStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type testConnectionResponse struct {
	LLM      providerStatus  `json:"llm"`
	VertexAI *providerStatus `json:"vertex_ai,omitempty"`
}

// VertexHealthChecker probes the process's own Vertex AI credentials
// (application-default credentials / service account), independent of any
// per-request Settings.LLMAPIKey the chosen provider's streamer uses.
// Satisfied by gcpclient.GenAIAdapter.
type VertexHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// TestConnection returns the POST /test-connection handler. It decodes a
// candidate Settings body and issues a minimal one-token probe against the
// chosen LLM provider, reporting ok/error without touching any source
// adapter or persisting anything. When vertexChecker is non-nil and the
// candidate provider is Gemini, it also reports the platform's own Vertex AI
// connectivity alongside the per-request provider check.
func TestConnection(streamerFactory func(model.Settings) (llm.Streamer, error), vertexChecker VertexHealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings model.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp := testConnectionResponse{LLM: probeLLM(r.Context(), streamerFactory, settings)}
		if vertexChecker != nil && settings.LLMProvider == model.ProviderGemini {
			status := probeVertexAI(r.Context(), vertexChecker)
			resp.VertexAI = &status
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

func probeVertexAI(ctx context.Context, checker VertexHealthChecker) providerStatus {
	ctx, cancel := context.WithTimeout(ctx, connectionCheckTimeout)
	defer cancel()
	if err := checker.HealthCheck(ctx); err != nil {
		return providerStatus{Status: "error", Message: err.Error()}
	}
	return providerStatus{Status: "ok", Message: "connected"}
}

func probeLLM(ctx context.Context, streamerFactory func(model.Settings) (llm.Streamer, error), settings model.Settings) providerStatus {
	streamer, err := streamerFactory(settings)
	if err != nil {
		return providerStatus{Status: "error", Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, connectionCheckTimeout)
	defer cancel()

	messages := []llm.Message{{Role: "user", Content: "ping"}}
	params := llm.Params{Model: settings.LLMModel, APIKey: settings.LLMAPIKey, MaxTokens: 1}

	tokens, errs := streamer.Stream(ctx, messages, params)
	select {
	case _, ok := <-tokens:
		if !ok {
			return providerStatus{Status: "error", Message: "stream closed before first token"}
		}
		return providerStatus{Status: "ok", Message: "connected"}
	case err, ok := <-errs:
		if ok && err != nil {
			return providerStatus{Status: "error", Message: err.Error()}
		}
		return providerStatus{Status: "ok", Message: "connected"}
	case <-ctx.Done():
		return providerStatus{Status: "error", Message: "timed out waiting for provider response"}
	}
}
