// Package router assembles the chi.Mux exposing the external HTTP/SSE
// interfaces of SPEC_FULL §6, wiring middleware and handler.Dependencies
// the way the teacher's router.New does — generalized from its large
// business-specific Dependencies struct down to the much smaller set of
// components this orchestrator actually has.
package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/raqa-orchestrator/internal/authsvc"
	"github.com/connexus-ai/raqa-orchestrator/internal/handler"
	"github.com/connexus-ai/raqa-orchestrator/internal/llm"
	"github.com/connexus-ai/raqa-orchestrator/internal/middleware"
	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// Dependencies holds every injected component the router wires into
// handlers.
type Dependencies struct {
	DB      handler.DBPinger
	Version string

	Pipeline        handler.QueryRunner
	Store           interface {
		handler.SettingsSource
		handler.SettingsWriter
		handler.HistorySource
		handler.HistoryDeleter
	}
	StreamerFactory func(model.Settings) (llm.Streamer, error)
	QueryDeadline   time.Duration

	AuthService        *authsvc.Service
	InternalAuthSecret string
	CORSOrigins        []string

	Metrics    *middleware.Metrics
	MetricsReg *prometheus.Registry

	ChatRateLimiter    *middleware.RateLimiter
	GeneralRateLimiter *middleware.RateLimiter

	// VertexHealthChecker is optional: nil disables the vertex_ai field in
	// POST /test-connection's response (e.g. when Vertex AI credentials are
	// not configured for this process).
	VertexHealthChecker handler.VertexHealthChecker
}

// New builds the configured chi.Mux.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.CORSOrigins))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOrFirebaseAuth(deps.AuthService, deps.InternalAuthSecret))
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		timeout30s := middleware.Timeout(30 * time.Second)

		// Chat — SSE streaming, no write timeout (a long-running generation
		// must not be cut off mid-stream). Its own, stricter rate limit.
		chatStream := handler.ChatStream(deps.Pipeline, deps.Store, deps.Store, deps.QueryDeadline)
		chat := handler.Chat(deps.Pipeline, deps.Store, deps.Store, deps.QueryDeadline)
		if deps.ChatRateLimiter != nil {
			r.With(middleware.RateLimit(deps.ChatRateLimiter)).Post("/chat/stream", chatStream)
			r.With(middleware.RateLimit(deps.ChatRateLimiter), timeout30s).Post("/chat", chat)
		} else {
			r.Post("/chat/stream", chatStream)
			r.With(timeout30s).Post("/chat", chat)
		}

		r.With(timeout30s).Get("/chat/history/{session_id}", handler.History(deps.Store))
		r.With(timeout30s).Delete("/chat/history/{session_id}", handler.DeleteHistory(deps.Store))

		r.With(timeout30s).Get("/settings/{user_id}", handler.GetSettings(deps.Store))
		r.With(timeout30s).Post("/settings", handler.PostSettings(deps.Store))

		r.With(middleware.Timeout(15 * time.Second)).Post("/test-connection", handler.TestConnection(deps.StreamerFactory, deps.VertexHealthChecker))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "route not found"})
	})

	return r
}
