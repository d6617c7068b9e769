package api

import (
	"net/http"
	"time"

	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/guardrail"
	"github.com/swarmgate/safeguard/internal/metrics"
	"github.com/swarmgate/safeguard/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    *store.Store
	Sink     events.Sink
	Reader   *events.Reader       // nil if ClickHouse unavailable
	Checker  guardrail.ChatClient // nil disables llm check rules
	Masker   guardrail.ChatClient // nil disables llm mask fallback
	Metrics  *metrics.Sink        // nil disables the /metrics route
	Logger   *zap.Logger
	CacheTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Check endpoint (auth required via Bearer swk_ token)
	mux.HandleFunc("POST /v1/safeguard/check", deps.authMiddleware(deps.handleCheck))

	// Project CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/safeguard/projects", deps.handleCreateProject)
	mux.HandleFunc("GET /api/safeguard/projects", deps.handleListProjects)
	mux.HandleFunc("GET /api/safeguard/projects/{project_id}", deps.handleGetProject)
	mux.HandleFunc("PATCH /api/safeguard/projects/{project_id}", deps.handleUpdateProject)
	mux.HandleFunc("DELETE /api/safeguard/projects/{project_id}", deps.handleDeleteProject)
	mux.HandleFunc("POST /api/safeguard/projects/{project_id}/rotate-key", deps.handleRotateKey)

	// Policy CRUD (no auth)
	mux.HandleFunc("GET /api/safeguard/projects/{project_id}/policy", deps.handleGetPolicy)
	mux.HandleFunc("PUT /api/safeguard/projects/{project_id}/policy", deps.handleReplacePolicy)
	mux.HandleFunc("POST /api/safeguard/validate", deps.handleValidatePolicy)

	// Events & Analytics (no auth)
	mux.HandleFunc("GET /api/safeguard/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/safeguard/events/{event_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/safeguard/analytics", deps.handleGetAnalytics)

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
