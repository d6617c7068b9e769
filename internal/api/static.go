package api

import (
	"net/http"
	"time"

	"github.com/swarmgate/safeguard/internal/enforcer"
)

// EnforcerProvider returns the current enforcer. Implementations may swap it
// at runtime, which is how policy file hot reload reaches in-flight traffic.
type EnforcerProvider func() *enforcer.Enforcer

// NewStaticRouter serves the check endpoint against a file-backed policy
// with no auth and no persistence. This is the mode the server runs in when
// Postgres is not configured.
func NewStaticRouter(deps *Dependencies, provider EnforcerProvider) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/safeguard/check", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		req, category, message, ok := decodeCheckRequest(w, r)
		if !ok {
			return
		}

		enf := provider()
		if enf == nil {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "No policy loaded"})
			return
		}

		proj := &authProject{Mode: "enforce", Enforcer: enf}
		deps.runCheck(w, r, proj, category, req, message, start)
	})

	mux.HandleFunc("POST /api/safeguard/validate", deps.handleValidatePolicy)

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
