package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/policy"
)

// categoryMap maps category strings from the HTTP API to policy categories.
var categoryMap = map[string]policy.Category{
	"agent_transition":  policy.CategoryAgentTransition,
	"groupchat_message": policy.CategoryGroupchatMessage,
	"tool_interaction":  policy.CategoryToolInteraction,
	"llm_interaction":   policy.CategoryLLMInteraction,
	"user_interaction":  policy.CategoryUserInteraction,
}

// handleCheck implements POST /v1/safeguard/check.
// Auth middleware has already validated the Bearer token and injected the
// project with its compiled enforcer.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, category, message, ok := decodeCheckRequest(w, r)
	if !ok {
		return
	}

	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}

	d.runCheck(w, r, proj, category, req, message, start)
}

// runCheck executes one safeguard check against the given project context
// and writes the HTTP response. Shared by the authenticated and static
// check handlers.
func (d *Dependencies) runCheck(
	w http.ResponseWriter,
	r *http.Request,
	proj *authProject,
	category policy.Category,
	req CheckRequest,
	message any,
	start time.Time,
) {
	// Tee enforcer events into a per-request recorder so the response can
	// report which rule verdict fired. The shared sink keeps receiving them.
	rec := &verdictRecorder{}
	enf := proj.Enforcer.WithSink(events.NewMultiSink(
		&projectSink{inner: d.Sink, projectID: proj.ID},
		rec,
	))

	var result any
	var err error
	switch category {
	case policy.CategoryAgentTransition, policy.CategoryGroupchatMessage:
		// Returns nil when no rule rewrote the message; a warn verdict still
		// lands in the recorder.
		result, err = enf.CheckAndAct(r.Context(), req.Source, req.Destination, message)
	default:
		result, _, err = enf.CheckInteraction(r.Context(),
			category, req.Source, req.Destination, contentOf(message), message)
	}
	if err != nil {
		// Fail closed: a guardrail that cannot run never lets content through.
		d.Logger.Error("safeguard check failed", zapError(err))
		writeJSON(w, http.StatusBadGateway, ErrorResp{Detail: "Safeguard check failed"})
		return
	}

	action, reason := rec.verdict()
	triggered := action != nil

	responseMessage := message
	isMonitor := false
	if triggered {
		if proj.Mode == "monitor" {
			isMonitor = true
		} else if result != nil {
			responseMessage = result
		}
	}

	elapsed := time.Since(start)
	if d.Metrics != nil {
		d.Metrics.ObserveCheckLatency(elapsed)
	}
	writeJSON(w, http.StatusOK, CheckResponse{
		Triggered: triggered,
		Action:    action,
		Reason:    reason,
		Message:   responseMessage,
		RequestID: uuid.New().String(),
		IsMonitor: isMonitor,
		LatencyMs: float64(elapsed) / float64(time.Millisecond),
	})
}

// decodeCheckRequest reads and validates the check body. On failure it
// writes the 400 response and returns ok=false.
func decodeCheckRequest(w http.ResponseWriter, r *http.Request) (CheckRequest, policy.Category, any, bool) {
	var req CheckRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return req, 0, nil, false
	}
	category, ok := categoryMap[req.Category]
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "category must be one of agent_transition, groupchat_message, tool_interaction, llm_interaction, user_interaction"})
		return req, 0, nil, false
	}
	if req.Source == "" || req.Destination == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "source and destination are required"})
		return req, 0, nil, false
	}
	if len(req.Message) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "message is required"})
		return req, 0, nil, false
	}

	var message any
	if err := json.Unmarshal(req.Message, &message); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "message is not valid JSON"})
		return req, 0, nil, false
	}
	return req, category, message, true
}

// contentOf renders a message as the text a regex or LLM guardrail scans.
// Strings pass through; structured messages are scanned as their JSON form.
func contentOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// verdictRecorder captures the violation and action events of one check.
type verdictRecorder struct {
	mu     sync.Mutex
	action string
	reason string
}

func (r *verdictRecorder) Send(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch event.Type {
	case events.TypeViolation:
		r.reason = event.Message
	case events.TypeAction:
		r.action = event.Action
	}
}

func (r *verdictRecorder) Close() {}

func (r *verdictRecorder) verdict() (action, reason *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.action != "" {
		a := r.action
		action = &a
	}
	if r.reason != "" {
		re := r.reason
		reason = &re
	}
	return action, reason
}
