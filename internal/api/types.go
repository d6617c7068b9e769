package api

import (
	"encoding/json"
	"time"

	"github.com/swarmgate/safeguard/internal/events"
)

// --- POST /v1/safeguard/check request/response ---

// CheckRequest is the JSON body for POST /v1/safeguard/check.
//
// Category picks the boundary being checked: agent_transition,
// tool_interaction, llm_interaction, or user_interaction. Message carries
// the content under check and keeps whatever shape the caller's framework
// uses (plain string, chat dict, or a list of them).
type CheckRequest struct {
	Category    string          `json:"category"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Message     json.RawMessage `json:"message"`
	TraceID     string          `json:"trace_id,omitempty"`
}

// CheckResponse reports the safeguard verdict for one message.
//
// Message is the content the caller should deliver downstream. When no rule
// triggered it echoes the request message; when one did, it is the rewritten
// message unless the project runs in monitor mode, in which case the original
// passes through and the verdict fields report what enforce mode would have
// done.
type CheckResponse struct {
	Triggered bool    `json:"triggered"`
	Action    *string `json:"action"`
	Reason    *string `json:"reason"`
	Message   any     `json:"message"`
	RequestID string  `json:"request_id"`
	IsMonitor bool    `json:"is_monitor"`
	LatencyMs float64 `json:"latency_ms"`
}

// --- Project CRUD ---

// CreateProjectReq is the JSON body for POST /api/safeguard/projects.
type CreateProjectReq struct {
	Name string `json:"name"`
}

// CreateProjectResp includes the plaintext API key (shown once).
type CreateProjectResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateProjectReq is the JSON body for PATCH /api/safeguard/projects/{id}.
type UpdateProjectReq struct {
	Name *string `json:"name,omitempty"`
	Mode *string `json:"mode,omitempty"`
}

// ProjectResp is the project view without the plaintext key.
type ProjectResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Policy CRUD ---

// PolicyResp wraps a project's stored policy document.
type PolicyResp struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ValidatePolicyResp reports the outcome of a policy dry run.
type ValidatePolicyResp struct {
	Valid            bool   `json:"valid"`
	InterAgentRules  int    `json:"inter_agent_rules"`
	EnvironmentRules int    `json:"environment_rules"`
	Error            string `json:"error,omitempty"`
}

// --- Events & Analytics ---

// EventListResp is a page of safeguard events.
type EventListResp struct {
	Events   []events.EventRow `json:"events"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
