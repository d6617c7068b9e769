package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/swarmgate/safeguard/internal/enforcer"
	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/policy"
	"go.uber.org/zap"
)

const apiTestPolicy = `{
  "inter_agent_safeguards": {
    "agent_transitions": [
      {
        "message_source": "coder",
        "message_destination": "reviewer",
        "check_method": "regex",
        "pattern": "password",
        "violation_response": "block",
        "activation_message": "Credential sharing is not allowed"
      },
      {
        "message_source": "coder",
        "message_destination": "auditor",
        "check_method": "regex",
        "pattern": "deprecated",
        "violation_response": "warn"
      }
    ]
  },
  "agent_environment_safeguards": {
    "tool_interaction": [
      {
        "message_source": "coder",
        "message_destination": "web_search",
        "check_method": "regex",
        "pattern": "\\d{3}-\\d{2}-\\d{4}",
        "violation_response": "warn",
        "activation_message": "SSN in tool call"
      }
    ]
  }
}`

// captureSink records events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (s *captureSink) Send(event *events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) Close() {}

func (s *captureSink) ofType(t events.Type) []*events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*events.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestRouter(t *testing.T) (http.Handler, *captureSink) {
	t.Helper()

	doc, err := policy.ParseJSON([]byte(apiTestPolicy))
	if err != nil {
		t.Fatalf("parse policy: %v", err)
	}
	sink := &captureSink{}
	enf, err := enforcer.New(doc, enforcer.Options{Sink: sink, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("build enforcer: %v", err)
	}

	deps := &Dependencies{Sink: sink, Logger: zap.NewNop()}
	router := NewStaticRouter(deps, func() *enforcer.Enforcer { return enf })
	return router, sink
}

func postCheck(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/safeguard/check", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeCheckResponse(t *testing.T, w *httptest.ResponseRecorder) CheckResponse {
	t.Helper()
	var resp CheckResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestCheck_CleanMessagePasses(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "agent_transition",
		"source": "coder",
		"destination": "reviewer",
		"message": "the tests are green"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeCheckResponse(t, w)
	if resp.Triggered {
		t.Error("clean message should not trigger")
	}
	if resp.Message != "the tests are green" {
		t.Errorf("message = %v", resp.Message)
	}
	if resp.Action != nil {
		t.Errorf("action = %v, want nil", *resp.Action)
	}
}

func TestCheck_BlockRewritesMessage(t *testing.T) {
	router, sink := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "agent_transition",
		"source": "coder",
		"destination": "reviewer",
		"message": "the password is hunter2"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeCheckResponse(t, w)
	if !resp.Triggered {
		t.Fatal("expected trigger")
	}
	if resp.Action == nil || *resp.Action != "block" {
		t.Fatalf("action = %v, want block", resp.Action)
	}
	// A blocked plain string comes back as a function-role message.
	m, ok := resp.Message.(map[string]any)
	if !ok {
		t.Fatalf("message type %T", resp.Message)
	}
	content, _ := m["content"].(string)
	if !strings.Contains(content, "BLOCKED: Credential sharing is not allowed") {
		t.Errorf("content = %q", content)
	}
	if resp.Reason == nil {
		t.Error("expected a reason")
	}
	if len(sink.ofType(events.TypeViolation)) != 1 {
		t.Error("expected one violation event on the shared sink")
	}
}

func TestCheck_ToolInteractionWarn(t *testing.T) {
	router, sink := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "tool_interaction",
		"source": "coder",
		"destination": "web_search",
		"message": "lookup 123-45-6789"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeCheckResponse(t, w)
	if !resp.Triggered {
		t.Fatal("expected trigger")
	}
	if resp.Action == nil || *resp.Action != "warn" {
		t.Fatalf("action = %v, want warn", resp.Action)
	}
	// Warn passes content through unchanged.
	if resp.Message != "lookup 123-45-6789" {
		t.Errorf("message = %v", resp.Message)
	}
	if len(sink.ofType(events.TypeAction)) == 0 {
		t.Error("expected an action event")
	}
}

func TestCheck_AgentTransitionWarnEchoesMessage(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "agent_transition",
		"source": "coder",
		"destination": "auditor",
		"message": "this API is deprecated"
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	resp := decodeCheckResponse(t, w)
	if !resp.Triggered {
		t.Fatal("expected trigger")
	}
	if resp.Action == nil || *resp.Action != "warn" {
		t.Fatalf("action = %v, want warn", resp.Action)
	}
	if resp.Message != "this API is deprecated" {
		t.Errorf("message = %v", resp.Message)
	}
}

func TestCheck_UnmatchedEnvironmentEndpointsPass(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "tool_interaction",
		"source": "reviewer",
		"destination": "web_search",
		"message": "lookup 123-45-6789"
	}`)
	resp := decodeCheckResponse(t, w)
	if resp.Triggered {
		t.Error("rule for a different source agent should not match")
	}
}

func TestCheck_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown category", `{"category": "telepathy", "source": "a", "destination": "b", "message": "x"}`},
		{"missing endpoints", `{"category": "agent_transition", "message": "x"}`},
		{"missing message", `{"category": "agent_transition", "source": "a", "destination": "b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := postCheck(t, router, tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCheck_StructuredMessagePreserved(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postCheck(t, router, `{
		"category": "agent_transition",
		"source": "coder",
		"destination": "reviewer",
		"message": {"role": "assistant", "content": "the password is hunter2"}
	}`)
	resp := decodeCheckResponse(t, w)
	if !resp.Triggered {
		t.Fatal("expected trigger")
	}
	m, ok := resp.Message.(map[string]any)
	if !ok {
		t.Fatalf("message type %T", resp.Message)
	}
	if m["role"] != "assistant" {
		t.Errorf("role = %v", m["role"])
	}
	content, _ := m["content"].(string)
	if !strings.Contains(content, "BLOCKED:") {
		t.Errorf("content = %q", content)
	}
}

func TestValidateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/safeguard/validate",
		bytes.NewReader([]byte(apiTestPolicy)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp ValidatePolicyResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Valid {
		t.Fatalf("valid = false: %s", resp.Error)
	}
	if resp.InterAgentRules != 2 || resp.EnvironmentRules != 1 {
		t.Errorf("rule counts = %d/%d", resp.InterAgentRules, resp.EnvironmentRules)
	}
}

func TestValidateEndpoint_RejectsBadPattern(t *testing.T) {
	router, _ := newTestRouter(t)

	bad := `{
	  "inter_agent_safeguards": {
	    "agent_transitions": [
	      {"message_source": "a", "message_destination": "b",
	       "check_method": "regex", "pattern": "([unclosed",
	       "violation_response": "block"}
	    ]
	  }
	}`
	req := httptest.NewRequest("POST", "/api/safeguard/validate",
		bytes.NewReader([]byte(bad)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp ValidatePolicyResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Valid {
		t.Fatal("invalid pattern should not validate")
	}
	if resp.Error == "" {
		t.Error("expected an error message")
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
