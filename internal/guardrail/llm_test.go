package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubClient struct {
	response string
	err      error

	lastSystem string
	lastUser   string
}

func (c *stubClient) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	c.lastSystem = systemPrompt
	c.lastUser = userPrompt
	return c.response, c.err
}

func TestLLMGuardrail_NilClientRejected(t *testing.T) {
	if _, err := NewLLMGuardrail("g", "no secrets", "blocked", nil); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestLLMGuardrail_ActivatedVerdict(t *testing.T) {
	client := &stubClient{response: `{"activated": true, "justification": "contains an api key"}`}
	g, err := NewLLMGuardrail("g", "no credentials", "blocked", client)
	if err != nil {
		t.Fatalf("NewLLMGuardrail: %v", err)
	}

	res, err := g.Check(context.Background(), "key=sk-12345")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Activated {
		t.Error("expected activation")
	}
	if res.Justification != "contains an api key" {
		t.Errorf("justification = %q", res.Justification)
	}
	if !strings.Contains(client.lastUser, "no credentials") {
		t.Error("condition missing from user prompt")
	}
	if !strings.Contains(client.lastUser, "key=sk-12345") {
		t.Error("content missing from user prompt")
	}
}

func TestLLMGuardrail_EmptyJustificationFallsBack(t *testing.T) {
	client := &stubClient{response: `{"activated": true}`}
	g, _ := NewLLMGuardrail("g", "cond", "fallback message", client)

	res, err := g.Check(context.Background(), "content")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Justification != "fallback message" {
		t.Errorf("justification = %q, want fallback", res.Justification)
	}
}

func TestLLMGuardrail_ClientErrorWrapped(t *testing.T) {
	client := &stubClient{err: errors.New("connection refused")}
	g, _ := NewLLMGuardrail("g", "cond", "msg", client)

	_, err := g.Check(context.Background(), "content")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "safeguard check failed") {
		t.Errorf("error = %v, want safeguard check failed wrapper", err)
	}
}

func TestLLMGuardrail_UnparseableVerdict(t *testing.T) {
	client := &stubClient{response: "I think this is fine"}
	g, _ := NewLLMGuardrail("g", "cond", "msg", client)

	if _, err := g.Check(context.Background(), "content"); err == nil {
		t.Error("expected error for non-JSON verdict")
	}
}

func TestDisallowCondition(t *testing.T) {
	got := DisallowCondition([]string{"passwords", "api keys"})
	want := "Check if this content contains any of these disallowed categories: passwords, api keys"
	if got != want {
		t.Errorf("DisallowCondition = %q, want %q", got, want)
	}
}
