package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ChatClient is the LLM collaborator consumed by LLM-based guardrails and by
// the mask agent. Implementations block until the model responds; callers
// wanting bounded latency cancel through the context.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const checkSystemPrompt = `You are a safeguard checker for a multi-agent system.
Evaluate whether the given content violates the stated condition.
Respond ONLY with a JSON object in this exact format:
{"activated": true|false, "justification": "one sentence explaining the decision"}`

// DisallowCondition synthesizes the LLM condition for a disallow_item rule.
func DisallowCondition(items []string) string {
	return "Check if this content contains any of these disallowed categories: " + strings.Join(items, ", ")
}

// LLMGuardrail asks an LLM whether content violates a natural-language
// condition. The condition is either a custom prompt taken verbatim from the
// rule or a synthesized disallowed-categories prompt.
type LLMGuardrail struct {
	name              string
	condition         string
	activationMessage string
	client            ChatClient
}

// NewLLMGuardrail constructs a guardrail. The client must be non-nil; rules
// requesting an LLM check without a configured safeguard LLM are rejected
// before this point.
func NewLLMGuardrail(name, condition, activationMessage string, client ChatClient) (*LLMGuardrail, error) {
	if client == nil {
		return nil, fmt.Errorf("llm guardrail %s: chat client is required", name)
	}
	return &LLMGuardrail{
		name:              name,
		condition:         condition,
		activationMessage: activationMessage,
		client:            client,
	}, nil
}

func (g *LLMGuardrail) Name() string { return g.name }

func (g *LLMGuardrail) Type() string { return "LLMGuardrail" }

// Check runs the structured-verdict call. Every failure mode (transport,
// empty response, unparseable verdict) is wrapped and surfaced so the
// calling conversation step fails instead of passing unchecked content.
func (g *LLMGuardrail) Check(ctx context.Context, content string) (Result, error) {
	userPrompt := fmt.Sprintf("Condition: %s\n\nContent to evaluate:\n%s", g.condition, content)

	raw, err := g.client.Complete(ctx, checkSystemPrompt, userPrompt)
	if err != nil {
		return Result{}, fmt.Errorf("safeguard check failed: %w", err)
	}

	var verdict struct {
		Activated     bool   `json:"activated"`
		Justification string `json:"justification"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &verdict); err != nil {
		return Result{}, fmt.Errorf("safeguard check failed: unparseable verdict %q: %w", raw, err)
	}

	justification := verdict.Justification
	if verdict.Activated && justification == "" {
		justification = g.activationMessage
	}
	return Result{Activated: verdict.Activated, Justification: justification}, nil
}
