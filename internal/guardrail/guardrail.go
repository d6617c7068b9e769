// Package guardrail provides interchangeable content evaluators used by the
// safeguard enforcer: a regex matcher and an LLM judgment strategy behind a
// single Check interface.
package guardrail

import "context"

// Result is the outcome of a single guardrail check.
type Result struct {
	Activated     bool
	Justification string
}

// Guardrail evaluates message content against one configured condition.
// Implementations must be safe for concurrent use after construction.
type Guardrail interface {
	// Name returns the guardrail's identifier, used in audit events.
	Name() string

	// Type returns the guardrail kind ("RegexGuardrail" or "LLMGuardrail").
	Type() string

	// Check evaluates the content. A returned error means the check itself
	// failed; callers must treat that as fatal for the current message
	// rather than letting unchecked content through.
	Check(ctx context.Context, content string) (Result, error)
}
