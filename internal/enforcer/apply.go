package enforcer

import (
	"fmt"

	"github.com/swarmgate/safeguard/internal/policy"
)

// Agent is the minimal runtime surface an agent must expose for safeguard
// hooks to be installed. Implementations keep their own hook registry keyed
// by HookKind.String() and SendHookName.
type Agent interface {
	Name() string
	ToolNames() []string
	InstallHook(kind HookKind, hook PayloadHook)
	InstallSendHook(hook SendHook)
	ClearHooks()
}

// Apply runs the complete validation against the live agent roster and then
// installs the relevant hooks on every agent. Nothing is installed if
// validation fails, so a bad policy never half-guards a group.
func (e *Enforcer) Apply(agents []Agent) error {
	if len(agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}

	names := make([]string, 0, len(agents))
	toolMapping := make(map[string][]string, len(agents))
	for _, a := range agents {
		names = append(names, a.Name())
		toolMapping[a.Name()] = a.ToolNames()
	}

	if err := policy.NewValidator(e.doc).ValidateComplete(names, toolMapping); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	for _, a := range agents {
		for kind, hook := range e.HooksFor(a.Name()) {
			a.InstallHook(kind, hook)
		}
		if sh := e.SendHookFor(a.Name()); sh != nil {
			a.InstallSendHook(sh)
		}
	}
	return nil
}

// Reset removes all safeguard hooks from the agents.
func Reset(agents []Agent) {
	for _, a := range agents {
		a.ClearHooks()
	}
}
