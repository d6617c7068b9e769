package enforcer

import (
	"context"

	"github.com/swarmgate/safeguard/internal/policy"
)

// HookKind identifies an interception point on an agent. The string form is
// the hook registry key an agent runtime installs the hook under.
type HookKind int

const (
	HookToolInputs HookKind = iota + 1
	HookToolOutputs
	HookLLMInputs
	HookLLMOutputs
	HookHumanInputs
)

func (k HookKind) String() string {
	switch k {
	case HookToolInputs:
		return "safeguard_tool_inputs"
	case HookToolOutputs:
		return "safeguard_tool_outputs"
	case HookLLMInputs:
		return "safeguard_llm_inputs"
	case HookLLMOutputs:
		return "safeguard_llm_outputs"
	case HookHumanInputs:
		return "safeguard_human_inputs"
	default:
		return "unknown"
	}
}

// SendHookName is the registry key for the inter-agent send hook.
const SendHookName = "process_message_before_send"

// PayloadHook intercepts one payload at an environment boundary. It returns
// the payload to proceed with, which is the input unchanged when no safeguard
// triggered. A non-nil error aborts the interaction (fail closed).
type PayloadHook func(ctx context.Context, payload any) (any, error)

// SendHook intercepts a direct agent-to-agent message before delivery.
type SendHook func(ctx context.Context, sender, recipient string, message any) (any, error)

// HooksFor builds the payload hooks relevant to one agent. Kinds with no
// matching rule are absent from the returned map, so the runtime installs
// nothing where the policy is silent.
func (e *Enforcer) HooksFor(agentName string) map[HookKind]PayloadHook {
	hooks := make(map[HookKind]PayloadHook)

	if e.hasEnvironmentRules(policy.CategoryToolInteraction, agentName) {
		hooks[HookToolInputs] = e.toolInputHook(agentName)
		hooks[HookToolOutputs] = e.toolOutputHook(agentName)
	}
	if e.hasEnvironmentRules(policy.CategoryLLMInteraction, agentName) {
		hooks[HookLLMInputs] = e.llmHook(agentName, true)
		hooks[HookLLMOutputs] = e.llmHook(agentName, false)
	}
	if e.hasUserRules(agentName) {
		hooks[HookHumanInputs] = e.humanInputHook(agentName)
	}
	return hooks
}

// SendHookFor returns the inter-agent send hook, or nil when no inter-agent
// rule can ever involve the agent.
func (e *Enforcer) SendHookFor(agentName string) SendHook {
	if !e.hasInterAgentRules(agentName) {
		return nil
	}
	return func(ctx context.Context, sender, recipient string, message any) (any, error) {
		result, err := e.CheckAndAct(ctx, sender, recipient, message)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return message, nil
		}
		return result, nil
	}
}

// hasEnvironmentRules reports whether any rule of the category names the
// agent on either side.
func (e *Enforcer) hasEnvironmentRules(category policy.Category, agentName string) bool {
	for _, r := range e.compiled.Environment {
		if r.Category != category {
			continue
		}
		if r.Source == agentName || r.Destination == agentName {
			return true
		}
	}
	return false
}

// hasUserRules reports whether any user_interaction rule delivers to the agent.
func (e *Enforcer) hasUserRules(agentName string) bool {
	for _, r := range e.compiled.Environment {
		if r.Category == policy.CategoryUserInteraction && r.Destination == agentName {
			return true
		}
	}
	return false
}

// hasInterAgentRules reports whether any inter-agent rule can involve the
// agent, including via a wildcard endpoint.
func (e *Enforcer) hasInterAgentRules(agentName string) bool {
	for _, r := range e.compiled.InterAgent {
		if r.Source == agentName || r.Destination == agentName ||
			r.Source == policy.Wildcard || r.Destination == policy.Wildcard {
			return true
		}
	}
	return false
}

// toolInputHook checks a tool call before execution. The call travels
// agent -> tool and the checked content is the call arguments.
func (e *Enforcer) toolInputHook(agentName string) PayloadHook {
	return func(ctx context.Context, payload any) (any, error) {
		call, ok := payload.(map[string]any)
		if !ok {
			return payload, nil
		}
		toolName := toolNameOf(call)
		content := asString(call["arguments"])

		result, changed, err := e.CheckInteraction(ctx, policy.CategoryToolInteraction, agentName, toolName, content, call)
		if err != nil {
			return nil, err
		}
		if !changed {
			return payload, nil
		}
		return coerceToolResult(result, toolName), nil
	}
}

// toolOutputHook checks a tool result before it reaches the agent. The
// result travels tool -> agent and the checked content is the response body.
func (e *Enforcer) toolOutputHook(agentName string) PayloadHook {
	return func(ctx context.Context, payload any) (any, error) {
		response, ok := payload.(map[string]any)
		if !ok {
			return payload, nil
		}
		toolName := toolNameOf(response)
		content := asString(response["content"])

		result, changed, err := e.CheckInteraction(ctx, policy.CategoryToolInteraction, toolName, agentName, content, response)
		if err != nil {
			return nil, err
		}
		if !changed {
			return payload, nil
		}
		return coerceToolResult(result, toolName), nil
	}
}

// llmHook checks the model boundary. Inputs travel agent -> llm, outputs
// llm -> agent. The payload may be a message list, a single message map, or
// bare text; the rewritten result keeps whatever shape the applier produced.
func (e *Enforcer) llmHook(agentName string, input bool) PayloadHook {
	return func(ctx context.Context, payload any) (any, error) {
		source, dest := agentName, policy.LLMEndpoint
		if !input {
			source, dest = policy.LLMEndpoint, agentName
		}

		// A request wrapper with a messages field is checked by its messages.
		data := payload
		if m, ok := payload.(map[string]any); ok {
			if msgs, found := m["messages"]; found {
				data = msgs
			}
		}
		content := Wrap(data).Text()

		result, changed, err := e.CheckInteraction(ctx, policy.CategoryLLMInteraction, source, dest, content, data)
		if err != nil {
			return nil, err
		}
		if !changed {
			return payload, nil
		}
		if m, ok := payload.(map[string]any); ok {
			if _, found := m["messages"]; found {
				out := make(map[string]any, len(m))
				for k, v := range m {
					out[k] = v
				}
				out["messages"] = result
				return out, nil
			}
		}
		return result, nil
	}
}

// humanInputHook checks human-typed input before the agent consumes it. The
// input travels user -> agent.
func (e *Enforcer) humanInputHook(agentName string) PayloadHook {
	return func(ctx context.Context, payload any) (any, error) {
		content := payload
		if m, ok := payload.(map[string]any); ok {
			if c, found := m["content"]; found {
				content = c
			}
		}
		text := asString(content)

		result, changed, err := e.CheckInteraction(ctx, policy.CategoryUserInteraction, policy.UserEndpoint, agentName, text, text)
		if err != nil {
			return nil, err
		}
		if !changed {
			return payload, nil
		}
		if m, ok := payload.(map[string]any); ok {
			out := make(map[string]any, len(m))
			for k, v := range m {
				out[k] = v
			}
			out["content"] = result
			return out, nil
		}
		return map[string]any{"content": result}, nil
	}
}

func toolNameOf(m map[string]any) string {
	if name, ok := m["name"].(string); ok && name != "" {
		return name
	}
	if name, ok := m["tool_name"].(string); ok {
		return name
	}
	return ""
}

// coerceToolResult keeps tool payloads dict-shaped for the runtime.
func coerceToolResult(result any, toolName string) any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"content": asString(result), "name": toolName}
}
