package policy

import (
	"fmt"
	"regexp"
	"sort"
)

// Validator checks a policy document before compilation. ValidateStructure
// covers field-level syntax; ValidateComplete needs caller-supplied context
// (agent names, agent-to-tool mapping) and covers name resolution.
// Validation either fully succeeds or the enforcer is never constructed.
type Validator struct {
	doc *Document
}

// NewValidator wraps a document for validation.
func NewValidator(doc *Document) *Validator {
	return &Validator{doc: doc}
}

// ValidateStructure validates policy format and syntax only.
func (v *Validator) ValidateStructure() error {
	if v.doc == nil {
		return fmt.Errorf("policy document is required")
	}
	if v.doc.InterAgent != nil {
		for i := range v.doc.InterAgent.AgentTransitions {
			if err := validateRule("agent_transitions", i, &v.doc.InterAgent.AgentTransitions[i]); err != nil {
				return err
			}
		}
	}
	if v.doc.Environment != nil {
		for i := range v.doc.Environment.ToolInteraction {
			if err := validateRule("tool_interaction", i, &v.doc.Environment.ToolInteraction[i]); err != nil {
				return err
			}
		}
		for i := range v.doc.Environment.LLMInteraction {
			if err := validateRule("llm_interaction", i, &v.doc.Environment.LLMInteraction[i]); err != nil {
				return err
			}
		}
		for i := range v.doc.Environment.UserInteraction {
			if err := validateRule("user_interaction", i, &v.doc.Environment.UserInteraction[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateRule enforces the shared per-rule requirements: endpoints present,
// an explicit check method, check-method-specific inputs, and an explicit
// action under whichever field name the section uses.
func validateRule(section string, i int, rule *RawRule) error {
	if rule.MessageSource == "" {
		return fmt.Errorf("%s[%d] missing required field: message_source", section, i)
	}
	if rule.MessageDestination == "" {
		return fmt.Errorf("%s[%d] missing required field: message_destination", section, i)
	}

	if rule.CheckMethod == "" {
		return fmt.Errorf("%s[%d] missing required field: check_method", section, i)
	}
	method, err := ParseCheckMethod(rule.CheckMethod)
	if err != nil {
		return fmt.Errorf("%s[%d] %w", section, i, err)
	}

	switch method {
	case CheckLLM:
		if rule.CustomPrompt == "" && len(rule.DisallowItem) == 0 {
			return fmt.Errorf("%s[%d] with check_method 'llm' must have either 'custom_prompt' or 'disallow_item'", section, i)
		}
	case CheckRegex:
		if rule.Pattern == "" {
			return fmt.Errorf("%s[%d] with check_method 'regex' must have 'pattern'", section, i)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("%s[%d] invalid regex pattern %q: %v", section, i, rule.Pattern, err)
		}
	}

	// agent_transitions and tool_interaction declare the action as
	// violation_response, llm_interaction and user_interaction as action.
	// Either spelling is accepted everywhere, but one must be present.
	if rule.ActionField() == "" {
		return fmt.Errorf("%s[%d] missing required field: violation_response or action", section, i)
	}
	if _, err := ParseAction(rule.ActionField()); err != nil {
		return fmt.Errorf("%s[%d] %w", section, i, err)
	}
	return nil
}

// ValidateComplete validates agent and tool names referenced by the policy.
// It assumes ValidateStructure has already passed.
func (v *Validator) ValidateComplete(agentNames []string, agentToolMapping map[string][]string) error {
	if err := v.validateAgentNames(agentNames); err != nil {
		return err
	}
	for _, tools := range agentToolMapping {
		if len(tools) > 0 {
			return v.validateToolNames(agentNames, agentToolMapping)
		}
	}
	return nil
}

func (v *Validator) validateAgentNames(agentNames []string) error {
	known := make(map[string]bool, len(agentNames))
	for _, n := range agentNames {
		known[n] = true
	}

	if v.doc.InterAgent != nil {
		for i, rule := range v.doc.InterAgent.AgentTransitions {
			if rule.MessageSource != Wildcard && !known[rule.MessageSource] {
				return fmt.Errorf("agent_transitions[%d] references unknown source agent: %q. Available agents: %v",
					i, rule.MessageSource, sortedNames(known))
			}
			if rule.MessageDestination != Wildcard && !known[rule.MessageDestination] {
				return fmt.Errorf("agent_transitions[%d] references unknown destination agent: %q. Available agents: %v",
					i, rule.MessageDestination, sortedNames(known))
			}
		}
	}

	if v.doc.Environment != nil {
		// llm_interaction endpoints are either the literal "llm" or an agent.
		for i, rule := range v.doc.Environment.LLMInteraction {
			for _, name := range []string{rule.MessageSource, rule.MessageDestination} {
				if !isLLMEndpoint(name) && !known[name] {
					return fmt.Errorf("llm_interaction[%d] references unknown agent: %q. Available agents: %v",
						i, name, sortedNames(known))
				}
			}
		}
		// user_interaction endpoints are not resolved against the agent set;
		// enforcement matches them exactly at check time.
	}
	return nil
}

// validateToolNames resolves tool_interaction endpoints against the known
// agents and the tool sets they own. A name that is not a known agent must be
// a tool, and where one side is an agent the tool must belong to that agent.
func (v *Validator) validateToolNames(agentNames []string, agentToolMapping map[string][]string) error {
	if v.doc.Environment == nil {
		return nil
	}

	knownAgents := make(map[string]bool, len(agentNames))
	for _, n := range agentNames {
		knownAgents[n] = true
	}
	allTools := make(map[string]bool)
	for _, tools := range agentToolMapping {
		for _, t := range tools {
			allTools[t] = true
		}
	}
	ownedBy := func(agent, tool string) bool {
		for _, t := range agentToolMapping[agent] {
			if t == tool {
				return true
			}
		}
		return false
	}

	for i, rule := range v.doc.Environment.ToolInteraction {
		src, dst := rule.MessageSource, rule.MessageDestination
		if src == Wildcard || dst == Wildcard || isUserEndpoint(src) || isUserEndpoint(dst) {
			continue
		}

		switch {
		case knownAgents[src] && !knownAgents[dst]:
			// Agent -> tool: the destination must be a tool the agent owns.
			if !allTools[dst] {
				return fmt.Errorf("tool_interaction[%d] references unknown tool: %q. Available tools: %v",
					i, dst, sortedNames(allTools))
			}
			if !ownedBy(src, dst) {
				return fmt.Errorf("tool_interaction[%d] agent %q does not have access to tool %q. Agent's tools: %v",
					i, src, dst, agentToolMapping[src])
			}
		case !knownAgents[src] && knownAgents[dst]:
			// Tool -> agent: the source must be a tool the agent owns.
			if !allTools[src] {
				return fmt.Errorf("tool_interaction[%d] references unknown tool: %q. Available tools: %v",
					i, src, sortedNames(allTools))
			}
			if !ownedBy(dst, src) {
				return fmt.Errorf("tool_interaction[%d] agent %q does not have access to tool %q. Agent's tools: %v",
					i, dst, src, agentToolMapping[dst])
			}
		case !knownAgents[src] && !knownAgents[dst]:
			// Tool -> tool: both must exist; no ownership check applies.
			if !allTools[src] {
				return fmt.Errorf("tool_interaction[%d] references unknown tool: %q. Available tools: %v",
					i, src, sortedNames(allTools))
			}
			if !allTools[dst] {
				return fmt.Errorf("tool_interaction[%d] references unknown tool: %q. Available tools: %v",
					i, dst, sortedNames(allTools))
			}
		}
	}
	return nil
}

func isLLMEndpoint(name string) bool {
	return name == "llm" || name == "LLM"
}

func isUserEndpoint(name string) bool {
	return name == "user" || name == "User" || name == "USER"
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
