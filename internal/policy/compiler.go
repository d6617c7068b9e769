package policy

import (
	"fmt"

	"github.com/swarmgate/safeguard/internal/guardrail"
)

// CompileOptions carries the external collaborators rule compilation needs.
type CompileOptions struct {
	// Checker is the LLM client for check_method=llm rules. Agent-transition
	// rules requiring it fail compilation when it is nil; environment rules
	// defer the failure to first evaluation.
	Checker guardrail.ChatClient
}

// Compile converts a validated document into normalized rules. Agent-transition
// rules get their guardrail bound eagerly here; environment rules keep the raw
// check inputs and are evaluated inline by the enforcer.
func Compile(doc *Document, opts CompileOptions) (*Compiled, error) {
	compiled := &Compiled{}

	if doc.InterAgent != nil {
		for i := range doc.InterAgent.AgentTransitions {
			rule, err := compileTransition(&doc.InterAgent.AgentTransitions[i], opts.Checker)
			if err != nil {
				return nil, err
			}
			compiled.InterAgent = append(compiled.InterAgent, rule)
		}
		if gc := doc.InterAgent.GroupchatMessageCheck; gc != nil {
			rule, err := compileGroupchatCheck(gc)
			if err != nil {
				return nil, err
			}
			compiled.InterAgent = append(compiled.InterAgent, rule)
		}
	}

	if doc.Environment != nil {
		sections := []struct {
			category Category
			rules    []RawRule
		}{
			{CategoryToolInteraction, doc.Environment.ToolInteraction},
			{CategoryLLMInteraction, doc.Environment.LLMInteraction},
			{CategoryUserInteraction, doc.Environment.UserInteraction},
		}
		for _, s := range sections {
			for i := range s.rules {
				rule, err := compileEnvironment(s.category, &s.rules[i])
				if err != nil {
					return nil, err
				}
				compiled.Environment = append(compiled.Environment, rule)
			}
		}
	}

	return compiled, nil
}

func compileTransition(raw *RawRule, checker guardrail.ChatClient) (*Rule, error) {
	method, err := ParseCheckMethod(raw.CheckMethod)
	if err != nil {
		return nil, err
	}
	action, err := ParseAction(raw.ActionField())
	if err != nil {
		return nil, err
	}

	activationMessage := raw.ActivationMessage
	if activationMessage == "" {
		activationMessage = "Content blocked by safeguard"
	}
	rule := &Rule{
		Category:          CategoryAgentTransition,
		Source:            raw.MessageSource,
		Destination:       raw.MessageDestination,
		CheckMethod:       method,
		Action:            action,
		Pattern:           raw.Pattern,
		CustomPrompt:      raw.CustomPrompt,
		DisallowItems:     raw.DisallowItem,
		ActivationMessage: activationMessage,
	}

	switch method {
	case CheckRegex:
		g, err := guardrail.NewRegexGuardrail(
			fmt.Sprintf("regex_guard_%s_%s", raw.MessageSource, raw.MessageDestination),
			raw.Pattern,
		)
		if err != nil {
			return nil, err
		}
		rule.Guardrail = g

	case CheckLLM:
		if checker == nil {
			return nil, fmt.Errorf("safeguard llm config is required for LLM-based guardrail: %s -> %s",
				raw.MessageSource, raw.MessageDestination)
		}
		condition := raw.CustomPrompt
		if condition == "" {
			condition = guardrail.DisallowCondition(raw.DisallowItem)
		}
		activation := raw.ActivationMessage
		if activation == "" {
			activation = "LLM detected violation"
		}
		g, err := guardrail.NewLLMGuardrail(
			fmt.Sprintf("llm_guard_%s_%s", raw.MessageSource, raw.MessageDestination),
			condition,
			activation,
			checker,
		)
		if err != nil {
			return nil, err
		}
		rule.Guardrail = g
	}

	return rule, nil
}

// compileGroupchatCheck normalizes the optional all-pairs groupchat check.
// It counts toward the inter-agent rule set and drives hook installation but
// is not scanned by the agent-transition matcher.
func compileGroupchatCheck(gc *GroupchatCheck) (*Rule, error) {
	action := ActionBlock
	if gc.PetAction != "" {
		parsed, err := ParseAction(gc.PetAction)
		if err != nil {
			return nil, fmt.Errorf("groupchat_message_check %w", err)
		}
		action = parsed
	}
	return &Rule{
		Category:      CategoryGroupchatMessage,
		Source:        Wildcard,
		Destination:   Wildcard,
		CheckMethod:   CheckLLM,
		Action:        action,
		DisallowItems: gc.DisallowItem,
	}, nil
}

func compileEnvironment(category Category, raw *RawRule) (*Rule, error) {
	method, err := ParseCheckMethod(raw.CheckMethod)
	if err != nil {
		return nil, err
	}
	action, err := ParseAction(raw.ActionField())
	if err != nil {
		return nil, err
	}
	source := raw.MessageSource
	destination := raw.MessageDestination
	if category == CategoryLLMInteraction {
		// Accept "LLM" as an endpoint spelling but match hooks on "llm".
		source = normalizeLLMEndpoint(source)
		destination = normalizeLLMEndpoint(destination)
	}
	activationMessage := raw.ActivationMessage
	if activationMessage == "" {
		activationMessage = defaultActivationMessage(category, method)
	}
	return &Rule{
		Category:          category,
		Source:            source,
		Destination:       destination,
		CheckMethod:       method,
		Action:            action,
		Pattern:           raw.Pattern,
		CustomPrompt:      raw.CustomPrompt,
		DisallowItems:     raw.DisallowItem,
		ActivationMessage: activationMessage,
	}, nil
}

// defaultActivationMessage is the rewritten-content message used when a rule
// does not set activation_message. User-interaction rules have no default and
// fall back to the guardrail justification at apply time.
func defaultActivationMessage(category Category, method CheckMethod) string {
	if method == CheckLLM {
		switch category {
		case CategoryToolInteraction:
			return "LLM blocked tool output"
		case CategoryLLMInteraction:
			return "LLM blocked content"
		default:
			return ""
		}
	}
	switch category {
	case CategoryToolInteraction, CategoryLLMInteraction:
		return "Content blocked by safeguard"
	default:
		return ""
	}
}

func normalizeLLMEndpoint(name string) string {
	if name == "LLM" {
		return LLMEndpoint
	}
	return name
}
