package policy

import (
	"fmt"

	"github.com/swarmgate/safeguard/internal/guardrail"
)

// Category identifies which interaction boundary a rule covers.
type Category int

const (
	CategoryAgentTransition Category = iota + 1
	CategoryGroupchatMessage
	CategoryToolInteraction
	CategoryLLMInteraction
	CategoryUserInteraction
)

// String returns the policy-document spelling of the category.
func (c Category) String() string {
	switch c {
	case CategoryAgentTransition:
		return "agent_transition"
	case CategoryGroupchatMessage:
		return "groupchat_message"
	case CategoryToolInteraction:
		return "tool_interaction"
	case CategoryLLMInteraction:
		return "llm_interaction"
	case CategoryUserInteraction:
		return "user_interaction"
	default:
		return "unspecified"
	}
}

// CheckMethod selects the evaluation strategy for a rule.
type CheckMethod int

const (
	CheckRegex CheckMethod = iota + 1
	CheckLLM
)

func (m CheckMethod) String() string {
	switch m {
	case CheckRegex:
		return "regex"
	case CheckLLM:
		return "llm"
	default:
		return "unspecified"
	}
}

// ParseCheckMethod converts the policy-document spelling.
func ParseCheckMethod(s string) (CheckMethod, error) {
	switch s {
	case "regex":
		return CheckRegex, nil
	case "llm":
		return CheckLLM, nil
	default:
		return 0, fmt.Errorf("invalid check_method: %s. Must be 'llm' or 'regex'", s)
	}
}

// Action is the enforcement response applied when a rule activates.
type Action int

const (
	ActionBlock Action = iota + 1
	ActionMask
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionMask:
		return "mask"
	case ActionWarn:
		return "warn"
	default:
		return "unspecified"
	}
}

// ParseAction converts the policy-document spelling. "warning" is the
// legacy spelling of warn and remains accepted.
func ParseAction(s string) (Action, error) {
	switch s {
	case "block":
		return ActionBlock, nil
	case "mask":
		return ActionMask, nil
	case "warn", "warning":
		return ActionWarn, nil
	default:
		return 0, fmt.Errorf("invalid action: %s. Must be 'block', 'mask', or 'warn'", s)
	}
}

// Wildcard matches any agent on one side of an inter-agent rule.
// Environment rules never use it; their endpoints are always concrete.
const Wildcard = "*"

// Reserved endpoint names for environment rules.
const (
	// LLMEndpoint names the model side of an llm_interaction rule.
	LLMEndpoint = "llm"

	// UserEndpoint names the human side of a user_interaction rule.
	UserEndpoint = "user"
)

// Rule is a compiled, normalized safeguard rule. For agent-transition rules
// the Guardrail is bound once at compile time and reused on every matching
// message; environment rules are checked inline per invocation and carry the
// raw pattern or LLM condition inputs instead.
type Rule struct {
	Category          Category
	Source            string
	Destination       string
	CheckMethod       CheckMethod
	Action            Action
	Pattern           string
	CustomPrompt      string
	DisallowItems     []string
	ActivationMessage string

	Guardrail guardrail.Guardrail
}

// Matches reports whether the rule applies to the given endpoints.
// Inter-agent categories honor the wildcard; environment categories require
// exact matches on both sides.
func (r *Rule) Matches(source, destination string) bool {
	switch r.Category {
	case CategoryAgentTransition, CategoryGroupchatMessage:
		srcOK := r.Source == Wildcard || r.Source == source
		dstOK := r.Destination == Wildcard || r.Destination == destination
		return srcOK && dstOK
	default:
		return r.Source == source && r.Destination == destination
	}
}

// Compiled holds the full compiled form of a policy document.
type Compiled struct {
	InterAgent  []*Rule // declaration order is the tie-break order
	Environment []*Rule
}

// Len returns the total number of compiled rules.
func (c *Compiled) Len() int {
	return len(c.InterAgent) + len(c.Environment)
}
