package enforcer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/policy"
)

const (
	// blockMarkerPrefix replaces blocked content so downstream agents see an
	// explicit refusal instead of silence.
	blockMarkerPrefix = "\U0001F6E1️ BLOCKED: "

	// maskMarker substitutes for each pattern match during regex masking.
	maskMarker = "[SENSITIVE_INFO]"
)

const maskSystemPrompt = `You are a content redaction assistant. Replace any sensitive information ` +
	`in the user's text with the placeholder [REDACTED], keeping everything else unchanged. ` +
	`Respond with the redacted text only, no commentary.`

// actionContext carries the evaluation details an action needs for event
// reporting and masking.
type actionContext struct {
	justification string
	guardrailType string
	pattern       string
	source        string
	target        string
	preview       string
}

// applyAction rewrites data per the rule's action and emits the action event.
// Block and mask preserve the shape of the incoming message and report
// changed=true; warn passes it through untouched with changed=false.
func (e *Enforcer) applyAction(ctx context.Context, rule *policy.Rule, data any, ac actionContext) (any, bool, error) {
	message := rule.ActivationMessage
	if message == "" {
		message = ac.justification
	}

	switch rule.Action {
	case policy.ActionWarn:
		e.sendAction(rule, ac, "WARNING: "+message)
		return data, false, nil

	case policy.ActionBlock:
		e.sendAction(rule, ac, "BLOCKED: "+message)
		return Wrap(data).Block(blockMarkerPrefix + message), true, nil

	case policy.ActionMask:
		masked, err := Wrap(data).Mask(func(text string) (string, error) {
			return e.maskContent(ctx, text, rule.DisallowItems, ac.pattern)
		})
		if err != nil {
			return nil, false, err
		}
		e.sendAction(rule, ac, "MASKED: "+message)
		return masked, true, nil

	default:
		return nil, false, fmt.Errorf("unsupported action: %s", rule.Action)
	}
}

func (e *Enforcer) sendAction(rule *policy.Rule, ac actionContext, message string) {
	e.send(&events.Event{
		Type:           events.TypeAction,
		Message:        message,
		SourceAgent:    ac.source,
		TargetAgent:    ac.target,
		GuardrailType:  ac.guardrailType,
		Action:         rule.Action.String(),
		ContentPreview: ac.preview,
	})
}

// maskContent redacts text. A rule pattern is tried first with a
// case-insensitive substitution; when the pattern does not change the text
// (or the rule has none), the mask LLM rewrites it guided by the rule's
// disallowed categories. With neither available the mask fails rather than
// letting the content through unredacted.
func (e *Enforcer) maskContent(ctx context.Context, content string, disallowItems []string, pattern string) (string, error) {
	if pattern != "" {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return "", fmt.Errorf("pattern masking failed: %w", err)
		}
		if masked := re.ReplaceAllString(content, maskMarker); masked != content {
			return masked, nil
		}
	}

	if e.masker != nil {
		prompt := "Redact the sensitive parts of the following text."
		if len(disallowItems) > 0 {
			prompt = fmt.Sprintf("Redact any content belonging to these categories: %s.\n\nText follows.",
				strings.Join(disallowItems, ", "))
		}
		out, err := e.masker.Complete(ctx, maskSystemPrompt, prompt+"\n\n"+content)
		if err != nil {
			return "", fmt.Errorf("llm masking failed: %w", err)
		}
		return strings.TrimSpace(out), nil
	}

	return "", fmt.Errorf("mask action failed: no pattern matched and no mask llm config provided")
}
