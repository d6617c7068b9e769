// Package enforcer executes safeguard policies: it matches messages against
// compiled rules at four interaction boundaries, evaluates guardrails, and
// applies block/mask/warn actions while preserving message structure.
package enforcer

import (
	"context"
	"fmt"
	"strings"

	"github.com/swarmgate/safeguard/internal/events"
	"github.com/swarmgate/safeguard/internal/guardrail"
	"github.com/swarmgate/safeguard/internal/policy"
	"go.uber.org/zap"
)

// Options carries the external collaborators an Enforcer consumes.
type Options struct {
	// Checker is the LLM client used by check_method=llm rules.
	Checker guardrail.ChatClient

	// Masker is the LLM client used by the mask action's redaction path.
	Masker guardrail.ChatClient

	// Sink receives audit events. Defaults to a zap log sink.
	Sink events.Sink

	Logger *zap.Logger
}

// Enforcer owns a compiled policy and evaluates messages against it.
// All state is immutable after construction, so a single Enforcer is safe to
// invoke from any number of concurrent conversation threads (assuming the
// configured LLM clients are themselves concurrency-safe).
type Enforcer struct {
	doc      *policy.Document
	compiled *policy.Compiled
	checker  guardrail.ChatClient
	masker   guardrail.ChatClient
	sink     events.Sink
	logger   *zap.Logger
}

// New validates the document structure, compiles the rules, and emits the
// load event. Any policy format error, invalid regex, or missing LLM config
// for an agent-transition rule fails here, before any hook can be installed.
func New(doc *policy.Document, opts Options) (*Enforcer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = events.NewLogSink(logger)
	}

	if err := policy.NewValidator(doc).ValidateStructure(); err != nil {
		return nil, err
	}
	compiled, err := policy.Compile(doc, policy.CompileOptions{Checker: opts.Checker})
	if err != nil {
		return nil, err
	}

	e := &Enforcer{
		doc:      doc,
		compiled: compiled,
		checker:  opts.Checker,
		masker:   opts.Masker,
		sink:     sink,
		logger:   logger,
	}

	e.send(&events.Event{
		Type: events.TypeLoad,
		Message: fmt.Sprintf("Loaded %d inter-agent and %d environment safeguard rules",
			len(compiled.InterAgent), len(compiled.Environment)),
	})
	return e, nil
}

// WithSink returns a copy of the enforcer that emits events to the given
// sink instead. The compiled policy is shared, so the copy is as cheap as
// the struct itself. Used to attach a per-request recorder without
// recompiling rules.
func (e *Enforcer) WithSink(sink events.Sink) *Enforcer {
	clone := *e
	clone.sink = sink
	return &clone
}

// Document returns the raw policy document the enforcer was built from.
func (e *Enforcer) Document() *policy.Document { return e.doc }

// Rules returns the compiled rule set.
func (e *Enforcer) Rules() *policy.Compiled { return e.compiled }

func (e *Enforcer) send(ev *events.Event) {
	stamped := events.New(ev.Type, ev.Message)
	stamped.SourceAgent = ev.SourceAgent
	stamped.TargetAgent = ev.TargetAgent
	stamped.GuardrailType = ev.GuardrailType
	stamped.Action = ev.Action
	stamped.ContentPreview = ev.ContentPreview
	e.sink.Send(stamped)
}

// CheckAndAct checks an inter-agent message. It is the groupchat integration
// point: the conversation manager calls it for every agent-to-agent delivery.
// It returns the rewritten message when a safeguard triggered, or nil when
// the message passed unchanged.
func (e *Enforcer) CheckAndAct(ctx context.Context, srcAgent, dstAgent string, message any) (any, error) {
	result, changed, err := e.checkInterAgent(ctx, srcAgent, dstAgent, message)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	return result, nil
}

// checkInterAgent scans agent-transition rules in declaration order and
// returns on the first rule whose endpoints match (exact or wildcard) and
// whose guardrail activates. Later rules covering the same pair are never
// evaluated once one activates.
func (e *Enforcer) checkInterAgent(ctx context.Context, sender, recipient string, message any) (any, bool, error) {
	content := Wrap(message).Text()

	for _, rule := range e.compiled.InterAgent {
		if rule.Category != policy.CategoryAgentTransition {
			continue
		}
		if !rule.Matches(sender, recipient) || rule.Guardrail == nil {
			continue
		}

		preview := events.Preview(content)
		e.send(&events.Event{
			Type:           events.TypeCheck,
			Message:        "Checking inter-agent communication",
			SourceAgent:    sender,
			TargetAgent:    recipient,
			GuardrailType:  rule.Guardrail.Type(),
			ContentPreview: preview,
		})

		result, err := rule.Guardrail.Check(ctx, content)
		if err != nil {
			return nil, false, fmt.Errorf("guardrail check failed: %w", err)
		}
		if !result.Activated {
			continue
		}

		e.send(&events.Event{
			Type:           events.TypeViolation,
			Message:        "VIOLATION DETECTED: " + result.Justification,
			SourceAgent:    sender,
			TargetAgent:    recipient,
			GuardrailType:  rule.Guardrail.Type(),
			ContentPreview: preview,
		})

		// Only regex guardrails contribute a pattern for targeted masking.
		pattern := ""
		if rule.CheckMethod == policy.CheckRegex {
			pattern = rule.Pattern
		}
		out, changed, err := e.applyAction(ctx, rule, message, actionContext{
			justification: result.Justification,
			guardrailType: rule.Guardrail.Type(),
			pattern:       pattern,
			source:        sender,
			target:        recipient,
			preview:       preview,
		})
		if err != nil {
			return nil, false, err
		}
		return out, changed, nil
	}
	return nil, false, nil
}

// CheckInteraction checks one environment interaction (tool, llm, or user).
// Environment rules require an exact match on both endpoints; there is no
// wildcard support on this path. The first matching rule that finds a
// violation wins; matching rules that pass are skipped.
func (e *Enforcer) CheckInteraction(ctx context.Context, category policy.Category, source, dest, content string, data any) (any, bool, error) {
	for _, rule := range e.compiled.Environment {
		if rule.Category != category || !rule.Matches(source, dest) {
			continue
		}

		preview := events.Preview(content)
		guardrailType := "RegexGuardrail"
		if rule.CheckMethod == policy.CheckLLM {
			guardrailType = "LLMGuardrail"
		}

		e.send(&events.Event{
			Type:           events.TypeCheck,
			Message:        fmt.Sprintf("Checking %s: %s -> %s", strings.ReplaceAll(category.String(), "_", " "), source, dest),
			SourceAgent:    source,
			TargetAgent:    dest,
			GuardrailType:  guardrailType,
			ContentPreview: preview,
		})

		result, err := e.performCheck(ctx, rule, content)
		if err != nil {
			return nil, false, err
		}
		if !result.Activated {
			continue
		}

		e.send(&events.Event{
			Type:           events.TypeViolation,
			Message:        fmt.Sprintf("%s VIOLATION: %s", checkMethodLabel(rule.CheckMethod), result.Justification),
			SourceAgent:    source,
			TargetAgent:    dest,
			GuardrailType:  guardrailType,
			ContentPreview: preview,
		})

		out, _, err := e.applyAction(ctx, rule, data, actionContext{
			justification: result.Justification,
			guardrailType: guardrailType,
			pattern:       rule.Pattern,
			source:        source,
			target:        dest,
			preview:       preview,
		})
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	}
	return nil, false, nil
}

// performCheck dispatches an environment rule to its check strategy.
func (e *Enforcer) performCheck(ctx context.Context, rule *policy.Rule, content string) (guardrail.Result, error) {
	switch rule.CheckMethod {
	case policy.CheckLLM:
		if e.checker == nil {
			return guardrail.Result{}, fmt.Errorf(
				"safeguard llm config is required for LLM-based %s rule: %s -> %s",
				rule.Category, rule.Source, rule.Destination)
		}
		condition := rule.CustomPrompt
		if condition == "" {
			condition = guardrail.DisallowCondition(rule.DisallowItems)
		}
		g, err := guardrail.NewLLMGuardrail("safeguard_check", condition, "Content violates safeguard conditions", e.checker)
		if err != nil {
			return guardrail.Result{}, err
		}
		return g.Check(ctx, content)

	case policy.CheckRegex:
		return guardrail.MatchPattern(rule.Pattern, content)

	default:
		return guardrail.Result{}, fmt.Errorf("unsupported check_method: %s", rule.CheckMethod)
	}
}

func checkMethodLabel(m policy.CheckMethod) string {
	if m == policy.CheckLLM {
		return "LLM"
	}
	return "REGEX"
}
