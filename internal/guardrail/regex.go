package guardrail

import (
	"context"
	"fmt"
	"regexp"
)

// RegexGuardrail activates when the content matches its pattern.
// Matching is always case-insensitive.
type RegexGuardrail struct {
	name    string
	pattern string
	re      *regexp.Regexp
}

// NewRegexGuardrail compiles the pattern once at construction.
func NewRegexGuardrail(name, pattern string) (*RegexGuardrail, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return &RegexGuardrail{name: name, pattern: pattern, re: re}, nil
}

func (g *RegexGuardrail) Name() string { return g.name }

func (g *RegexGuardrail) Type() string { return "RegexGuardrail" }

// Pattern returns the raw pattern, used by the mask action for substitution.
func (g *RegexGuardrail) Pattern() string { return g.pattern }

func (g *RegexGuardrail) Check(_ context.Context, content string) (Result, error) {
	if g.re.MatchString(content) {
		return Result{
			Activated:     true,
			Justification: fmt.Sprintf("Content matched pattern: %s", g.pattern),
		}, nil
	}
	return Result{Justification: "No pattern match"}, nil
}

// MatchPattern is the inline variant used for environment rules, which carry
// a raw pattern instead of a bound guardrail.
func MatchPattern(pattern, content string) (Result, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Result{}, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	if re.MatchString(content) {
		return Result{
			Activated:     true,
			Justification: fmt.Sprintf("Content matched pattern: %s", pattern),
		}, nil
	}
	return Result{Justification: "No pattern match"}, nil
}
