package guardrail

import (
	"context"
	"strings"
	"testing"
)

func TestRegexGuardrail_MatchActivates(t *testing.T) {
	g, err := NewRegexGuardrail("g", `\d{3}-\d{2}-\d{4}`)
	if err != nil {
		t.Fatalf("NewRegexGuardrail: %v", err)
	}

	res, err := g.Check(context.Background(), "my ssn is 123-45-6789")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Activated {
		t.Error("expected activation on matching content")
	}
	if !strings.Contains(res.Justification, "Content matched pattern") {
		t.Errorf("unexpected justification: %q", res.Justification)
	}
}

func TestRegexGuardrail_NoMatch(t *testing.T) {
	g, err := NewRegexGuardrail("g", "secret")
	if err != nil {
		t.Fatalf("NewRegexGuardrail: %v", err)
	}

	res, err := g.Check(context.Background(), "nothing to see here")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Activated {
		t.Error("expected no activation")
	}
	if res.Justification != "No pattern match" {
		t.Errorf("justification = %q", res.Justification)
	}
}

func TestRegexGuardrail_CaseInsensitive(t *testing.T) {
	g, err := NewRegexGuardrail("g", "password")
	if err != nil {
		t.Fatalf("NewRegexGuardrail: %v", err)
	}

	res, err := g.Check(context.Background(), "my PASSWORD is hunter2")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.Activated {
		t.Error("matching should ignore case")
	}
}

func TestRegexGuardrail_InvalidPattern(t *testing.T) {
	if _, err := NewRegexGuardrail("g", "("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMatchPattern_InvalidPattern(t *testing.T) {
	if _, err := MatchPattern("[", "content"); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func TestMatchPattern_Activates(t *testing.T) {
	res, err := MatchPattern("api[-_]key", "here is my API_KEY value")
	if err != nil {
		t.Fatalf("MatchPattern: %v", err)
	}
	if !res.Activated {
		t.Error("expected activation")
	}
}
