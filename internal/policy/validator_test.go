package policy

import (
	"strings"
	"testing"
)

func transitionRule(mutate func(*RawRule)) *Document {
	rule := RawRule{
		MessageSource:      "coder",
		MessageDestination: "reviewer",
		CheckMethod:        "regex",
		Pattern:            "secret",
		ViolationResponse:  "block",
	}
	if mutate != nil {
		mutate(&rule)
	}
	return &Document{
		InterAgent: &InterAgentSection{AgentTransitions: []RawRule{rule}},
	}
}

func TestValidateStructure_ValidRegexRule(t *testing.T) {
	if err := NewValidator(transitionRule(nil)).ValidateStructure(); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func TestValidateStructure_NilDocument(t *testing.T) {
	if err := NewValidator(nil).ValidateStructure(); err == nil {
		t.Error("expected error for nil document")
	}
}

func TestValidateStructure_MissingSource(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.MessageSource = "" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "missing required field: message_source") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_MissingCheckMethod(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.CheckMethod = "" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "missing required field: check_method") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_UnknownCheckMethod(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.CheckMethod = "vibes" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "invalid check_method") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_RegexWithoutPattern(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.Pattern = "" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "must have 'pattern'") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_InvalidPattern(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.Pattern = "(" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "invalid regex pattern") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_LLMWithoutPromptOrItems(t *testing.T) {
	doc := transitionRule(func(r *RawRule) {
		r.CheckMethod = "llm"
		r.Pattern = ""
	})
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "must have either 'custom_prompt' or 'disallow_item'") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_LLMWithDisallowItems(t *testing.T) {
	doc := transitionRule(func(r *RawRule) {
		r.CheckMethod = "llm"
		r.Pattern = ""
		r.DisallowItem = []string{"credentials"}
	})
	if err := NewValidator(doc).ValidateStructure(); err != nil {
		t.Errorf("ValidateStructure: %v", err)
	}
}

func TestValidateStructure_MissingAction(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.ViolationResponse = "" })
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "violation_response or action") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateStructure_ActionSpellingAccepted(t *testing.T) {
	doc := transitionRule(func(r *RawRule) {
		r.ViolationResponse = ""
		r.Action = "mask"
	})
	if err := NewValidator(doc).ValidateStructure(); err != nil {
		t.Errorf("ValidateStructure: %v", err)
	}
}

func TestValidateStructure_SectionInErrorMessage(t *testing.T) {
	doc := &Document{
		Environment: &EnvironmentSection{
			LLMInteraction: []RawRule{{
				MessageSource:      "coder",
				MessageDestination: "llm",
			}},
		},
	}
	err := NewValidator(doc).ValidateStructure()
	if err == nil || !strings.Contains(err.Error(), "llm_interaction[0]") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateComplete_UnknownTransitionAgent(t *testing.T) {
	doc := transitionRule(nil)
	err := NewValidator(doc).ValidateComplete([]string{"coder"}, nil)
	if err == nil || !strings.Contains(err.Error(), `unknown destination agent: "reviewer"`) {
		t.Errorf("err = %v", err)
	}
}

func TestValidateComplete_WildcardSkipsAgentCheck(t *testing.T) {
	doc := transitionRule(func(r *RawRule) { r.MessageSource = Wildcard })
	if err := NewValidator(doc).ValidateComplete([]string{"reviewer"}, nil); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}

func TestValidateComplete_LLMEndpointAllowed(t *testing.T) {
	doc := &Document{
		Environment: &EnvironmentSection{
			LLMInteraction: []RawRule{{
				MessageSource:      "coder",
				MessageDestination: "LLM",
				CheckMethod:        "regex",
				Pattern:            "x",
				Action:             "block",
			}},
		},
	}
	if err := NewValidator(doc).ValidateComplete([]string{"coder"}, nil); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}

func TestValidateComplete_UserSourceAllowed(t *testing.T) {
	doc := &Document{
		Environment: &EnvironmentSection{
			UserInteraction: []RawRule{{
				MessageSource:      "user",
				MessageDestination: "coder",
				CheckMethod:        "regex",
				Pattern:            "x",
				Action:             "block",
			}},
		},
	}
	if err := NewValidator(doc).ValidateComplete([]string{"coder"}, nil); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}

func TestValidateComplete_UserEndpointsNotResolvedAgainstAgents(t *testing.T) {
	doc := &Document{
		Environment: &EnvironmentSection{
			UserInteraction: []RawRule{{
				MessageSource:      "user",
				MessageDestination: "support_bot",
				CheckMethod:        "regex",
				Pattern:            "x",
				Action:             "block",
			}},
		},
	}
	if err := NewValidator(doc).ValidateComplete([]string{"coder"}, nil); err != nil {
		t.Errorf("user_interaction endpoints outside the agent set must validate: %v", err)
	}
}

func toolDoc(src, dst string) *Document {
	return &Document{
		Environment: &EnvironmentSection{
			ToolInteraction: []RawRule{{
				MessageSource:      src,
				MessageDestination: dst,
				CheckMethod:        "regex",
				Pattern:            "x",
				ViolationResponse:  "block",
			}},
		},
	}
}

func TestValidateComplete_AgentToOwnedTool(t *testing.T) {
	doc := toolDoc("coder", "web_search")
	mapping := map[string][]string{"coder": {"web_search"}}
	if err := NewValidator(doc).ValidateComplete([]string{"coder"}, mapping); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}

func TestValidateComplete_AgentToUnownedTool(t *testing.T) {
	doc := toolDoc("coder", "web_search")
	mapping := map[string][]string{
		"coder":    {"calculator"},
		"reviewer": {"web_search"},
	}
	err := NewValidator(doc).ValidateComplete([]string{"coder", "reviewer"}, mapping)
	if err == nil || !strings.Contains(err.Error(), `does not have access to tool "web_search"`) {
		t.Errorf("err = %v", err)
	}
}

func TestValidateComplete_UnknownTool(t *testing.T) {
	doc := toolDoc("coder", "nonexistent")
	mapping := map[string][]string{"coder": {"calculator"}}
	err := NewValidator(doc).ValidateComplete([]string{"coder"}, mapping)
	if err == nil || !strings.Contains(err.Error(), `unknown tool: "nonexistent"`) {
		t.Errorf("err = %v", err)
	}
}

func TestValidateComplete_ToolToToolExistenceOnly(t *testing.T) {
	doc := toolDoc("web_search", "calculator")
	mapping := map[string][]string{
		"coder":    {"web_search"},
		"reviewer": {"calculator"},
	}
	if err := NewValidator(doc).ValidateComplete([]string{"coder", "reviewer"}, mapping); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}

func TestValidateComplete_EmptyToolMappingSkipsToolChecks(t *testing.T) {
	doc := toolDoc("coder", "web_search")
	if err := NewValidator(doc).ValidateComplete([]string{"coder"}, map[string][]string{"coder": nil}); err != nil {
		t.Errorf("ValidateComplete: %v", err)
	}
}
