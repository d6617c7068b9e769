package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a raw safeguard policy as declared by the operator.
// It is immutable once handed to an Enforcer.
type Document struct {
	InterAgent  *InterAgentSection  `json:"inter_agent_safeguards,omitempty" yaml:"inter_agent_safeguards,omitempty"`
	Environment *EnvironmentSection `json:"agent_environment_safeguards,omitempty" yaml:"agent_environment_safeguards,omitempty"`
}

// InterAgentSection covers messages exchanged between agents.
type InterAgentSection struct {
	AgentTransitions      []RawRule       `json:"agent_transitions,omitempty" yaml:"agent_transitions,omitempty"`
	GroupchatMessageCheck *GroupchatCheck `json:"groupchat_message_check,omitempty" yaml:"groupchat_message_check,omitempty"`
}

// EnvironmentSection covers agent interactions with tools, LLMs, and users.
type EnvironmentSection struct {
	ToolInteraction []RawRule `json:"tool_interaction,omitempty" yaml:"tool_interaction,omitempty"`
	LLMInteraction  []RawRule `json:"llm_interaction,omitempty" yaml:"llm_interaction,omitempty"`
	UserInteraction []RawRule `json:"user_interaction,omitempty" yaml:"user_interaction,omitempty"`
}

// RawRule is one declared rule before compilation. Which fields are required
// depends on the rule category and check method; the Validator enforces that.
type RawRule struct {
	MessageSource      string   `json:"message_source,omitempty" yaml:"message_source,omitempty"`
	MessageDestination string   `json:"message_destination,omitempty" yaml:"message_destination,omitempty"`
	CheckMethod        string   `json:"check_method,omitempty" yaml:"check_method,omitempty"`
	Pattern            string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	CustomPrompt       string   `json:"custom_prompt,omitempty" yaml:"custom_prompt,omitempty"`
	DisallowItem       []string `json:"disallow_item,omitempty" yaml:"disallow_item,omitempty"`
	// The action field carries two accepted spellings: agent_transition and
	// tool_interaction rules historically used violation_response, while
	// llm_interaction and user_interaction rules used action. Both are read.
	ViolationResponse string `json:"violation_response,omitempty" yaml:"violation_response,omitempty"`
	Action            string `json:"action,omitempty" yaml:"action,omitempty"`
	ActivationMessage string `json:"activation_message,omitempty" yaml:"activation_message,omitempty"`
}

// ActionField returns the declared action string, preferring
// violation_response over action when both are present.
func (r *RawRule) ActionField() string {
	if r.ViolationResponse != "" {
		return r.ViolationResponse
	}
	return r.Action
}

// GroupchatCheck is the optional all-pairs groupchat message check.
type GroupchatCheck struct {
	PetAction    string   `json:"pet_action,omitempty" yaml:"pet_action,omitempty"`
	DisallowItem []string `json:"disallow_item,omitempty" yaml:"disallow_item,omitempty"`
}

// Load reads a policy document from a JSON or YAML file, chosen by extension.
// The document passes the JSON-Schema structural pre-check before decoding.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON decodes a JSON policy document.
func ParseJSON(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy is not valid JSON: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &doc, nil
}

// ParseYAML decodes a YAML policy document. The document is normalized
// through JSON before the schema check so both formats share one code path.
func ParseYAML(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("policy is not valid YAML: %w", err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize policy: %w", err)
	}
	return ParseJSON(normalized)
}
