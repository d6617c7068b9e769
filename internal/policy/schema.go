package policy

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema rejects grossly malformed documents (wrong section types,
// rule entries that are not objects) before the field-level validator runs.
// Field presence and cross-field requirements are deliberately left to the
// Validator, which produces rule-index-bearing error messages.
const documentSchema = `{
  "type": "object",
  "properties": {
    "inter_agent_safeguards": {
      "type": "object",
      "properties": {
        "agent_transitions": {"type": "array", "items": {"$ref": "#/$defs/rule"}},
        "groupchat_message_check": {
          "type": "object",
          "properties": {
            "pet_action": {"type": "string"},
            "disallow_item": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "agent_environment_safeguards": {
      "type": "object",
      "properties": {
        "tool_interaction": {"type": "array", "items": {"$ref": "#/$defs/rule"}},
        "llm_interaction": {"type": "array", "items": {"$ref": "#/$defs/rule"}},
        "user_interaction": {"type": "array", "items": {"$ref": "#/$defs/rule"}}
      }
    }
  },
  "$defs": {
    "rule": {
      "type": "object",
      "properties": {
        "message_source": {"type": "string"},
        "message_destination": {"type": "string"},
        "check_method": {"type": "string"},
        "pattern": {"type": "string"},
        "custom_prompt": {"type": "string"},
        "disallow_item": {"type": "array", "items": {"type": "string"}},
        "violation_response": {"type": "string"},
        "action": {"type": "string"},
        "activation_message": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
	if err != nil {
		panic(fmt.Sprintf("policy schema unmarshal: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("policy.json", doc); err != nil {
		panic(fmt.Sprintf("policy schema add resource: %v", err))
	}
	sch, err := c.Compile("policy.json")
	if err != nil {
		panic(fmt.Sprintf("policy schema compile: %v", err))
	}
	return sch
}

// validateSchema checks the decoded document against the structural schema.
func validateSchema(raw any) error {
	if err := compiledSchema.Validate(raw); err != nil {
		return fmt.Errorf("policy structure invalid: %w", err)
	}
	return nil
}
