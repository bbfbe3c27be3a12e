package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildQuestionJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. It is sent to the model as an output constraint and reused
// locally to validate the reply shape.
func BuildQuestionJSONSchema(includeClassification bool, allowedTypes []string) map[string]any {
	props := map[string]any{
		"question_text": map[string]any{"type": "string", "minLength": 1},
		"options": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string", "minLength": 1},
			"minItems": 2,
			"maxItems": 6,
		},
	}
	required := []string{"question_text", "options"}

	if includeClassification {
		typeProp := map[string]any{"type": "string"}
		if len(allowedTypes) > 0 {
			typeProp["enum"] = allowedTypes
		}
		props["question_type"] = typeProp
		props["preliminary_answer"] = map[string]any{"type": "string", "pattern": `^[A-F]$`}
		props["answer_reason"] = map[string]any{"type": "string"}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             required,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
