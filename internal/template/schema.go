package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildTemplateJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map describing the template wire format. Structural problems are
// caught here before decoding; semantic problems (bad regexes) are handled
// later and are non-fatal.
func BuildTemplateJSONSchema() map[string]any {
	pattern := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern":              map[string]any{"type": "string", "minLength": 1},
			"case_sensitive":       map[string]any{"type": "boolean"},
			"multiline":            map[string]any{"type": "boolean"},
			"confidence_threshold": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"priority":             map[string]any{"type": "integer"},
			"validation_pattern":   map[string]any{"type": "string"},
			"cleanup_pattern":      map[string]any{"type": "string"},
			"replacement_pattern":  map[string]any{"type": "string"},
			"name":                 map[string]any{"type": "string"},
		},
		"required": []string{"pattern"},
	}

	extractionRule := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"field_name":     map[string]any{"type": "string", "minLength": 1},
			"field_type":     map[string]any{"type": "string"},
			"patterns":       map[string]any{"type": "array", "items": pattern},
			"required":       map[string]any{"type": "boolean"},
			"min_confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"default_value":  map[string]any{"type": "string"},
		},
		"required": []string{"field_name", "patterns"},
	}

	tableRule := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"table_name":       map[string]any{"type": "string", "minLength": 1},
			"header_patterns":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"column_mapping":   map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			"numeric_columns":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"required_columns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"min_rows":         map[string]any{"type": "integer", "minimum": 0},
			"line_patterns":    map[string]any{"type": "array", "items": pattern},
		},
		"required": []string{"table_name"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template_id":         map[string]any{"type": "string", "minLength": 1},
			"name":                map[string]any{"type": "string"},
			"supplier_name":       map[string]any{"type": []any{"string", "null"}},
			"supplier_aliases":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"supplier_patterns":   map[string]any{"type": "array", "items": pattern},
			"extraction_rules":    map[string]any{"type": "array", "items": extractionRule},
			"table_rules":         map[string]any{"type": "array", "items": tableRule},
			"language":            map[string]any{"type": "string"},
			"currency":            map[string]any{"type": "string"},
			"date_format":         map[string]any{"type": "string"},
			"decimal_separator":   map[string]any{"type": "string"},
			"thousands_separator": map[string]any{"type": "string"},
			"min_confidence":      map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"fallback_enabled":    map[string]any{"type": "boolean"},
			"strict_mode":         map[string]any{"type": "boolean"},
		},
		"required": []string{"template_id", "extraction_rules"},
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
