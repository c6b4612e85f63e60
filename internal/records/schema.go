package records

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildRecordSchema returns the JSON-Schema (draft 2020-12 subset) a queue file must satisfy.
// Every field is optional; extra keys are allowed and preserved.
func BuildRecordSchema() map[string]any {
	lineItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date_of_service": textProp(),
			"plos":            textProp(),
			"cpt":             textProp(),
			"modifier":        textProp(),
			"cleaned_charge":  amountProp(),
			"units":           textProp(),
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"patient_name":         textProp(),
			"cleaned_dos1":         textProp(),
			"cleaned_dos2":         textProp(),
			"cleaned_total_charge": amountProp(),
			"patient_acct_no":      textProp(),
			"tin":                  textProp(),
			"line_items": map[string]any{
				"type":  []string{"array", "null"},
				"items": lineItem,
			},
		},
	}
}

func textProp() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}

func amountProp() map[string]any {
	return map[string]any{"type": []string{"string", "number", "null"}}
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("record.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
