package ollama

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const extractionSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "vendor_name": {"type": ["string", "null"]},
    "end_date": {"type": ["string", "null"]},
    "notice_days": {"type": ["integer", "null"]},
    "auto_renews": {"type": ["boolean", "null"]},
    "renewal_term_months": {"type": ["integer", "null"]},
    "cancellation_deadline": {"type": ["string", "null"]},
    "renewal_clauses": {"type": ["array", "null"], "items": {"type": "string"}},
    "penalty_clauses": {"type": ["array", "null"], "items": {"type": "string"}},
    "key_dates": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "date": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]}
        }
      }
    },
    "summary": {"type": ["string", "null"]}
  }
}`

func compileExtractionSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add extraction schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("compile extraction schema: %w", err)
	}
	return schema, nil
}
