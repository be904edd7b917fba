package parser

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EntriesSchema describes a name → text object whose values may instead be a
// section → text object.
var EntriesSchema = json.RawMessage(`{
  "type": "object",
  "minProperties": 1,
  "additionalProperties": {
    "anyOf": [
      {"type": "string"},
      {"type": "object", "additionalProperties": {"type": "string"}}
    ]
  }
}`)

var entriesSchema = jsonschema.MustCompileString("entries.json", string(EntriesSchema))

// Validate reports whether raw conforms to EntriesSchema.
func Validate(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	if err := entriesSchema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match entries schema: %w", err)
	}
	return nil
}
