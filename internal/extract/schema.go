package extract

import (
	"encoding/json"

	"github.com/jackzampolin/plotline/internal/parser"
	"github.com/jackzampolin/plotline/internal/providers"
)

// SchemaName names the structured-output schema sent to backends.
const SchemaName = "character_plots"

// ResponseFormat returns the structured-output request for plot extraction.
// Strict mode is off: strict schemas cannot express free-form character keys.
func ResponseFormat() *providers.ResponseFormat {
	envelope, _ := json.Marshal(struct {
		Name   string          `json:"name"`
		Strict bool            `json:"strict"`
		Schema json.RawMessage `json:"schema"`
	}{
		Name:   SchemaName,
		Strict: false,
		Schema: parser.EntriesSchema,
	})
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: envelope,
	}
}
