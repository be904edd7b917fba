package extract

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"strings"
	"text/template"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed user.tmpl
var userPromptTmpl string

var userTemplate = template.Must(template.New("user").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(userPromptTmpl))

// SystemPrompt returns the system prompt for plot extraction.
func SystemPrompt() string {
	return systemPrompt
}

// PromptData fills the user prompt template.
type PromptData struct {
	Title   string
	Number  int // 1-based
	Total   int
	Text    string
	Targets []string
}

// UserPrompt builds the user prompt for one chunk.
func UserPrompt(data PromptData) string {
	var buf bytes.Buffer
	if err := userTemplate.Execute(&buf, data); err != nil {
		// Fallback to the bare excerpt
		return data.Text
	}
	return buf.String()
}

// PromptHash identifies the prompt version recorded with a run.
func PromptHash() string {
	h := sha256.Sum256([]byte(systemPrompt + userPromptTmpl))
	return hex.EncodeToString(h[:8])
}
