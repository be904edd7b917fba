// Package extract is the character plot extraction task: the prompt sent for
// each chunk, the checks applied to what comes back, and the merge of all
// chunk results into one character index.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/jobs"
	"github.com/jackzampolin/plotline/internal/parser"
	"github.com/jackzampolin/plotline/internal/providers"
)

var (
	// ErrEmptyResult is returned when a response parsed to no entries.
	ErrEmptyResult = errors.New("empty extraction result")

	// ErrTargetMissing is returned when a requested character is mentioned in
	// the chunk but has no entry in the result.
	ErrTargetMissing = errors.New("target mentioned in chunk but missing from result")
)

// Config configures the extraction task.
type Config struct {
	Targets          []string // Characters to report; empty means all
	Temperature      float64
	MaxTokens        int
	StructuredOutput bool // Ask backends for schema-constrained JSON
}

// DefaultConfig returns the default extraction settings.
func DefaultConfig() Config {
	return Config{
		Temperature:      0.2,
		MaxTokens:        2048,
		StructuredOutput: true,
	}
}

// Task implements jobs.Task for plot extraction.
type Task struct {
	cfg   Config
	total int
}

// NewTask creates a task for a run over total chunks.
func NewTask(cfg Config, total int) *Task {
	targets := make([]string, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	cfg.Targets = targets
	return &Task{cfg: cfg, total: total}
}

// Request builds the chat request for c.
func (t *Task) Request(c chunk.Chunk) *providers.ChatRequest {
	req := &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: SystemPrompt()},
			{Role: providers.RoleUser, Content: UserPrompt(PromptData{
				Title:   c.Title,
				Number:  c.Index + 1,
				Total:   t.total,
				Text:    c.Text,
				Targets: t.cfg.Targets,
			})},
		},
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
	}
	if t.cfg.StructuredOutput {
		req.ResponseFormat = ResponseFormat()
	}
	return req
}

// Accept rejects empty results and results that leave out a requested
// character the chunk mentions.
func (t *Task) Accept(c chunk.Chunk, res *parser.Result) error {
	if res.Failed() || len(res.Entries) == 0 {
		return ErrEmptyResult
	}
	if len(t.cfg.Targets) == 0 {
		return nil
	}

	text := strings.ToLower(c.Text)
	for _, target := range t.cfg.Targets {
		if !strings.Contains(text, strings.ToLower(target)) {
			continue
		}
		if strings.TrimSpace(lookup(res.Entries, target)) == "" {
			return fmt.Errorf("%w: %s", ErrTargetMissing, target)
		}
	}
	return nil
}

// lookup finds name in entries, ignoring case.
func lookup(entries map[string]string, name string) string {
	if v, ok := entries[name]; ok {
		return v
	}
	for k, v := range entries {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

var _ jobs.Task = (*Task)(nil)
