// Package llmcall records every backend call of a run for traceability.
// Records are appended as JSON lines to the run's calls.jsonl.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/plotline/internal/providers"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	RunID      string `json:"run_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	ExecutorID int    `json:"executor_id,omitempty"`
	Executor   string `json:"executor,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
	RequestID   string   `json:"request_id,omitempty"`

	// Token usage
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	// Response
	Response   string `json:"response,omitempty"`
	Structured bool   `json:"structured,omitempty"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	RunID      string
	ChunkIndex int
	ExecutorID int
	Executor   string
	Attempt    int
	Model      string // Used when the result does not name the model

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64

	// Err is the error returned alongside result, if any.
	Err error
}

// FromChatResult creates a Call from a ChatResult.
// A nil result still yields a record when opts.Err is set, since a failed
// call may return no result at all.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil && opts.Err == nil {
		return nil
	}

	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		RunID:       opts.RunID,
		ChunkIndex:  opts.ChunkIndex,
		ExecutorID:  opts.ExecutorID,
		Executor:    opts.Executor,
		Attempt:     opts.Attempt,
		Model:       opts.Model,
		Temperature: opts.Temperature,
	}

	if result != nil {
		call.LatencyMs = int(result.ExecutionTime.Milliseconds())
		call.Provider = result.Provider
		if result.ModelUsed != "" {
			call.Model = result.ModelUsed
		}
		call.RequestID = result.RequestID
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
		call.CostUSD = result.CostUSD
		call.Response = result.Content
		call.Structured = len(result.ParsedJSON) > 0
		call.Success = result.Success
		if !result.Success {
			call.Error = result.ErrorMessage
		}
	}

	if opts.Err != nil {
		call.Success = false
		call.Error = opts.Err.Error()
	}
	return call
}
