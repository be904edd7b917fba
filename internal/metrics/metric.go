// Package metrics tracks cost, usage and outcome counters for a run. Counters
// are exported in Prometheus format; per-call records feed the aggregate
// statistics printed at the end of a run.
package metrics

import (
	"time"

	"github.com/jackzampolin/plotline/internal/llmcall"
	"github.com/jackzampolin/plotline/internal/providers"
)

// Metric represents a single backend call.
type Metric struct {
	// Attribution
	RunID      string `json:"run_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Executor   string `json:"executor,omitempty"`

	// Provider info
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Cost and tokens
	CostUSD          float64 `json:"cost_usd,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`

	// Timing
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`

	// Status
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// FromChatResult builds a Metric from a call outcome. result may be nil when
// the call failed before the backend answered.
func FromChatResult(executor string, chunkIndex int, result *providers.ChatResult, err error) Metric {
	m := Metric{
		ChunkIndex: chunkIndex,
		Executor:   executor,
		CreatedAt:  time.Now(),
	}
	if result != nil {
		m.Provider = result.Provider
		m.Model = result.ModelUsed
		m.CostUSD = result.CostUSD
		m.PromptTokens = result.PromptTokens
		m.CompletionTokens = result.CompletionTokens
		m.TotalTokens = result.TotalTokens
		m.ExecutionSeconds = result.ExecutionTime.Seconds()
		if m.ExecutionSeconds == 0 {
			m.ExecutionSeconds = result.TotalTime.Seconds()
		}
		m.Success = result.Success
		m.ErrorType = result.ErrorType
	}
	if err != nil {
		m.Success = false
		if m.ErrorType == "" {
			m.ErrorType = errorType(err)
		}
	}
	return m
}

// FromCall converts a recorded call, as read back from calls.jsonl.
func FromCall(c llmcall.Call) Metric {
	m := Metric{
		RunID:            c.RunID,
		ChunkIndex:       c.ChunkIndex,
		Executor:         c.Executor,
		Provider:         c.Provider,
		Model:            c.Model,
		CostUSD:          c.CostUSD,
		PromptTokens:     c.InputTokens,
		CompletionTokens: c.OutputTokens,
		TotalTokens:      c.InputTokens + c.OutputTokens,
		ExecutionSeconds: float64(c.LatencyMs) / 1000,
		Success:          c.Success,
		CreatedAt:        c.Timestamp,
	}
	if !c.Success {
		m.ErrorType = "error"
	}
	return m
}

func errorType(err error) string {
	switch {
	case providers.IsFatal(err):
		return "fatal"
	default:
		if _, ok := providers.IsRateLimitError(err); ok {
			return "rate_limit"
		}
		return "error"
	}
}
