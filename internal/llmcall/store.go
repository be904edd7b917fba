package llmcall

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	RunID    string
	Executor string
	Model    string
	Chunk    *int
	After    *time.Time
	Before   *time.Time
	Success  *bool
	Limit    int
	Offset   int
}

// Match reports whether c passes the filter. Limit and Offset are ignored.
func (f QueryFilter) Match(c *Call) bool {
	switch {
	case f.RunID != "" && c.RunID != f.RunID:
		return false
	case f.Executor != "" && c.Executor != f.Executor:
		return false
	case f.Model != "" && c.Model != f.Model:
		return false
	case f.Chunk != nil && c.ChunkIndex != *f.Chunk:
		return false
	case f.After != nil && !c.Timestamp.After(*f.After):
		return false
	case f.Before != nil && !c.Timestamp.Before(*f.Before):
		return false
	case f.Success != nil && c.Success != *f.Success:
		return false
	}
	return true
}

// Read decodes calls from a JSON-lines stream, keeping those that match.
func Read(r io.Reader, filter QueryFilter) ([]Call, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var calls []Call
	skipped := 0
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c Call
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if !filter.Match(&c) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		calls = append(calls, c)
		if filter.Limit > 0 && len(calls) >= filter.Limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return calls, nil
}

// List reads the calls file at path. A missing file yields no calls.
func List(path string, filter QueryFilter) ([]Call, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, filter)
}

// Summary aggregates calls per executor.
type Summary struct {
	Executor     string  `json:"executor" yaml:"executor"`
	Calls        int     `json:"calls" yaml:"calls"`
	Failures     int     `json:"failures" yaml:"failures"`
	InputTokens  int     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int     `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64 `json:"cost_usd" yaml:"cost_usd"`
}

// Summarize groups calls by executor in first-seen order.
func Summarize(calls []Call) []Summary {
	idx := make(map[string]int)
	var out []Summary
	for _, c := range calls {
		i, ok := idx[c.Executor]
		if !ok {
			i = len(out)
			idx[c.Executor] = i
			out = append(out, Summary{Executor: c.Executor})
		}
		s := &out[i]
		s.Calls++
		if !c.Success {
			s.Failures++
		}
		s.InputTokens += c.InputTokens
		s.OutputTokens += c.OutputTokens
		s.CostUSD += c.CostUSD
	}
	return out
}
