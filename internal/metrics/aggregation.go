package metrics

import (
	"sort"
	"time"
)

// Summary provides a summary of a set of metrics.
type Summary struct {
	Count          int           `json:"count" yaml:"count"`
	TotalCostUSD   float64       `json:"total_cost_usd" yaml:"total_cost_usd"`
	TotalTokens    int           `json:"total_tokens" yaml:"total_tokens"`
	TotalTime      time.Duration `json:"total_time" yaml:"total_time"`
	SuccessCount   int           `json:"success_count" yaml:"success_count"`
	ErrorCount     int           `json:"error_count" yaml:"error_count"`
	AvgCostUSD     float64       `json:"avg_cost_usd" yaml:"avg_cost_usd"`
	AvgTokens      float64       `json:"avg_tokens" yaml:"avg_tokens"`
	AvgTimeSeconds float64       `json:"avg_time_seconds" yaml:"avg_time_seconds"`
}

// Summarize totals ms.
func Summarize(ms []Metric) *Summary {
	s := &Summary{Count: len(ms)}
	for _, m := range ms {
		s.TotalCostUSD += m.CostUSD
		s.TotalTokens += m.TotalTokens
		s.TotalTime += time.Duration(m.ExecutionSeconds * float64(time.Second))
		if m.Success {
			s.SuccessCount++
		} else {
			s.ErrorCount++
		}
	}

	if s.Count > 0 {
		s.AvgCostUSD = s.TotalCostUSD / float64(s.Count)
		s.AvgTokens = float64(s.TotalTokens) / float64(s.Count)
		s.AvgTimeSeconds = s.TotalTime.Seconds() / float64(s.Count)
	}
	return s
}

// DetailedStats adds latency percentiles and token breakdowns to a Summary.
type DetailedStats struct {
	Count        int `json:"count" yaml:"count"`
	SuccessCount int `json:"success_count" yaml:"success_count"`
	ErrorCount   int `json:"error_count" yaml:"error_count"`

	TotalCostUSD float64 `json:"total_cost_usd" yaml:"total_cost_usd"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50" yaml:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95" yaml:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99" yaml:"latency_p99"`
	LatencyMin float64 `json:"latency_min" yaml:"latency_min"`
	LatencyMax float64 `json:"latency_max" yaml:"latency_max"`

	TotalPromptTokens     int `json:"total_prompt_tokens" yaml:"total_prompt_tokens"`
	TotalCompletionTokens int `json:"total_completion_tokens" yaml:"total_completion_tokens"`
}

// Detailed computes DetailedStats over ms.
func Detailed(ms []Metric) *DetailedStats {
	stats := &DetailedStats{Count: len(ms)}
	var latencies []float64
	for _, m := range ms {
		stats.TotalCostUSD += m.CostUSD
		if m.Success {
			stats.SuccessCount++
		} else {
			stats.ErrorCount++
		}
		stats.TotalPromptTokens += m.PromptTokens
		stats.TotalCompletionTokens += m.CompletionTokens
		if m.ExecutionSeconds > 0 {
			latencies = append(latencies, m.ExecutionSeconds)
		}
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		stats.LatencyMin = latencies[0]
		stats.LatencyMax = latencies[len(latencies)-1]
		stats.LatencyP50 = percentile(latencies, 50)
		stats.LatencyP95 = percentile(latencies, 95)
		stats.LatencyP99 = percentile(latencies, 99)
	}
	return stats
}

// ByExecutor returns DetailedStats grouped by executor name.
func ByExecutor(ms []Metric) map[string]*DetailedStats {
	grouped := make(map[string][]Metric)
	for _, m := range ms {
		grouped[m.Executor] = append(grouped[m.Executor], m)
	}
	out := make(map[string]*DetailedStats, len(grouped))
	for name, group := range grouped {
		out[name] = Detailed(group)
	}
	return out
}

// percentile calculates the p-th percentile from a sorted slice of values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	// Interpolate between floor and ceil indices
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
