// Package health classifies executors as healthy or unhealthy from their
// per-run attempt outcomes. The transition is one-way: an unhealthy executor
// never recovers within a run.
package health

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config configures when an executor is quarantined.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the executor.
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// MinSamples is the number of attempts before the success-rate floor applies.
	MinSamples int `json:"min_samples" yaml:"min_samples"`

	// MinSuccessRate is the success-rate floor once MinSamples is reached.
	MinSuccessRate float64 `json:"min_success_rate" yaml:"min_success_rate"`
}

// DefaultConfig returns the standard thresholds: 3 consecutive failures, or a
// success rate under 0.3 after 5 attempts.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		MinSamples:       5,
		MinSuccessRate:   0.3,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("FailureThreshold must be positive, got %d", c.FailureThreshold)
	}
	if c.MinSamples <= 0 {
		return fmt.Errorf("MinSamples must be positive, got %d", c.MinSamples)
	}
	if c.MinSuccessRate < 0 || c.MinSuccessRate > 1 {
		return fmt.Errorf("MinSuccessRate must be within [0, 1], got %v", c.MinSuccessRate)
	}
	return nil
}

// Record is a point-in-time view of one executor's health.
type Record struct {
	ExecutorID          int       `json:"executor_id" yaml:"executor_id"`
	Name                string    `json:"name" yaml:"name"`
	SuccessCount        int       `json:"success_count" yaml:"success_count"`
	FailureCount        int       `json:"failure_count" yaml:"failure_count"`
	ConsecutiveFailures int       `json:"consecutive_failures" yaml:"consecutive_failures"`
	TotalAttempts       int       `json:"total_attempts" yaml:"total_attempts"`
	SuccessRate         float64   `json:"success_rate" yaml:"success_rate"`
	Healthy             bool      `json:"healthy" yaml:"healthy"`
	LastError           string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	UnhealthySince      time.Time `json:"unhealthy_since,omitempty" yaml:"unhealthy_since,omitempty"`
}

// Tracker holds health records for a run's executors. Each record is written
// only by the worker that owns the executor; anyone may read.
type Tracker struct {
	mu      sync.RWMutex
	config  Config
	records map[int]*Record
	healthy int
}

// NewTracker creates a tracker. A zero Config takes the defaults; any other
// config is used as given, so MinSuccessRate 0 disables the rate floor.
func NewTracker(cfg Config) *Tracker {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Tracker{
		config:  cfg,
		records: make(map[int]*Record),
	}
}

// Register adds a healthy record for an executor. Registering an existing ID
// is a no-op.
func (t *Tracker) Register(id int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; ok {
		return
	}
	t.records[id] = &Record{ExecutorID: id, Name: name, Healthy: true}
	t.healthy++
}

// RecordSuccess counts a successful chunk attempt.
func (t *Tracker) RecordSuccess(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[id]
	if !ok {
		return
	}
	r.SuccessCount++
	r.TotalAttempts++
	r.ConsecutiveFailures = 0
	r.SuccessRate = float64(r.SuccessCount) / float64(r.TotalAttempts)
}

// RecordFailure counts a failed chunk attempt and applies the transition
// rule. It reports whether this failure made the executor unhealthy.
func (t *Tracker) RecordFailure(id int, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[id]
	if !ok {
		return false
	}
	r.FailureCount++
	r.TotalAttempts++
	r.ConsecutiveFailures++
	r.SuccessRate = float64(r.SuccessCount) / float64(r.TotalAttempts)
	if err != nil {
		r.LastError = err.Error()
	}

	if !r.Healthy || !t.shouldTrip(r) {
		return false
	}
	r.Healthy = false
	r.UnhealthySince = time.Now()
	t.healthy--
	return true
}

func (t *Tracker) shouldTrip(r *Record) bool {
	if r.ConsecutiveFailures >= t.config.FailureThreshold {
		return true
	}
	return r.TotalAttempts >= t.config.MinSamples && r.SuccessRate < t.config.MinSuccessRate
}

// IsHealthy reports whether an executor may take new work. Unknown IDs are
// unhealthy.
func (t *Tracker) IsHealthy(id int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[id]
	return ok && r.Healthy
}

// AnyHealthy reports whether at least one executor is still healthy.
func (t *Tracker) AnyHealthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthy > 0
}

// HealthyIDs returns the IDs of healthy executors in ascending order.
func (t *Tracker) HealthyIDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int, 0, t.healthy)
	for id, r := range t.records {
		if r.Healthy {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Get returns a copy of one executor's record.
func (t *Tracker) Get(id int) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.records[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Snapshot returns copies of all records ordered by executor ID.
func (t *Tracker) Snapshot() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutorID < out[j].ExecutorID })
	return out
}
