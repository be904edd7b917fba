// Package jobs runs chunk extraction across a pool of model executors.
//
// Each executor gets a Worker with a fixed number of slot goroutines. Pending
// chunks are split into contiguous blocks, one private list per worker; chunks
// that fail on one executor move to a shared queue where any healthy worker
// can pick them up. Executors that keep failing are quarantined by the health
// tracker, chunks that keep failing everywhere are abandoned, and every
// success is checkpointed so a later run only processes what is missing.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/plotline/internal/providers"
)

// Executor is one model backend participating in a run.
type Executor struct {
	ID      int    // 1-based position in the configured list
	Name    string // Unique display name
	Client  providers.LLMClient
	Model   string
	RPS     float64       // Requests per second; 0 disables rate limiting
	Timeout time.Duration // Per backend call; 0 means no executor timeout

	// Limiter overrides the limiter built from RPS, so executors sharing a
	// provider account can share a bucket.
	Limiter *providers.RateLimiter

	limiterOnce sync.Once
}

func (e *Executor) validate() error {
	if e == nil {
		return fmt.Errorf("nil executor")
	}
	if e.Client == nil {
		return fmt.Errorf("executor %q has no client", e.Name)
	}
	if e.ID <= 0 {
		return fmt.Errorf("executor %q has invalid id %d", e.Name, e.ID)
	}
	return nil
}

// limiter returns the executor's rate limiter, building it from RPS on first
// use. Safe for concurrent slots.
func (e *Executor) limiter() *providers.RateLimiter {
	e.limiterOnce.Do(func() {
		if e.Limiter == nil {
			e.Limiter = providers.NewRateLimiter(e.RPS)
		}
	})
	return e.Limiter
}

// call sends one request, bounded by the executor timeout.
func (e *Executor) call(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	if req.Model == "" {
		req.Model = e.Model
	}
	if e.Timeout > 0 {
		if req.Timeout == 0 || req.Timeout > e.Timeout {
			req.Timeout = e.Timeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	return e.Client.Chat(ctx, req)
}

// NewExecutors builds executors from a provider registry. IDs follow the
// order of specs.
func NewExecutors(reg *providers.Registry, specs []ExecutorSpec) ([]*Executor, error) {
	out := make([]*Executor, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		client, err := reg.GetLLM(s.Provider)
		if err != nil {
			return nil, fmt.Errorf("executor %d: %w", i+1, err)
		}
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("%s/%s", s.Provider, s.Model)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate executor name %q", name)
		}
		seen[name] = true

		rps := s.RPS
		if rps == 0 {
			rps = reg.RateLimit(s.Provider)
		}
		out = append(out, &Executor{
			ID:      i + 1,
			Name:    name,
			Client:  client,
			Model:   s.Model,
			RPS:     rps,
			Timeout: s.Timeout,
		})
	}
	return out, nil
}

// ExecutorSpec names a provider and model from configuration.
type ExecutorSpec struct {
	Name     string
	Provider string
	Model    string
	RPS      float64
	Timeout  time.Duration
}
