package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/health"
	"github.com/jackzampolin/plotline/internal/metrics"
)

// Scheduler partitions chunks across executors and runs one Worker per
// executor. It never calls a backend itself.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger
}

// NewScheduler validates cfg and fills in defaults.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if err := cfg.Health.Validate(); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger.With("run_id", cfg.RunID),
	}, nil
}

// RunID returns the ID stamped on this scheduler's artifacts.
func (s *Scheduler) RunID() string {
	return s.cfg.RunID
}

// Run processes every chunk that has no checkpoint yet. It waits for all
// workers and always returns a RunResult; when some chunks did not complete
// the error is an *IncompleteError.
func (s *Scheduler) Run(ctx context.Context, chunks []chunk.Chunk, executors []*Executor, task Task) (*RunResult, error) {
	if len(executors) == 0 {
		return nil, ErrNoExecutors
	}
	if task == nil {
		return nil, fmt.Errorf("nil task")
	}
	for _, e := range executors {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	r := newRun(s.cfg, s.logger, chunks, executors, task)

	if err := r.resume(ctx); err != nil {
		return nil, err
	}
	pending := r.pending()
	r.state.unresolved = len(pending)
	s.cfg.Metrics.SetUnresolved(len(pending))

	s.logger.Info("run starting",
		"chunks", r.total,
		"resumed", r.resumed,
		"pending", len(pending),
		"executors", len(executors),
		"slots_per_model", s.cfg.SlotsPerModel,
		"abandon_after", r.limit)

	if len(pending) > 0 {
		blocks := Partition(pending, len(executors))
		g, gctx := errgroup.WithContext(ctx)
		for i, exec := range executors {
			w := newWorker(exec, r, blocks[i])
			g.Go(func() error {
				return w.Run(gctx)
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Error("worker error", "error", err)
		}
	}

	return r.finish(ctx, start)
}

// run is the state shared by one Run's workers.
type run struct {
	cfg    Config
	logger *slog.Logger
	task   Task

	chunks    map[int]chunk.Chunk
	order     []int
	total     int
	executors []*Executor
	limit     int
	resumed   int

	queue   *Queue
	ledger  *Ledger
	retries *retryCounter
	state   *runState
	results *results
	health  *health.Tracker
}

func newRun(cfg Config, logger *slog.Logger, chunks []chunk.Chunk, executors []*Executor, task Task) *run {
	r := &run{
		cfg:       cfg,
		logger:    logger,
		task:      task,
		chunks:    make(map[int]chunk.Chunk, len(chunks)),
		executors: executors,
		limit:     len(executors) * cfg.AbandonMultiplier,
		queue:     NewQueue(),
		ledger:    NewLedger(),
		retries:   newRetryCounter(),
		state:     &runState{},
		results:   newResults(),
		health:    health.NewTracker(cfg.Health),
	}
	for _, c := range chunks {
		if _, dup := r.chunks[c.Index]; dup {
			continue
		}
		r.chunks[c.Index] = c
		r.order = append(r.order, c.Index)
	}
	sort.Ints(r.order)
	r.total = len(r.order)

	for _, e := range executors {
		r.health.Register(e.ID, e.Name)
		cfg.Metrics.SetHealthy(e.Name, true)
	}
	return r
}

// resume loads existing artifacts into the result slots. Artifacts that
// cannot be read are logged and the chunk is processed again.
func (r *run) resume(ctx context.Context) error {
	store := r.cfg.Store
	if store == nil {
		return nil
	}
	done, err := store.ListCompleted(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for _, idx := range done {
		if _, ok := r.chunks[idx]; !ok {
			continue
		}
		a, err := store.Read(ctx, idx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("unreadable checkpoint, chunk will be reprocessed", "chunk", idx, "error", err)
			continue
		}
		if r.results.commit(resultFromArtifact(a)) {
			r.resumed++
		}
	}
	r.cfg.Metrics.ChunkOutcome(metrics.OutcomeResumed, r.resumed)
	return nil
}

func (r *run) pending() []int {
	var out []int
	for _, idx := range r.order {
		if !r.results.resolved(idx) {
			out = append(out, idx)
		}
	}
	return out
}

func (r *run) commit(cr ChunkResult) {
	if !r.results.commit(cr) {
		return
	}
	remaining := r.state.resolve()
	r.cfg.Metrics.ChunkOutcome(metrics.OutcomeCompleted, 1)
	r.cfg.Metrics.SetUnresolved(remaining)
	r.progress(cr.Index, cr.Executor, false)
	if remaining == 0 {
		r.queue.Broadcast()
	}
}

func (r *run) abandon(idx, attempts int, executor string) {
	err := r.retries.err(idx)
	if err == nil {
		err = fmt.Errorf("retry limit reached")
	}
	if !r.results.fail(ChunkFailure{Index: idx, Attempts: attempts, Error: err.Error(), Err: err}) {
		return
	}
	remaining := r.state.resolve()
	r.logger.Warn("chunk abandoned", "chunk", idx, "attempts", attempts, "error", err)
	r.cfg.Metrics.ChunkOutcome(metrics.OutcomeAbandoned, 1)
	r.cfg.Metrics.SetUnresolved(remaining)
	r.progress(idx, executor, true)
	if remaining == 0 {
		r.queue.Broadcast()
	}
}

func (r *run) progress(idx int, executor string, abandoned bool) {
	if r.cfg.OnProgress == nil {
		return
	}
	done, failed := r.results.counts()
	r.cfg.OnProgress(Progress{
		Total:     r.total,
		Completed: done,
		Failed:    failed,
		Remaining: r.total - done - failed,
		Chunk:     idx,
		Executor:  executor,
		Abandoned: abandoned,
	})
}

// finished reports whether an idle slot should exit: nothing is left, or
// nobody is working and nobody healthy remains to pick work up.
func (r *run) finished() bool {
	active, unresolved := r.state.snapshot()
	if unresolved <= 0 {
		return true
	}
	return active == 0 && !r.health.AnyHealthy()
}

// idle blocks until the queue is pushed to, the poll interval passes or ctx
// is done.
func (r *run) idle(ctx context.Context, wake <-chan struct{}) {
	timer := time.NewTimer(r.cfg.IdlePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-wake:
	case <-timer.C:
	}
}

// pause waits one poll interval.
func (r *run) pause(ctx context.Context) {
	timer := time.NewTimer(r.cfg.IdlePoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// finish marks leftovers as failed and assembles the RunResult.
func (r *run) finish(ctx context.Context, start time.Time) (*RunResult, error) {
	cancelled := ctx.Err() != nil
	exhausted := !r.health.AnyHealthy()

	leftover := ErrNoHealthyExecutors
	if cancelled {
		leftover = ErrCancelled
	}
	for _, idx := range r.pending() {
		err := leftover
		if !cancelled && !exhausted {
			// Every worker exited with work outstanding.
			err = errors.New("unprocessed")
		}
		if last := r.retries.err(idx); last != nil && !cancelled {
			err = fmt.Errorf("%w (last error: %v)", err, last)
		}
		r.results.fail(ChunkFailure{
			Index:    idx,
			Attempts: r.retries.count(idx),
			Error:    err.Error(),
			Err:      err,
		})
	}

	results, failures := r.results.sorted()
	res := &RunResult{
		RunID:     r.cfg.RunID,
		Total:     r.total,
		Results:   results,
		Failures:  failures,
		Health:    r.health.Snapshot(),
		Resumed:   r.resumed,
		Processed: len(results) - r.resumed,
		Exhausted: exhausted,
		Cancelled: cancelled,
		Duration:  time.Since(start),
	}
	r.cfg.Metrics.SetUnresolved(0)

	r.logger.Info("run finished",
		"completed", len(results),
		"processed", res.Processed,
		"failed", len(failures),
		"exhausted", exhausted,
		"cancelled", cancelled,
		"duration", res.Duration)

	if len(failures) == 0 {
		return res, nil
	}
	return res, &IncompleteError{
		Succeeded:     len(results),
		Failed:        len(failures),
		FailedIndices: res.FailedIndices(),
		Resumable:     true,
		Exhausted:     exhausted,
		Cancelled:     cancelled,
	}
}
