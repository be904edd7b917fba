package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/llmcall"
	"github.com/jackzampolin/plotline/internal/parser"
	"github.com/jackzampolin/plotline/internal/providers"
)

// Worker drives one executor with a fixed number of slot goroutines.
// Slots pop from the worker's private list first, then the shared queue.
type Worker struct {
	exec    *Executor
	run     *run
	private *chunkList
	logger  *slog.Logger

	inFlight atomic.Int32
}

func newWorker(exec *Executor, r *run, assigned []int) *Worker {
	return &Worker{
		exec:    exec,
		run:     r,
		private: newChunkList(assigned),
		logger:  r.logger.With("executor", exec.Name, "executor_id", exec.ID),
	}
}

// Run starts the slots and blocks until all of them exit. Per-chunk failures
// never escape; Run only returns once there is nothing left for this
// executor to do.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Debug("worker started",
		"slots", w.run.cfg.SlotsPerModel,
		"assigned", w.private.len(),
		"model", w.exec.Model)

	var g errgroup.Group
	for i := 1; i <= w.run.cfg.SlotsPerModel; i++ {
		slot := i
		g.Go(func() error {
			w.slot(ctx, slot)
			return nil
		})
	}
	err := g.Wait()

	// Hand anything still assigned to the survivors.
	w.surrender()

	w.logger.Debug("worker stopped", "healthy", w.run.health.IsHealthy(w.exec.ID))
	return err
}

// InFlight returns the number of backend calls in progress.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

func (w *Worker) slot(ctx context.Context, n int) {
	logger := w.logger.With("slot", n)
	for {
		if ctx.Err() != nil {
			return
		}
		if !w.run.health.IsHealthy(w.exec.ID) {
			if moved := w.surrender(); moved > 0 {
				logger.Info("executor unhealthy, released assigned chunks", "chunks", moved)
			}
			return
		}

		// Taken before popping so a push between the pop and the wait
		// still wakes this slot.
		wake := w.run.queue.Wait()

		w.run.state.acquire()
		idx, ok := w.next()
		if ok {
			w.process(ctx, logger, idx)
			w.run.state.release()
			continue
		}
		w.run.state.release()

		if w.run.finished() {
			return
		}
		w.run.idle(ctx, wake)
	}
}

func (w *Worker) next() (int, bool) {
	if idx, ok := w.private.pop(); ok {
		return idx, true
	}
	return w.run.queue.Pop()
}

// surrender moves the private list to the shared queue.
func (w *Worker) surrender() int {
	moved := w.private.drain()
	w.run.queue.Push(moved...)
	return len(moved)
}

func (w *Worker) process(ctx context.Context, logger *slog.Logger, idx int) {
	if w.run.results.resolved(idx) {
		return
	}
	c := w.run.chunks[idx]
	id := w.exec.ID

	if w.run.ledger.Contains(idx, id) {
		if !w.run.ledger.Covers(idx, w.run.health.HealthyIDs()) {
			logger.Debug("chunk already failed here, leaving it for another executor", "chunk", idx)
			w.run.queue.Push(idx)
			w.run.pause(ctx)
			return
		}
		// Every healthy executor has failed it; start over.
		w.run.ledger.Clear(idx)
	}

	attempt, ok := w.run.retries.claim(idx, w.run.limit)
	if !ok {
		w.run.abandon(idx, attempt, w.exec.Name)
		return
	}

	res, err := w.attempt(ctx, logger, c, attempt)
	if err != nil && ctx.Err() != nil {
		w.run.queue.Push(idx)
		return
	}
	if err != nil {
		w.run.retries.setErr(idx, err)
		w.run.ledger.Add(idx, id)
		if w.run.health.RecordFailure(id, err) {
			rec, _ := w.run.health.Get(id)
			logger.Warn("executor quarantined",
				"consecutive_failures", rec.ConsecutiveFailures,
				"success_rate", rec.SuccessRate,
				"attempts", rec.TotalAttempts)
			w.run.cfg.Metrics.SetHealthy(w.exec.Name, false)
			w.run.queue.Broadcast()
		}
		logger.Warn("chunk failed", "chunk", idx, "attempt", attempt, "error", err)
		w.run.queue.Push(idx)
		return
	}

	cr := newChunkResult(idx, c.Title, res, w.exec, attempt)
	if store := w.run.cfg.Store; store != nil {
		werr := store.Write(context.WithoutCancel(ctx), cr.artifact(w.exec.Model, w.run.cfg.RunID))
		switch {
		case errors.Is(werr, checkpoint.ErrAlreadyCompleted):
			// The stored artifact wins so this run reports what a resume would.
			a, rerr := store.Read(context.WithoutCancel(ctx), idx)
			if rerr != nil {
				logger.Warn("chunk already checkpointed by another run, keeping own result", "chunk", idx, "error", rerr)
				break
			}
			logger.Warn("chunk already checkpointed by another run, using stored result", "chunk", idx)
			cr = resultFromArtifact(a)
			cr.Resumed = false
		case werr != nil:
			logger.Error("checkpoint write failed, requeueing", "chunk", idx, "error", werr)
			w.run.retries.setErr(idx, fmt.Errorf("checkpoint: %w", werr))
			w.run.queue.Push(idx)
			return
		}
	}

	w.run.health.RecordSuccess(id)
	w.run.ledger.Clear(idx)
	w.run.commit(cr)
	logger.Debug("chunk completed", "chunk", idx, "tier", cr.Tier, "entries", len(cr.Entries))
}

// attempt tries a chunk up to AttemptsPerChunk times on this executor.
// Fatal backend errors end the attempt early.
func (w *Worker) attempt(ctx context.Context, logger *slog.Logger, c chunk.Chunk, attempt int) (*parser.Result, error) {
	cfg := w.run.cfg
	return retry.DoWithData(
		func() (*parser.Result, error) {
			res, err := w.try(ctx, c, attempt)
			if err != nil && providers.IsFatal(err) {
				return nil, retry.Unrecoverable(err)
			}
			return res, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.AttemptsPerChunk)),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("retrying chunk", "chunk", c.Index, "try", n+2, "error", err)
		}),
	)
}

// try makes one backend call and runs the parser and task checks over it.
func (w *Worker) try(ctx context.Context, c chunk.Chunk, attempt int) (*parser.Result, error) {
	limiter := w.exec.limiter()
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := w.run.task.Request(c)
	if req == nil {
		return nil, retry.Unrecoverable(fmt.Errorf("task built no request for chunk %d", c.Index))
	}

	w.inFlight.Add(1)
	start := time.Now()
	res, err := w.exec.call(ctx, req)
	w.inFlight.Add(-1)

	w.record(c.Index, attempt, req, res, err, time.Since(start))
	if err != nil {
		if rle, ok := providers.IsRateLimitError(err); ok {
			limiter.Record429(rle.RetryAfter)
		}
		return nil, err
	}
	if res == nil {
		return nil, providers.ErrEmptyResponse
	}

	parsed := parser.Parse(responseOf(res))
	if parsed.Failed() {
		return nil, ErrUnparseable
	}
	if err := w.run.task.Accept(c, parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func (w *Worker) record(index, attempt int, req *providers.ChatRequest, res *providers.ChatResult, err error, elapsed time.Duration) {
	if res != nil && res.ExecutionTime == 0 {
		res.ExecutionTime = elapsed
	}
	w.run.cfg.Metrics.ObserveCall(w.exec.Name, index, res, err)

	temp := req.Temperature
	w.run.cfg.Calls.Record(res, llmcall.RecordOptions{
		RunID:       w.run.cfg.RunID,
		ChunkIndex:  index,
		ExecutorID:  w.exec.ID,
		Executor:    w.exec.Name,
		Attempt:     attempt,
		Model:       req.Model,
		Temperature: &temp,
		Err:         err,
	})
}

// responseOf picks the parser input: validated structured output when the
// backend produced it, free text otherwise.
func responseOf(res *providers.ChatResult) parser.Response {
	if len(res.ParsedJSON) > 0 {
		return parser.Structured{Raw: res.ParsedJSON}
	}
	return parser.Text{Body: res.Content}
}
