package llmcall

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackzampolin/plotline/internal/providers"
)

// Recorder handles fire-and-forget call recording. Calls are queued and
// written as JSON lines by a single background goroutine.
type Recorder struct {
	w      *bufio.Writer
	closer io.Closer
	logger *slog.Logger

	queue    chan *Call
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	written int
	dropped int
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	QueueSize int // Buffer size (default: 256)
	Logger    *slog.Logger
}

// NewRecorder starts a recorder writing to w. If w is an io.Closer it is
// closed by Close.
func NewRecorder(w io.Writer, cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Recorder{
		w:      bufio.NewWriter(w),
		logger: cfg.Logger,
		queue:  make(chan *Call, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	go r.run()
	return r
}

// OpenFile appends to the calls file at path, creating it and its directory.
func OpenFile(path string, cfg RecorderConfig) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create calls directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open calls file: %w", err)
	}
	return NewRecorder(f, cfg), nil
}

// Record captures a call asynchronously. A nil recorder is a no-op.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil {
		return
	}
	r.RecordCall(FromChatResult(result, opts))
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || call == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("call recorder closed, dropping record", "call_id", call.ID)
		}
	}()

	select {
	case r.queue <- call:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("call recorder queue full, dropping record", "call_id", call.ID)
	}
}

// Close flushes queued records and closes the underlying writer.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.stopOnce.Do(func() {
		close(r.queue)
		<-r.done
		if r.closer != nil {
			err = r.closer.Close()
		}
	})
	return err
}

// Stats returns how many records were written and dropped.
func (r *Recorder) Stats() (written, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}

func (r *Recorder) run() {
	defer close(r.done)
	enc := json.NewEncoder(r.w)
	for call := range r.queue {
		if err := enc.Encode(call); err != nil {
			r.logger.Error("failed to write call record", "call_id", call.ID, "error", err)
			continue
		}
		r.mu.Lock()
		r.written++
		r.mu.Unlock()

		// Flush when the queue drains so a crash loses little.
		if len(r.queue) == 0 {
			if err := r.w.Flush(); err != nil {
				r.logger.Error("failed to flush call records", "error", err)
			}
		}
	}
	if err := r.w.Flush(); err != nil {
		r.logger.Error("failed to flush call records", "error", err)
	}
}
