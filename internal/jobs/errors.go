package jobs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoExecutors is returned when a run is started without executors.
	ErrNoExecutors = errors.New("no executors configured")

	// ErrNoHealthyExecutors marks chunks left over once every executor was quarantined.
	ErrNoHealthyExecutors = errors.New("no healthy executors remaining")

	// ErrUnparseable is returned when no parser tier produced an entry.
	ErrUnparseable = errors.New("response could not be parsed")

	// ErrCancelled marks chunks left over when the run was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// IncompleteError is returned alongside a RunResult when some chunks did not
// complete. Completed chunks are checkpointed, so re-running resumes.
type IncompleteError struct {
	Succeeded     int
	Failed        int
	FailedIndices []int
	Resumable     bool
	Exhausted     bool // Every executor was quarantined
	Cancelled     bool
}

func (e *IncompleteError) Error() string {
	msg := fmt.Sprintf("run incomplete: %d succeeded, %d failed", e.Succeeded, e.Failed)
	switch {
	case e.Cancelled:
		msg += " (cancelled)"
	case e.Exhausted:
		msg += " (" + ErrNoHealthyExecutors.Error() + ")"
	}
	if e.Resumable {
		msg += "; re-run to resume"
	}
	return msg
}

// Unwrap lets errors.Is match ErrNoHealthyExecutors or context.Canceled.
func (e *IncompleteError) Unwrap() error {
	switch {
	case e.Cancelled:
		return context.Canceled
	case e.Exhausted:
		return ErrNoHealthyExecutors
	}
	return nil
}

// IsIncomplete extracts an IncompleteError.
func IsIncomplete(err error) (*IncompleteError, bool) {
	var ie *IncompleteError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
