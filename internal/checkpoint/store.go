// Package checkpoint persists per-chunk results so an interrupted run can be
// resumed. An artifact's presence is authoritative: a chunk with an artifact is
// never processed again.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAlreadyCompleted is returned by Write when the chunk already has an artifact.
	ErrAlreadyCompleted = errors.New("chunk already completed")

	// ErrNotFound is returned when a chunk has no artifact or a directory has no manifest.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrManifestMismatch is returned when a checkpoint directory belongs to different source text.
	ErrManifestMismatch = errors.New("checkpoint manifest does not match source")
)

// Metadata is the provenance recorded with each artifact.
type Metadata struct {
	ExecutorID int       `json:"executor_id"`
	Executor   string    `json:"executor"`
	Model      string    `json:"model,omitempty"`
	Tier       string    `json:"tier"`
	RunID      string    `json:"run_id,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Artifact is the durable result of one completed chunk.
type Artifact struct {
	ChunkIndex int                          `json:"chunk_index"`
	Title      string                       `json:"title,omitempty"`
	Entries    map[string]string            `json:"entries"`
	Keys       []string                     `json:"keys,omitempty"`
	Sections   map[string]map[string]string `json:"sections,omitempty"`
	Metadata   Metadata                     `json:"metadata"`
}

// Store is any durable chunk-index keyed store.
type Store interface {
	// Exists reports whether the chunk has an artifact.
	Exists(ctx context.Context, index int) (bool, error)

	// Write persists an artifact. It never overwrites: a second write for the
	// same index returns ErrAlreadyCompleted.
	Write(ctx context.Context, a *Artifact) error

	// ListCompleted returns the indices with artifacts in ascending order.
	ListCompleted(ctx context.Context) ([]int, error)

	// Read loads one artifact, or returns ErrNotFound.
	Read(ctx context.Context, index int) (*Artifact, error)
}
