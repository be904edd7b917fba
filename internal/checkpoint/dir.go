package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
)

var artifactName = regexp.MustCompile(`^chunk_(\d+)\.json$`)

// ArtifactFile returns the file name used for a chunk's artifact.
func ArtifactFile(index int) string {
	return fmt.Sprintf("chunk_%06d.json", index)
}

// ParseArtifactFile extracts the chunk index from an artifact file name.
func ParseArtifactFile(name string) (int, bool) {
	m := artifactName.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DirStore keeps one JSON file per completed chunk in a directory.
type DirStore struct {
	dir        string
	logger     *slog.Logger
	attempts   uint
	retryDelay time.Duration
}

// DirOption configures a DirStore.
type DirOption func(*DirStore)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) DirOption {
	return func(s *DirStore) { s.logger = logger }
}

// WithWriteRetries sets how many attempts a write gets before failing.
func WithWriteRetries(attempts uint, delay time.Duration) DirOption {
	return func(s *DirStore) {
		s.attempts = max(attempts, 1)
		s.retryDelay = delay
	}
}

// NewDirStore opens (creating if needed) a checkpoint directory.
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	s := &DirStore{
		dir:        dir,
		logger:     slog.Default(),
		attempts:   3,
		retryDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the checkpoint directory.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) path(index int) string {
	return filepath.Join(s.dir, ArtifactFile(index))
}

// Exists reports whether the chunk has an artifact.
func (s *DirStore) Exists(ctx context.Context, index int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(index))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat checkpoint %d: %w", index, err)
	}
}

// Write persists an artifact without ever replacing an existing one. The
// content is fully written and synced to a temp file, then hard-linked into
// place so readers never observe a partial file.
func (s *DirStore) Write(ctx context.Context, a *Artifact) error {
	if a == nil {
		return fmt.Errorf("nil artifact")
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint %d: %w", a.ChunkIndex, err)
	}

	return retry.Do(
		func() error {
			return s.linkInto(a.ChunkIndex, data)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrAlreadyCompleted)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying checkpoint write", "chunk", a.ChunkIndex, "attempt", n+1, "error", err)
		}),
	)
}

func (s *DirStore) linkInto(index int, data []byte) error {
	final := s.path(index)
	if _, err := os.Stat(final); err == nil {
		return fmt.Errorf("chunk %d: %w", index, ErrAlreadyCompleted)
	}

	tmp, err := os.CreateTemp(s.dir, ".chunk-tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("chunk %d: %w", index, ErrAlreadyCompleted)
		}
		return fmt.Errorf("link checkpoint %d: %w", index, err)
	}
	return nil
}

// ListCompleted returns the indices with artifacts in ascending order.
func (s *DirStore) ListCompleted(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir: %w", err)
	}
	var out []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := ParseArtifactFile(e.Name()); ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Read loads one artifact.
func (s *DirStore) Read(ctx context.Context, index int) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(index))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chunk %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %d: %w", index, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode checkpoint %d: %w", index, err)
	}
	if a.ChunkIndex != index {
		return nil, fmt.Errorf("checkpoint %d records chunk %d", index, a.ChunkIndex)
	}
	return &a, nil
}

// Clear removes all artifacts and the manifest. Other files are left alone.
func (s *DirStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read checkpoint dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if _, ok := ParseArtifactFile(name); !ok && name != ManifestFile {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

var _ Store = (*DirStore)(nil)
