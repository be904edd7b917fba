package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a checkpoint directory.
const ManifestFile = "manifest.yaml"

// Manifest ties a checkpoint directory to the source text it was built from.
type Manifest struct {
	Source      string    `yaml:"source,omitempty"`
	Fingerprint string    `yaml:"fingerprint"`
	ChunkCount  int       `yaml:"chunk_count"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// LoadManifest reads a directory's manifest, or returns ErrNotFound.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("manifest in %s: %w", dir, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// EnsureManifest writes m if the store has no manifest yet, or verifies the
// existing one describes the same chunks. A mismatch returns
// ErrManifestMismatch; the caller decides whether to Clear and retry.
func (s *DirStore) EnsureManifest(m Manifest) error {
	existing, err := LoadManifest(s.dir)
	switch {
	case errors.Is(err, ErrNotFound):
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		return writeManifest(s.dir, &m)
	case err != nil:
		return err
	}

	if existing.Fingerprint != m.Fingerprint || existing.ChunkCount != m.ChunkCount {
		return fmt.Errorf("%w: directory has %d chunks (%.12s), source has %d chunks (%.12s)",
			ErrManifestMismatch, existing.ChunkCount, existing.Fingerprint, m.ChunkCount, m.Fingerprint)
	}
	return nil
}

// Manifest returns the store's manifest.
func (s *DirStore) Manifest() (*Manifest, error) {
	return LoadManifest(s.dir)
}

// writeManifest writes via temp file and rename.
func writeManifest(dir string, m *Manifest) error {
	content, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, ManifestFile)); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
