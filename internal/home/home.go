package home

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultDirName is the default name for the plotline home directory.
	DefaultDirName = ".plotline"

	// RunsDirName is the subdirectory holding one directory per run.
	RunsDirName = "runs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	checkpointDirName = "checkpoints"
	callsFileName     = "calls.jsonl"
	resultFileName    = "result.json"
)

// Dir represents the plotline home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.plotline).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// RunsPath returns the path to the runs directory.
func (d *Dir) RunsPath() string {
	return filepath.Join(d.path, RunsDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create runs directory (this also creates the parent)
	if err := os.MkdirAll(d.RunsPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// RunDir returns the directory for a named run.
func (d *Dir) RunDir(name string) string {
	return filepath.Join(d.RunsPath(), name)
}

// CheckpointDir returns the directory holding a run's chunk artifacts.
func (d *Dir) CheckpointDir(name string) string {
	return filepath.Join(d.RunDir(name), checkpointDirName)
}

// CallsPath returns the path of a run's backend call log.
func (d *Dir) CallsPath(name string) string {
	return filepath.Join(d.RunDir(name), callsFileName)
}

// ResultPath returns the path of a run's merged output.
func (d *Dir) ResultPath(name string) string {
	return filepath.Join(d.RunDir(name), resultFileName)
}

// EnsureRunDir creates the checkpoint directory for a run.
func (d *Dir) EnsureRunDir(name string) error {
	return os.MkdirAll(d.CheckpointDir(name), 0o755)
}

// RemoveRun deletes everything recorded for a run.
func (d *Dir) RemoveRun(name string) error {
	return os.RemoveAll(d.RunDir(name))
}

// ListRuns returns the names of existing runs, sorted.
func (d *Dir) ListRuns() ([]string, error) {
	entries, err := os.ReadDir(d.RunsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// RunName turns a source title into a directory-safe run name.
// e.g., "Moby Dick; or, The Whale" -> "moby-dick-or-the-whale"
func RunName(title string) string {
	name := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if name == "" {
		return "untitled"
	}
	return name
}
