package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, used by tests and dry runs.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[int]*Artifact
	writes    int

	// FailWrite, when set, is consulted before each write; a non-nil return
	// fails the write.
	FailWrite func(index int) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[int]*Artifact)}
}

func (s *MemoryStore) Exists(ctx context.Context, index int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[index]
	return ok, nil
}

func (s *MemoryStore) Write(ctx context.Context, a *Artifact) error {
	if a == nil {
		return fmt.Errorf("nil artifact")
	}
	if s.FailWrite != nil {
		if err := s.FailWrite(a.ChunkIndex); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[a.ChunkIndex]; ok {
		return fmt.Errorf("chunk %d: %w", a.ChunkIndex, ErrAlreadyCompleted)
	}
	cp := *a
	s.artifacts[a.ChunkIndex] = &cp
	s.writes++
	return nil
}

func (s *MemoryStore) ListCompleted(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.artifacts))
	for i := range s.artifacts {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}

func (s *MemoryStore) Read(ctx context.Context, index int) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[index]
	if !ok {
		return nil, fmt.Errorf("chunk %d: %w", index, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// Writes returns the number of successful writes.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

var _ Store = (*MemoryStore)(nil)
