package jobs

import (
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/health"
	"github.com/jackzampolin/plotline/internal/parser"
)

// ChunkResult is the accepted output for one chunk.
type ChunkResult struct {
	Index      int                          `json:"index" yaml:"index"`
	Title      string                       `json:"title,omitempty" yaml:"title,omitempty"`
	Entries    map[string]string            `json:"entries" yaml:"entries"`
	Keys       []string                     `json:"keys,omitempty" yaml:"keys,omitempty"`
	Sections   map[string]map[string]string `json:"sections,omitempty" yaml:"sections,omitempty"`
	Tier       string                       `json:"tier" yaml:"tier"`
	ExecutorID int                          `json:"executor_id" yaml:"executor_id"`
	Executor   string                       `json:"executor" yaml:"executor"`
	Attempt    int                          `json:"attempt,omitempty" yaml:"attempt,omitempty"`
	Resumed    bool                         `json:"resumed,omitempty" yaml:"resumed,omitempty"`
}

// OrderedKeys returns entry names in emitted order, falling back to sorted
// order for results that carry no key list.
func (r *ChunkResult) OrderedKeys() []string {
	if len(r.Keys) == len(r.Entries) {
		return r.Keys
	}
	keys := make([]string, 0, len(r.Entries))
	for k := range r.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resultFromArtifact(a *checkpoint.Artifact) ChunkResult {
	return ChunkResult{
		Index:      a.ChunkIndex,
		Title:      a.Title,
		Entries:    a.Entries,
		Keys:       a.Keys,
		Sections:   a.Sections,
		Tier:       a.Metadata.Tier,
		ExecutorID: a.Metadata.ExecutorID,
		Executor:   a.Metadata.Executor,
		Attempt:    a.Metadata.Attempt,
		Resumed:    true,
	}
}

func (r *ChunkResult) artifact(model, runID string) *checkpoint.Artifact {
	return &checkpoint.Artifact{
		ChunkIndex: r.Index,
		Title:      r.Title,
		Entries:    r.Entries,
		Keys:       r.Keys,
		Sections:   r.Sections,
		Metadata: checkpoint.Metadata{
			ExecutorID: r.ExecutorID,
			Executor:   r.Executor,
			Model:      model,
			Tier:       r.Tier,
			RunID:      runID,
			Attempt:    r.Attempt,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func newChunkResult(index int, title string, res *parser.Result, exec *Executor, attempt int) ChunkResult {
	return ChunkResult{
		Index:      index,
		Title:      title,
		Entries:    res.Entries,
		Keys:       res.Keys,
		Sections:   res.Sections,
		Tier:       res.Tier.String(),
		ExecutorID: exec.ID,
		Executor:   exec.Name,
		Attempt:    attempt,
	}
}

// ChunkFailure describes a chunk that did not complete.
type ChunkFailure struct {
	Index    int    `json:"index" yaml:"index"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Error    string `json:"error" yaml:"error"`
	Err      error  `json:"-" yaml:"-"`
}

// RunResult is the aggregate outcome of Scheduler.Run.
type RunResult struct {
	RunID     string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Total     int             `json:"total" yaml:"total"`
	Results   []ChunkResult   `json:"results" yaml:"results"`
	Failures  []ChunkFailure  `json:"failures,omitempty" yaml:"failures,omitempty"`
	Health    []health.Record `json:"health" yaml:"health"`
	Resumed   int             `json:"resumed" yaml:"resumed"`
	Processed int             `json:"processed" yaml:"processed"`
	Exhausted bool            `json:"exhausted,omitempty" yaml:"exhausted,omitempty"`
	Cancelled bool            `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// FailedIndices returns the failed chunk indices, ascending.
func (r *RunResult) FailedIndices() []int {
	out := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Index
	}
	return out
}

// Progress is reported after every chunk resolution.
type Progress struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"` // Includes resumed chunks
	Failed    int    `json:"failed"`
	Remaining int    `json:"remaining"`
	Chunk     int    `json:"chunk"`
	Executor  string `json:"executor,omitempty"`
	Abandoned bool   `json:"abandoned,omitempty"`
}

// results holds write-once result slots and failures.
type results struct {
	mu       sync.Mutex
	done     map[int]ChunkResult
	failures map[int]ChunkFailure
}

func newResults() *results {
	return &results{
		done:     make(map[int]ChunkResult),
		failures: make(map[int]ChunkFailure),
	}
}

// commit stores r unless the chunk is already resolved.
func (s *results) commit(r ChunkResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[r.Index]; ok {
		return false
	}
	if _, ok := s.failures[r.Index]; ok {
		return false
	}
	s.done[r.Index] = r
	return true
}

// fail records f unless the chunk is already resolved.
func (s *results) fail(f ChunkFailure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[f.Index]; ok {
		return false
	}
	if _, ok := s.failures[f.Index]; ok {
		return false
	}
	s.failures[f.Index] = f
	return true
}

func (s *results) resolved(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[index]
	if !ok {
		_, ok = s.failures[index]
	}
	return ok
}

func (s *results) counts() (done, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done), len(s.failures)
}

func (s *results) sorted() ([]ChunkResult, []ChunkFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := make([]ChunkResult, 0, len(s.done))
	for _, r := range s.done {
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
	fs := make([]ChunkFailure, 0, len(s.failures))
	for _, f := range s.failures {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].Index < fs[j].Index })
	return rs, fs
}

// runState tracks active slots and unresolved chunks.
type runState struct {
	mu         sync.Mutex
	active     int
	unresolved int
}

func (s *runState) acquire() {
	s.mu.Lock()
	s.active++
	s.mu.Unlock()
}

func (s *runState) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// resolve decrements the unresolved count and returns what remains.
func (s *runState) resolve() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unresolved--
	return s.unresolved
}

func (s *runState) snapshot() (active, unresolved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.unresolved
}
