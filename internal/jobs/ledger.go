package jobs

import (
	"sort"
	"sync"
)

// Ledger records which executors have failed each chunk since its last
// success.
type Ledger struct {
	mu     sync.Mutex
	failed map[int]map[int]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{failed: make(map[int]map[int]struct{})}
}

// Add marks chunk as failed by executor.
func (l *Ledger) Add(chunk, executor int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.failed[chunk]
	if !ok {
		set = make(map[int]struct{})
		l.failed[chunk] = set
	}
	set[executor] = struct{}{}
}

// Clear forgets every failure recorded for chunk.
func (l *Ledger) Clear(chunk int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failed, chunk)
}

// Contains reports whether executor has failed chunk.
func (l *Ledger) Contains(chunk, executor int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.failed[chunk][executor]
	return ok
}

// Covers reports whether every executor in ids has failed chunk. An empty
// ids is covered.
func (l *Ledger) Covers(chunk int, ids []int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.failed[chunk]
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Executors returns the executors that have failed chunk, ascending.
func (l *Ledger) Executors(chunk int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, 0, len(l.failed[chunk]))
	for id := range l.failed[chunk] {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// retryCounter counts attempts per chunk across all executors. Counts only
// grow.
type retryCounter struct {
	mu      sync.Mutex
	counts  map[int]int
	lastErr map[int]error
}

func newRetryCounter() *retryCounter {
	return &retryCounter{
		counts:  make(map[int]int),
		lastErr: make(map[int]error),
	}
}

// claim takes one attempt for chunk unless limit is reached. It returns the
// attempt number.
func (r *retryCounter) claim(chunk, limit int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[chunk] >= limit {
		return r.counts[chunk], false
	}
	r.counts[chunk]++
	return r.counts[chunk], true
}

func (r *retryCounter) count(chunk int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[chunk]
}

func (r *retryCounter) setErr(chunk int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr[chunk] = err
}

func (r *retryCounter) err(chunk int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr[chunk]
}
