package jobs

import "sync"

// Queue is the shared FIFO of chunk indices. Every push, and every Broadcast,
// wakes all goroutines waiting on the channel returned by Wait.
type Queue struct {
	mu    sync.Mutex
	items []int
	wake  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{})}
}

// Push appends indices and wakes waiters.
func (q *Queue) Push(indices ...int) {
	if len(indices) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, indices...)
	q.broadcastLocked()
	q.mu.Unlock()
}

// Pop removes the oldest index.
func (q *Queue) Pop() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	idx := q.items[0]
	q.items = q.items[1:]
	return idx, true
}

// Len returns the number of queued indices.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wait returns a channel that is closed on the next push or broadcast.
// Grab it before checking state to avoid missing a wake-up.
func (q *Queue) Wait() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.wake
}

// Broadcast wakes waiters without adding work.
func (q *Queue) Broadcast() {
	q.mu.Lock()
	q.broadcastLocked()
	q.mu.Unlock()
}

// Drain removes and returns everything queued.
func (q *Queue) Drain() []int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// chunkList is a worker's private FIFO. Only the owning worker's slots
// pop from it; it is handed to the shared queue when the worker stops.
type chunkList struct {
	mu    sync.Mutex
	items []int
}

func newChunkList(items []int) *chunkList {
	return &chunkList{items: append([]int(nil), items...)}
}

func (l *chunkList) pop() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return 0, false
	}
	idx := l.items[0]
	l.items = l.items[1:]
	return idx, true
}

func (l *chunkList) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *chunkList) drain() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.items
	l.items = nil
	return out
}
