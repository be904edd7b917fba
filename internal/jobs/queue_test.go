package jobs

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name    string
		indices []int
		m       int
		want    [][]int
	}{
		{"even", []int{0, 1, 2, 3, 4, 5}, 3, [][]int{{0, 1}, {2, 3}, {4, 5}}},
		{"remainder to first", []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, [][]int{{0, 1, 2, 3}, {4, 5, 6}, {7, 8, 9}}},
		{"more executors than chunks", []int{7, 9}, 4, [][]int{{7}, {9}, {}, {}}},
		{"empty", nil, 2, [][]int{{}, {}}},
		{"no executors", []int{1}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Partition(tt.indices, tt.m)
			if len(got) != len(tt.want) {
				t.Fatalf("Partition() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if len(got[i]) == 0 && len(tt.want[i]) == 0 {
					continue
				}
				if !reflect.DeepEqual(got[i], tt.want[i]) {
					t.Errorf("block %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPartitionBalance(t *testing.T) {
	for p := 0; p <= 40; p++ {
		for m := 1; m <= 7; m++ {
			indices := make([]int, p)
			for i := range indices {
				indices[i] = i
			}
			blocks := Partition(indices, m)
			total, prev := 0, p+1
			for _, b := range blocks {
				if len(b) > prev {
					t.Fatalf("p=%d m=%d: block sizes not non-increasing", p, m)
				}
				prev = len(b)
				total += len(b)
			}
			if total != p {
				t.Fatalf("p=%d m=%d: blocks hold %d indices", p, m, total)
			}
			if p > 0 && len(blocks[0])-len(blocks[m-1]) > 1 {
				t.Fatalf("p=%d m=%d: unbalanced %d vs %d", p, m, len(blocks[0]), len(blocks[m-1]))
			}
		}
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	q.Push(3, 1)
	q.Push()
	q.Push(2)
	if q.Len() != 3 {
		t.Fatalf("Len() = %d", q.Len())
	}
	for _, want := range []int{3, 1, 2} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v; want %d", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue succeeded")
	}

	q.Push(5, 6)
	if got := q.Drain(); !reflect.DeepEqual(got, []int{5, 6}) || q.Len() != 0 {
		t.Errorf("Drain() = %v, Len() = %d", got, q.Len())
	}
}

func TestQueuePushWakesAllWaiters(t *testing.T) {
	q := NewQueue()
	wake := q.Wait()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-wake:
			case <-time.After(2 * time.Second):
				t.Error("waiter not woken")
			}
		}()
	}
	q.Push(1)
	wg.Wait()

	next := q.Wait()
	select {
	case <-next:
		t.Fatal("new wait channel already closed")
	default:
	}
	q.Broadcast()
	select {
	case <-next:
	default:
		t.Fatal("Broadcast did not wake")
	}
}

func TestLedger(t *testing.T) {
	l := NewLedger()
	l.Add(4, 2)
	l.Add(4, 1)
	l.Add(4, 2)

	if !l.Contains(4, 1) || l.Contains(4, 3) || l.Contains(5, 1) {
		t.Error("Contains() mismatch")
	}
	if got := l.Executors(4); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("Executors() = %v", got)
	}
	if !l.Covers(4, []int{1, 2}) || l.Covers(4, []int{1, 2, 3}) {
		t.Error("Covers() mismatch")
	}
	if !l.Covers(9, nil) {
		t.Error("empty set should be covered")
	}

	l.Clear(4)
	if l.Contains(4, 1) || len(l.Executors(4)) != 0 {
		t.Error("Clear() left entries")
	}
}

func TestRetryCounterClaim(t *testing.T) {
	r := newRetryCounter()

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.claim(1, 6); ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claimed != 6 || r.count(1) != 6 {
		t.Errorf("claimed = %d, count = %d; want 6", claimed, r.count(1))
	}
	if n, ok := r.claim(1, 6); ok || n != 6 {
		t.Errorf("claim past limit = %d, %v", n, ok)
	}

	boom := errors.New("boom")
	r.setErr(1, boom)
	if r.err(1) != boom || r.err(2) != nil {
		t.Error("last error not tracked per chunk")
	}
}

func TestIncompleteError(t *testing.T) {
	tests := []struct {
		name   string
		err    *IncompleteError
		target error
		text   string
	}{
		{"exhausted", &IncompleteError{Succeeded: 3, Failed: 2, Exhausted: true, Resumable: true}, ErrNoHealthyExecutors, "no healthy executors"},
		{"cancelled", &IncompleteError{Failed: 1, Cancelled: true, Resumable: true}, context.Canceled, "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error = tt.err
			if !errors.Is(err, tt.target) {
				t.Errorf("errors.Is(%v) = false", tt.target)
			}
			if got := err.Error(); !strings.Contains(got, tt.text) || !strings.Contains(got, "re-run") {
				t.Errorf("Error() = %q", got)
			}
			if ie, ok := IsIncomplete(err); !ok || ie != tt.err {
				t.Error("IsIncomplete() failed")
			}
		})
	}

	plain := &IncompleteError{Failed: 1}
	if plain.Unwrap() != nil {
		t.Error("plain incomplete error should not unwrap")
	}
}
