package llmcall

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/plotline/internal/providers"
)

func TestFromChatResult(t *testing.T) {
	t.Run("nil result without error", func(t *testing.T) {
		if FromChatResult(nil, RecordOptions{}) != nil {
			t.Error("expected nil call")
		}
	})

	t.Run("success", func(t *testing.T) {
		temp := 0.2
		res := &providers.ChatResult{
			Provider:         "openrouter",
			ModelUsed:        "m-1",
			RequestID:        "req-1",
			Content:          `{"Ann":"wins"}`,
			PromptTokens:     10,
			CompletionTokens: 5,
			CostUSD:          0.01,
			ExecutionTime:    1500 * time.Millisecond,
			Success:          true,
		}
		c := FromChatResult(res, RecordOptions{RunID: "run", ChunkIndex: 3, Executor: "fast", ExecutorID: 1, Attempt: 2, Temperature: &temp})
		if c.ID == "" {
			t.Error("expected id")
		}
		if c.LatencyMs != 1500 || c.Model != "m-1" || c.ChunkIndex != 3 || !c.Success {
			t.Errorf("unexpected call: %+v", c)
		}
		if c.Temperature == nil || *c.Temperature != 0.2 {
			t.Error("temperature not carried")
		}
	})

	t.Run("error without result", func(t *testing.T) {
		c := FromChatResult(nil, RecordOptions{Model: "m-2", Err: errors.New("boom")})
		if c == nil || c.Success || c.Error != "boom" || c.Model != "m-2" {
			t.Errorf("unexpected call: %+v", c)
		}
	})
}

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "calls.jsonl")
	rec, err := OpenFile(path, RecorderConfig{})
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		res := &providers.ChatResult{Provider: "mock", Success: i%2 == 0, ErrorMessage: "bad"}
		rec.Record(res, RecordOptions{RunID: "r1", ChunkIndex: i, Executor: "e"})
	}
	rec.Record(nil, RecordOptions{})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if written, dropped := rec.Stats(); written != 5 || dropped != 0 {
		t.Errorf("Stats() = %d, %d", written, dropped)
	}
	rec.Record(&providers.ChatResult{}, RecordOptions{})

	calls, err := List(path, QueryFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(calls) != 5 {
		t.Fatalf("len(calls) = %d, want 5", len(calls))
	}
	for i, c := range calls {
		if c.ChunkIndex != i {
			t.Errorf("calls[%d].ChunkIndex = %d", i, c.ChunkIndex)
		}
	}

	failed := false
	calls, err = List(path, QueryFilter{Success: &failed})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Errorf("failed calls = %d, want 2", len(calls))
	}
}

func TestReadFilter(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, RecorderConfig{})
	for i := 0; i < 4; i++ {
		exec := "a"
		if i >= 2 {
			exec = "b"
		}
		rec.Record(&providers.ChatResult{Success: true, PromptTokens: 1, CostUSD: 0.5}, RecordOptions{Executor: exec, ChunkIndex: i})
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	data := buf.String()

	chunk := 3
	tests := []struct {
		name   string
		filter QueryFilter
		want   int
	}{
		{"all", QueryFilter{}, 4},
		{"executor", QueryFilter{Executor: "a"}, 2},
		{"chunk", QueryFilter{Chunk: &chunk}, 1},
		{"limit", QueryFilter{Limit: 3}, 3},
		{"offset", QueryFilter{Offset: 3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := Read(strings.NewReader(data), tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(calls) != tt.want {
				t.Errorf("got %d calls, want %d", len(calls), tt.want)
			}
		})
	}

	calls, _ := Read(strings.NewReader(data), QueryFilter{})
	sum := Summarize(calls)
	if len(sum) != 2 || sum[0].Executor != "a" || sum[0].Calls != 2 || sum[1].CostUSD != 1.0 {
		t.Errorf("Summarize() = %+v", sum)
	}
}

func TestReadMalformed(t *testing.T) {
	if _, err := Read(strings.NewReader("{\"id\":\"x\"}\nnot json\n"), QueryFilter{}); err == nil {
		t.Error("expected error for malformed line")
	}
}

func TestListMissingFile(t *testing.T) {
	calls, err := List(filepath.Join(t.TempDir(), "none.jsonl"), QueryFilter{})
	if err != nil || calls != nil {
		t.Errorf("List() = %v, %v", calls, err)
	}
}
