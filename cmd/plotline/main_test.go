package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/home"
	"github.com/jackzampolin/plotline/internal/llmcall"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadStatus(t *testing.T) {
	ctx := context.Background()
	h, _ := home.New(t.TempDir())

	if _, err := loadStatus(ctx, h, "missing", ""); err == nil {
		t.Fatal("expected error for unknown run")
	}

	if err := h.EnsureRunDir("tale"); err != nil {
		t.Fatal(err)
	}
	store, err := checkpoint.NewDirStore(h.CheckpointDir("tale"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureManifest(checkpoint.Manifest{Source: "Tale", Fingerprint: "abc", ChunkCount: 3}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write(ctx, &checkpoint.Artifact{ChunkIndex: 1, Entries: map[string]string{"Ann": "waits"}}); err != nil {
		t.Fatal(err)
	}

	calls, err := llmcall.OpenFile(h.CallsPath("tale"), llmcall.RecorderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	calls.RecordCall(&llmcall.Call{ID: "1", Timestamp: now, Executor: "one", LatencyMs: 100, InputTokens: 10, Success: true})
	calls.RecordCall(&llmcall.Call{ID: "2", Timestamp: now, Executor: "two", LatencyMs: 300, Error: "boom"})
	calls.RecordCall(&llmcall.Call{ID: "3", Timestamp: now, Executor: "one", LatencyMs: 200, InputTokens: 5, Success: true})
	if err := calls.Close(); err != nil {
		t.Fatal(err)
	}

	st, err := loadStatus(ctx, h, "tale", "")
	if err != nil {
		t.Fatalf("loadStatus() error = %v", err)
	}
	if st.Source != "Tale" || st.Chunks != 3 || st.Completed != 1 || st.Remaining != 2 {
		t.Errorf("status = %+v", st)
	}
	if len(st.Calls) != 2 || st.Calls[0].Executor != "one" || st.Calls[0].Calls != 2 || st.Calls[0].InputTokens != 15 {
		t.Errorf("calls = %+v", st.Calls)
	}
	if st.Calls[1].Failures != 1 {
		t.Errorf("expected one failure for executor two, got %+v", st.Calls[1])
	}
	if lat := st.Latency["one"]; lat == nil || lat.LatencyMax != 0.2 {
		t.Errorf("latency = %+v", st.Latency)
	}
	if st.ResultPath != "" {
		t.Errorf("unexpected result path %q", st.ResultPath)
	}

	st, err = loadStatus(ctx, h, "tale", "two")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Calls) != 1 || st.Calls[0].Executor != "two" {
		t.Errorf("filtered calls = %+v", st.Calls)
	}
}
