package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/plotline/internal/api"
	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/extract"
	"github.com/jackzampolin/plotline/internal/health"
	"github.com/jackzampolin/plotline/internal/home"
	"github.com/jackzampolin/plotline/internal/ingest"
	"github.com/jackzampolin/plotline/internal/jobs"
	"github.com/jackzampolin/plotline/internal/llmcall"
	"github.com/jackzampolin/plotline/internal/metrics"
	"github.com/jackzampolin/plotline/internal/providers"
)

var (
	runName        string
	runTitle       string
	runFresh       bool
	runMetricsAddr string
	runTargets     []string
)

var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Extract per-character plots from a text",
	Long: `Load a text, split it into chunks and extract what every character does
in each chunk using all configured executors.

Multi-part sources (book-1.txt, book-2.txt, ...) are joined in numeric order.
Completed chunks are checkpointed under ~/.plotline/runs/<name>; running the
same command again resumes and only processes what is missing.

Examples:
  plotline run moby-dick.txt
  plotline run chapters/*.html --name moby
  plotline run moby-dick.txt --target Ahab --target Ishmael
  plotline run moby-dick.txt --fresh --metrics-addr :9090`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := *mgr.Get()
		if len(runTargets) > 0 {
			cfg.Extraction.Targets = runTargets
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		src, err := ingest.Load(ctx, ingest.Request{Paths: args, Title: runTitle, Logger: logger})
		if err != nil {
			return err
		}
		chunks, err := chunk.Split(src.Text, cfg.ChunkConfig())
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("%s has no text to process", src.Title)
		}

		name := runName
		if name == "" {
			name = home.RunName(src.Title)
		}
		if runFresh {
			logger.Info("discarding previous run", "run", name)
			if err := h.RemoveRun(name); err != nil {
				return err
			}
		}
		if err := h.EnsureRunDir(name); err != nil {
			return err
		}

		store, err := checkpoint.NewDirStore(h.CheckpointDir(name), checkpoint.WithLogger(logger))
		if err != nil {
			return err
		}
		err = store.EnsureManifest(checkpoint.Manifest{
			Source:      src.Title,
			Fingerprint: chunk.Fingerprint(chunks),
			ChunkCount:  len(chunks),
		})
		if errors.Is(err, checkpoint.ErrManifestMismatch) {
			return fmt.Errorf("%w; re-run with --fresh to discard run %q", err, name)
		}
		if err != nil {
			return err
		}

		registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig())
		executors, err := jobs.NewExecutors(registry, cfg.ExecutorSpecs())
		if err != nil {
			return err
		}

		calls, err := llmcall.OpenFile(h.CallsPath(name), llmcall.RecorderConfig{Logger: logger})
		if err != nil {
			return err
		}
		defer calls.Close()

		rec := metrics.NewRecorder()
		if runMetricsAddr != "" {
			stop := serveMetrics(runMetricsAddr, rec.Handler(), logger)
			defer stop()
		}

		jcfg := cfg.SchedulerConfig()
		jcfg.Store = store
		jcfg.Logger = logger
		jcfg.Metrics = rec
		jcfg.Calls = calls
		jcfg.OnProgress = func(p jobs.Progress) {
			logger.Info("progress",
				"completed", p.Completed,
				"failed", p.Failed,
				"remaining", p.Remaining,
				"total", p.Total)
		}

		sched, err := jobs.NewScheduler(jcfg)
		if err != nil {
			return err
		}
		task := extract.NewTask(cfg.ExtractConfig(), len(chunks))

		res, runErr := sched.Run(ctx, chunks, executors, task)
		if res == nil {
			return runErr
		}

		merged := extract.Merge(res.Results, res.FailedIndices())
		if err := api.WriteFile(h.ResultPath(name), merged); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}

		if err := api.Output(newRunSummary(name, src, res, merged, rec, h.ResultPath(name))); err != nil {
			return err
		}
		return runErr
	},
}

// runSummary is printed when a run ends.
type runSummary struct {
	Run        string           `json:"run" yaml:"run"`
	RunID      string           `json:"run_id" yaml:"run_id"`
	Source     string           `json:"source" yaml:"source"`
	Chunks     int              `json:"chunks" yaml:"chunks"`
	Completed  int              `json:"completed" yaml:"completed"`
	Resumed    int              `json:"resumed" yaml:"resumed"`
	Failed     []int            `json:"failed_chunks,omitempty" yaml:"failed_chunks,omitempty"`
	Exhausted  bool             `json:"exhausted,omitempty" yaml:"exhausted,omitempty"`
	Cancelled  bool             `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Characters int              `json:"characters" yaml:"characters"`
	Duration   string           `json:"duration" yaml:"duration"`
	Calls      *metrics.Summary `json:"calls" yaml:"calls"`
	Health     []health.Record  `json:"health" yaml:"health"`
	Output     string           `json:"output" yaml:"output"`
}

func newRunSummary(name string, src *ingest.Source, res *jobs.RunResult, merged *extract.Merged, rec *metrics.Recorder, output string) runSummary {
	return runSummary{
		Run:        name,
		RunID:      res.RunID,
		Source:     src.Title,
		Chunks:     res.Total,
		Completed:  len(res.Results),
		Resumed:    res.Resumed,
		Failed:     res.FailedIndices(),
		Exhausted:  res.Exhausted,
		Cancelled:  res.Cancelled,
		Characters: len(merged.Characters),
		Duration:   res.Duration.Round(time.Millisecond).String(),
		Calls:      metrics.Summarize(rec.Metrics()),
		Health:     res.Health,
		Output:     output,
	}
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "run name (default: derived from the source title)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "source title (default: from the document or file name)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "discard checkpoints from a previous run with the same name")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().StringArrayVar(&runTargets, "target", nil, "character to report on (repeatable, overrides config)")

	rootCmd.AddCommand(runCmd)
}
