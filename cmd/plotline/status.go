package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/plotline/internal/api"
	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/config"
	"github.com/jackzampolin/plotline/internal/home"
	"github.com/jackzampolin/plotline/internal/llmcall"
	"github.com/jackzampolin/plotline/internal/metrics"
)

var (
	statusFollow   bool
	statusExecutor string
)

var statusCmd = &cobra.Command{
	Use:   "status [run]",
	Short: "Show run progress",
	Long: `Show the progress of one run, or of every run when no name is given.

With --follow, newly completed chunks are reported as they are checkpointed
until the run completes or the command is interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, mgr, err := loadEnv()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			names, err := h.ListRuns()
			if err != nil {
				return err
			}
			out := make([]runStatus, 0, len(names))
			for _, name := range names {
				st, err := loadStatus(cmd.Context(), h, name, statusExecutor)
				if err != nil {
					logger.Warn("skipping run", "run", name, "error", err)
					continue
				}
				out = append(out, *st)
			}
			return api.Output(out)
		}

		name := args[0]
		st, err := loadStatus(cmd.Context(), h, name, statusExecutor)
		if err != nil {
			return err
		}
		if err := api.Output(st); err != nil {
			return err
		}
		if !statusFollow || st.Completed >= st.Chunks {
			return nil
		}
		return follow(cmd.Context(), h, mgr, name, st)
	},
}

// runStatus describes a run on disk.
type runStatus struct {
	Run        string                            `json:"run" yaml:"run"`
	Source     string                            `json:"source,omitempty" yaml:"source,omitempty"`
	Chunks     int                               `json:"chunks" yaml:"chunks"`
	Completed  int                               `json:"completed" yaml:"completed"`
	Remaining  int                               `json:"remaining" yaml:"remaining"`
	Calls      []llmcall.Summary                 `json:"calls,omitempty" yaml:"calls,omitempty"`
	Latency    map[string]*metrics.DetailedStats `json:"latency,omitempty" yaml:"latency,omitempty"`
	ResultPath string                            `json:"result,omitempty" yaml:"result,omitempty"`
}

func loadStatus(ctx context.Context, h *home.Dir, name, executor string) (*runStatus, error) {
	dir := h.CheckpointDir(name)
	manifest, err := checkpoint.LoadManifest(dir)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("no run named %q", name)
	}
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.NewDirStore(dir)
	if err != nil {
		return nil, err
	}
	done, err := store.ListCompleted(ctx)
	if err != nil {
		return nil, err
	}

	calls, err := llmcall.List(h.CallsPath(name), llmcall.QueryFilter{Executor: executor})
	if err != nil {
		return nil, err
	}
	ms := make([]metrics.Metric, 0, len(calls))
	for _, c := range calls {
		ms = append(ms, metrics.FromCall(c))
	}

	st := &runStatus{
		Run:       name,
		Source:    manifest.Source,
		Chunks:    manifest.ChunkCount,
		Completed: len(done),
		Remaining: manifest.ChunkCount - len(done),
		Calls:     llmcall.Summarize(calls),
	}
	if len(ms) > 0 {
		st.Latency = metrics.ByExecutor(ms)
	}
	if _, err := os.Stat(h.ResultPath(name)); err == nil {
		st.ResultPath = h.ResultPath(name)
	}
	return st, nil
}

// follow logs every chunk checkpointed from now on until the run is complete.
func follow(ctx context.Context, h *home.Dir, mgr *config.Manager, name string, st *runStatus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mgr.OnChange(func(cfg *config.Config) {
		logger.Info("config reloaded", "executors", len(cfg.Executors), "slots_per_model", cfg.Scheduler.SlotsPerModel)
	})
	mgr.WatchConfig()

	completed := st.Completed
	logger.Info("following run", "run", name, "completed", completed, "total", st.Chunks)
	err := checkpoint.Watch(ctx, h.CheckpointDir(name), func(index int) {
		completed++
		logger.Info("chunk completed", "chunk", index, "completed", completed, "total", st.Chunks)
		if completed >= st.Chunks {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	if completed >= st.Chunks {
		logger.Info("run complete", "run", name)
	}
	return nil
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "report chunks as they complete")
	statusCmd.Flags().StringVar(&statusExecutor, "executor", "", "only summarize calls made by this executor")

	rootCmd.AddCommand(statusCmd)
}
