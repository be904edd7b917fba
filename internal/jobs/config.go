package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/plotline/internal/checkpoint"
	"github.com/jackzampolin/plotline/internal/health"
	"github.com/jackzampolin/plotline/internal/llmcall"
	"github.com/jackzampolin/plotline/internal/metrics"
)

// Config configures a Scheduler.
type Config struct {
	SlotsPerModel     int           // Concurrent requests per executor (default: 2)
	AttemptsPerChunk  int           // Immediate tries per executor before handing off (default: 2)
	RetryDelay        time.Duration // Pause between immediate tries (default: 1s)
	AbandonMultiplier int           // Chunk abandoned after executors × multiplier attempts (default: 3)
	IdlePoll          time.Duration // Idle slot re-check interval (default: 500ms)

	Health health.Config

	// Store receives an artifact for every completed chunk. Nil disables
	// checkpointing and resume.
	Store checkpoint.Store

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Calls   *llmcall.Recorder

	// OnProgress is called after every chunk completes or is abandoned.
	// It must not block.
	OnProgress func(Progress)

	// RunID is stamped on artifacts and call records.
	RunID string
}

// DefaultConfig returns the default scheduler settings.
func DefaultConfig() Config {
	return Config{
		SlotsPerModel:     2,
		AttemptsPerChunk:  2,
		RetryDelay:        time.Second,
		AbandonMultiplier: 3,
		IdlePoll:          500 * time.Millisecond,
		Health:            health.DefaultConfig(),
	}
}

// Validate checks for settings that cannot be defaulted.
func (c Config) Validate() error {
	if c.SlotsPerModel < 0 {
		return fmt.Errorf("slots_per_model must be positive, got %d", c.SlotsPerModel)
	}
	if c.AttemptsPerChunk < 0 {
		return fmt.Errorf("attempts_per_chunk must be positive, got %d", c.AttemptsPerChunk)
	}
	if c.AbandonMultiplier < 0 {
		return fmt.Errorf("abandon_multiplier must be positive, got %d", c.AbandonMultiplier)
	}
	if c.RetryDelay < 0 || c.IdlePoll < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SlotsPerModel == 0 {
		c.SlotsPerModel = def.SlotsPerModel
	}
	if c.AttemptsPerChunk == 0 {
		c.AttemptsPerChunk = def.AttemptsPerChunk
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.AbandonMultiplier == 0 {
		c.AbandonMultiplier = def.AbandonMultiplier
	}
	if c.IdlePoll == 0 {
		c.IdlePoll = def.IdlePoll
	}
	if c.Health == (health.Config{}) {
		c.Health = def.Health
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
