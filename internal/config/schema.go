package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/plotline/internal/chunk"
	"github.com/jackzampolin/plotline/internal/extract"
	"github.com/jackzampolin/plotline/internal/health"
	"github.com/jackzampolin/plotline/internal/jobs"
	"github.com/jackzampolin/plotline/internal/providers"
)

// Config holds plotline configuration.
// Stored at: {home}/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers" json:"llm_providers"`
	Executors    []ExecutorCfg             `mapstructure:"executors" yaml:"executors" json:"executors"`
	Scheduler    SchedulerCfg              `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	Health       HealthCfg                 `mapstructure:"health" yaml:"health" json:"health"`
	Extraction   ExtractionCfg             `mapstructure:"extraction" yaml:"extraction" json:"extraction"`
	Chunking     ChunkingCfg               `mapstructure:"chunking" yaml:"chunking" json:"chunking"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type" json:"type"`                                 // "openrouter", "openai"
	Model          string  `mapstructure:"model" yaml:"model" json:"model"`                              // Default model
	APIKey         string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`                        // API key (supports ${ENV_VAR} syntax)
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"` // Optional endpoint override
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`               // Requests per second
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// ExecutorCfg binds a provider and model into one scheduler executor.
type ExecutorCfg struct {
	Name           string  `mapstructure:"name" yaml:"name,omitempty" json:"name,omitempty"`
	Provider       string  `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model          string  `mapstructure:"model" yaml:"model" json:"model"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// SchedulerCfg mirrors jobs.Config.
type SchedulerCfg struct {
	SlotsPerModel     int `mapstructure:"slots_per_model" yaml:"slots_per_model" json:"slots_per_model"`
	AttemptsPerChunk  int `mapstructure:"attempts_per_chunk" yaml:"attempts_per_chunk" json:"attempts_per_chunk"`
	RetryDelayMs      int `mapstructure:"retry_delay_ms" yaml:"retry_delay_ms" json:"retry_delay_ms"`
	AbandonMultiplier int `mapstructure:"abandon_multiplier" yaml:"abandon_multiplier" json:"abandon_multiplier"`
	IdlePollMs        int `mapstructure:"idle_poll_ms" yaml:"idle_poll_ms" json:"idle_poll_ms"`
}

// HealthCfg mirrors health.Config.
type HealthCfg struct {
	FailureThreshold int     `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	MinSamples       int     `mapstructure:"min_samples" yaml:"min_samples" json:"min_samples"`
	MinSuccessRate   float64 `mapstructure:"min_success_rate" yaml:"min_success_rate" json:"min_success_rate"`
}

// ExtractionCfg mirrors extract.Config.
type ExtractionCfg struct {
	Targets          []string `mapstructure:"targets" yaml:"targets" json:"targets"`
	Temperature      float64  `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens        int      `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	StructuredOutput bool     `mapstructure:"structured_output" yaml:"structured_output" json:"structured_output"`
}

// ChunkingCfg mirrors chunk.Config.
type ChunkingCfg struct {
	Mode             string `mapstructure:"mode" yaml:"mode" json:"mode"` // "size", "chapters"
	MaxChars         int    `mapstructure:"max_chars" yaml:"max_chars" json:"max_chars"`
	ChapterPattern   string `mapstructure:"chapter_pattern" yaml:"chapter_pattern" json:"chapter_pattern"`
	ChaptersPerChunk int    `mapstructure:"chapters_per_chunk" yaml:"chapters_per_chunk" json:"chapters_per_chunk"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	sched := jobs.DefaultConfig()
	hc := health.DefaultConfig()
	ec := extract.DefaultConfig()
	cc := chunk.DefaultConfig()

	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:           providers.OpenRouterName,
				Model:          "anthropic/claude-sonnet-4",
				APIKey:         "${OPENROUTER_API_KEY}",
				RateLimit:      2.0,
				TimeoutSeconds: 120,
				MaxRetries:     3,
				Enabled:        true,
			},
			"openai": {
				Type:           providers.OpenAIName,
				Model:          "gpt-4o-mini",
				APIKey:         "${OPENAI_API_KEY}",
				RateLimit:      2.0,
				TimeoutSeconds: 120,
				MaxRetries:     3,
				Enabled:        false,
			},
		},
		Executors: []ExecutorCfg{
			{Provider: "openrouter", Model: "anthropic/claude-sonnet-4"},
			{Provider: "openrouter", Model: "google/gemini-2.5-flash"},
			{Provider: "openrouter", Model: "openai/gpt-4o-mini"},
		},
		Scheduler: SchedulerCfg{
			SlotsPerModel:     sched.SlotsPerModel,
			AttemptsPerChunk:  sched.AttemptsPerChunk,
			RetryDelayMs:      int(sched.RetryDelay / time.Millisecond),
			AbandonMultiplier: sched.AbandonMultiplier,
			IdlePollMs:        int(sched.IdlePoll / time.Millisecond),
		},
		Health: HealthCfg{
			FailureThreshold: hc.FailureThreshold,
			MinSamples:       hc.MinSamples,
			MinSuccessRate:   hc.MinSuccessRate,
		},
		Extraction: ExtractionCfg{
			Targets:          []string{},
			Temperature:      ec.Temperature,
			MaxTokens:        ec.MaxTokens,
			StructuredOutput: ec.StructuredOutput,
		},
		Chunking: ChunkingCfg{
			Mode:             string(cc.Mode),
			MaxChars:         cc.MaxChars,
			ChapterPattern:   cc.ChapterPattern,
			ChaptersPerChunk: cc.ChaptersPerChunk,
		},
	}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Validate checks that every executor names an enabled provider and that the
// section values convert cleanly.
func (c *Config) Validate() error {
	if len(c.Executors) == 0 {
		return fmt.Errorf("no executors configured")
	}
	for i, e := range c.Executors {
		p, ok := c.LLMProviders[e.Provider]
		if !ok {
			return fmt.Errorf("executor %d: unknown provider %q", i+1, e.Provider)
		}
		if !p.Enabled {
			return fmt.Errorf("executor %d: provider %q is disabled", i+1, e.Provider)
		}
		if e.Model == "" && p.Model == "" {
			return fmt.Errorf("executor %d: model is required", i+1)
		}
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	if err := c.HealthConfig().Validate(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	return nil
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}
	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:       llm.Type,
			Model:      llm.Model,
			APIKey:     ResolveEnvVars(llm.APIKey),
			BaseURL:    ResolveEnvVars(llm.BaseURL),
			RateLimit:  llm.RateLimit,
			Timeout:    time.Duration(llm.TimeoutSeconds) * time.Second,
			MaxRetries: llm.MaxRetries,
			Enabled:    llm.Enabled,
		}
	}
	return cfg
}

// ExecutorSpecs returns the configured executors in order. An executor
// without a model uses its provider's default model.
func (c *Config) ExecutorSpecs() []jobs.ExecutorSpec {
	specs := make([]jobs.ExecutorSpec, 0, len(c.Executors))
	for _, e := range c.Executors {
		model := e.Model
		if model == "" {
			model = c.LLMProviders[e.Provider].Model
		}
		specs = append(specs, jobs.ExecutorSpec{
			Name:     e.Name,
			Provider: e.Provider,
			Model:    model,
			RPS:      e.RateLimit,
			Timeout:  time.Duration(e.TimeoutSeconds) * time.Second,
		})
	}
	return specs
}

// SchedulerConfig returns the scheduler settings. Callers fill in the
// store, logger and recorders.
func (c *Config) SchedulerConfig() jobs.Config {
	cfg := jobs.DefaultConfig()
	cfg.SlotsPerModel = c.Scheduler.SlotsPerModel
	cfg.AttemptsPerChunk = c.Scheduler.AttemptsPerChunk
	cfg.RetryDelay = time.Duration(c.Scheduler.RetryDelayMs) * time.Millisecond
	cfg.AbandonMultiplier = c.Scheduler.AbandonMultiplier
	cfg.IdlePoll = time.Duration(c.Scheduler.IdlePollMs) * time.Millisecond
	cfg.Health = c.HealthConfig()
	return cfg
}

// HealthConfig returns the quarantine thresholds.
func (c *Config) HealthConfig() health.Config {
	return health.Config{
		FailureThreshold: c.Health.FailureThreshold,
		MinSamples:       c.Health.MinSamples,
		MinSuccessRate:   c.Health.MinSuccessRate,
	}
}

// ExtractConfig returns the extraction settings.
func (c *Config) ExtractConfig() extract.Config {
	return extract.Config{
		Targets:          c.Extraction.Targets,
		Temperature:      c.Extraction.Temperature,
		MaxTokens:        c.Extraction.MaxTokens,
		StructuredOutput: c.Extraction.StructuredOutput,
	}
}

// ChunkConfig returns the partitioning settings.
func (c *Config) ChunkConfig() chunk.Config {
	return chunk.Config{
		Mode:             chunk.Mode(c.Chunking.Mode),
		MaxChars:         c.Chunking.MaxChars,
		ChapterPattern:   c.Chunking.ChapterPattern,
		ChaptersPerChunk: c.Chunking.ChaptersPerChunk,
	}
}
