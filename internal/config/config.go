// Package config holds all AEON constellation configuration. Config is
// loaded from .aeon/config.yaml with environment-variable overrides; every
// tunable that drives the failover, telemetry, learning, and post-mortem
// loops lives here so nothing is hardcoded at the call sites.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all AEON configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Text-generation service
	Generation GenerationConfig `yaml:"generation"`

	// Telemetry collector
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Failover circuit manager
	Failover FailoverConfig `yaml:"failover"`

	// Evolution engine
	Evolution EvolutionConfig `yaml:"evolution"`

	// Reward/Q-value learning loop
	Learning LearningConfig `yaml:"learning"`

	// Outcome scoring policy
	Outcome OutcomeConfig `yaml:"outcome"`

	// Persistence
	Persistence PersistenceConfig `yaml:"persistence"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// GenerationConfig configures the text-generation collaborator.
type GenerationConfig struct {
	Provider string `yaml:"provider"` // gemini, http, mock
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// TelemetryConfig configures the health sampler.
type TelemetryConfig struct {
	SampleInterval   string  `yaml:"sample_interval"`    // Sampler tick cadence
	HistorySize      int     `yaml:"history_size"`       // Ring buffer bound per role
	AlertHistorySize int     `yaml:"alert_history_size"` // Bounded alert log
	SmoothingAlpha   float64 `yaml:"smoothing_alpha"`    // EMA smoothing factor
	LatencyWarnMs    float64 `yaml:"latency_warn_ms"`
	LatencyCritMs    float64 `yaml:"latency_crit_ms"`
	ErrorRateWarn    float64 `yaml:"error_rate_warn"`
	ErrorRateCrit    float64 `yaml:"error_rate_crit"`
	HealthWarn       float64 `yaml:"health_warn"`
	HealthCrit       float64 `yaml:"health_crit"`
	ResourceWarn     float64 `yaml:"resource_warn"`
	ResourceCrit     float64 `yaml:"resource_crit"`
	TrendDeadBand    float64 `yaml:"trend_dead_band"` // Slope dead band against flapping
}

// FailoverConfig configures the per-role circuits.
type FailoverConfig struct {
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures"` // Failures before the circuit opens
	Cooldown               string  `yaml:"cooldown"`                 // Open-circuit cooldown window
	CheckpointLimit        int     `yaml:"checkpoint_limit"`         // Bounded per-role checkpoint list
	HealthFloor            float64 `yaml:"health_floor"`             // Escalate below this health
	SigmaMultiplier        float64 `yaml:"sigma_multiplier"`         // Statistical deviation trigger
	PrimaryTimeout         string  `yaml:"primary_timeout"`
	StandbyTimeout         string  `yaml:"standby_timeout"`
	FallbackATimeout       string  `yaml:"fallback_a_timeout"`
	FallbackBTimeout       string  `yaml:"fallback_b_timeout"`
	FallbackCTimeout       string  `yaml:"fallback_c_timeout"`
}

// EvolutionConfig configures the genetic loop.
type EvolutionConfig struct {
	PopulationSize       int     `yaml:"population_size"`
	EliteCount           int     `yaml:"elite_count"`
	TournamentSize       int     `yaml:"tournament_size"`
	CrossoverProbability float64 `yaml:"crossover_probability"`
	MutationProbability  float64 `yaml:"mutation_probability"`
	TargetFitness        float64 `yaml:"target_fitness"` // Evolve is a no-op at or above this
}

// LearningConfig configures the reward/Q-value update.
type LearningConfig struct {
	LearningRate     float64 `yaml:"learning_rate"`
	DiscountFactor   float64 `yaml:"discount_factor"`
	ExplorationRate  float64 `yaml:"exploration_rate"`
	ExplorationDecay float64 `yaml:"exploration_decay"`
	ExplorationFloor float64 `yaml:"exploration_floor"`
	FitnessBlend     float64 `yaml:"fitness_blend"` // Weight of prior fitness (0.9 = 90% prior)
}

// OutcomeConfig configures outcome scoring policy.
type OutcomeConfig struct {
	// PerfectionThreshold: outcomes below this schedule post-mortem work.
	// The original policy treats anything below 100 as failure; kept as a
	// tunable rather than a constant because it directly drives how often
	// the post-mortem/evolution loop fires.
	PerfectionThreshold float64 `yaml:"perfection_threshold"`

	WeightFunctional    float64 `yaml:"weight_functional"`
	WeightAesthetic     float64 `yaml:"weight_aesthetic"`
	WeightPerformance   float64 `yaml:"weight_performance"`
	WeightAccessibility float64 `yaml:"weight_accessibility"`
	WeightCodeQuality   float64 `yaml:"weight_code_quality"`
}

// PersistenceConfig configures the SQLite store.
type PersistenceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, text
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "aeon",
		Version: "0.9.0",

		Generation: GenerationConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
		},

		Telemetry: TelemetryConfig{
			SampleInterval:   "50ms",
			HistorySize:      1000,
			AlertHistorySize: 500,
			SmoothingAlpha:   0.1,
			LatencyWarnMs:    2000,
			LatencyCritMs:    8000,
			ErrorRateWarn:    0.15,
			ErrorRateCrit:    0.40,
			HealthWarn:       60,
			HealthCrit:       35,
			ResourceWarn:     0.75,
			ResourceCrit:     0.92,
			TrendDeadBand:    0.05,
		},

		Failover: FailoverConfig{
			MaxConsecutiveFailures: 5,
			Cooldown:               "30s",
			CheckpointLimit:        50,
			HealthFloor:            40,
			SigmaMultiplier:        2.0,
			PrimaryTimeout:         "15s",
			StandbyTimeout:         "20s",
			FallbackATimeout:       "30s",
			FallbackBTimeout:       "45s",
			FallbackCTimeout:       "60s",
		},

		Evolution: EvolutionConfig{
			PopulationSize:       20,
			EliteCount:           2,
			TournamentSize:       3,
			CrossoverProbability: 0.8,
			MutationProbability:  0.15,
			TargetFitness:        0.95,
		},

		Learning: LearningConfig{
			LearningRate:     0.1,
			DiscountFactor:   0.9,
			ExplorationRate:  0.2,
			ExplorationDecay: 0.995,
			ExplorationFloor: 0.02,
			FitnessBlend:     0.9,
		},

		Outcome: OutcomeConfig{
			PerfectionThreshold: 100,
			WeightFunctional:    0.35,
			WeightAesthetic:     0.20,
			WeightPerformance:   0.15,
			WeightAccessibility: 0.15,
			WeightCodeQuality:   0.15,
		},

		Persistence: PersistenceConfig{
			Enabled:      true,
			DatabasePath: ".aeon/aeon.db",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
			Format:    "text",
		},
	}
}

// DefaultPath returns the conventional config path within a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".aeon", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && (c.Generation.Provider == "gemini" || c.Generation.APIKey == "") {
		c.Generation.APIKey = key
	}
	if key := os.Getenv("AEON_API_KEY"); key != "" {
		c.Generation.APIKey = key
	}
	if url := os.Getenv("AEON_GENERATION_URL"); url != "" {
		c.Generation.BaseURL = url
	}
	if model := os.Getenv("AEON_MODEL"); model != "" {
		c.Generation.Model = model
	}
	if v := os.Getenv("AEON_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = b
		}
	}
	if v := os.Getenv("AEON_PERFECTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 100 {
			c.Outcome.PerfectionThreshold = f
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Telemetry.SmoothingAlpha <= 0 || c.Telemetry.SmoothingAlpha > 1 {
		return fmt.Errorf("telemetry.smoothing_alpha must be in (0,1], got %v", c.Telemetry.SmoothingAlpha)
	}
	if c.Telemetry.HistorySize <= 0 {
		return fmt.Errorf("telemetry.history_size must be positive, got %d", c.Telemetry.HistorySize)
	}
	if c.Failover.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("failover.max_consecutive_failures must be positive, got %d", c.Failover.MaxConsecutiveFailures)
	}
	if c.Evolution.PopulationSize < 2 {
		return fmt.Errorf("evolution.population_size must be at least 2, got %d", c.Evolution.PopulationSize)
	}
	if c.Evolution.EliteCount < 0 || c.Evolution.EliteCount >= c.Evolution.PopulationSize {
		return fmt.Errorf("evolution.elite_count must be in [0, population), got %d", c.Evolution.EliteCount)
	}
	if c.Learning.FitnessBlend < 0 || c.Learning.FitnessBlend > 1 {
		return fmt.Errorf("learning.fitness_blend must be in [0,1], got %v", c.Learning.FitnessBlend)
	}
	if c.Outcome.PerfectionThreshold < 0 || c.Outcome.PerfectionThreshold > 100 {
		return fmt.Errorf("outcome.perfection_threshold must be in [0,100], got %v", c.Outcome.PerfectionThreshold)
	}
	wsum := c.Outcome.WeightFunctional + c.Outcome.WeightAesthetic + c.Outcome.WeightPerformance +
		c.Outcome.WeightAccessibility + c.Outcome.WeightCodeQuality
	if wsum < 0.99 || wsum > 1.01 {
		return fmt.Errorf("outcome weights must sum to 1.0, got %v", wsum)
	}
	return nil
}

// ParseDuration parses a duration string with a fallback default.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// TierTimeout returns the attempt timeout for the given tier ordinal
// (0 = PRIMARY through 4 = FALLBACK_C). Cheap tiers fail fast; last-resort
// tiers get progressively more time.
func (f FailoverConfig) TierTimeout(ordinal int) time.Duration {
	switch ordinal {
	case 0:
		return ParseDuration(f.PrimaryTimeout, 15*time.Second)
	case 1:
		return ParseDuration(f.StandbyTimeout, 20*time.Second)
	case 2:
		return ParseDuration(f.FallbackATimeout, 30*time.Second)
	case 3:
		return ParseDuration(f.FallbackBTimeout, 45*time.Second)
	default:
		return ParseDuration(f.FallbackCTimeout, 60*time.Second)
	}
}
