// Package config loads engine configuration from a TOML file with
// environment overrides, and supports live reload through a file
// watcher. Precedence: defaults, then file, then environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// REDLINE_LOG_LEVEL.
const EnvPrefix = "REDLINE_"

// Errors returned by loading and validation.
var (
	ErrInvalidLevel       = errors.New("invalid log level")
	ErrInvalidFormat      = errors.New("invalid log format")
	ErrInvalidGranularity = errors.New("invalid planner granularity")
	ErrInvalidPolicy      = errors.New("invalid mismatch policy")
)

// Log configures logging output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Planner configures operation planning.
type Planner struct {
	Granularity     string `toml:"granularity"`
	ChunkSize       int    `toml:"chunk_size"`
	PacingMs        int    `toml:"pacing_ms"`
	MaxOperations   int    `toml:"max_operations"`
	LatencyBudgetMs int    `toml:"latency_budget_ms"`
}

// Tracking configures the change tracker.
type Tracking struct {
	MismatchPolicy string `toml:"mismatch_policy"`
	MaxHistory     int    `toml:"max_history"`
}

// Cluster configures change clustering.
type Cluster struct {
	WindowMs int   `toml:"window_ms"`
	Gap      int64 `toml:"gap"`
}

// Consolidation configures the consolidation engine.
type Consolidation struct {
	BatchSize    int   `toml:"batch_size"`
	DeferBytes   int64 `toml:"defer_bytes"`
	DeferChanges int   `toml:"defer_changes"`
	CacheSize    int   `toml:"cache_size"`
	QueueSize    int   `toml:"queue_size"`
}

// Retry configures transaction retry backoff.
type Retry struct {
	MaxRetries        uint64 `toml:"max_retries"`
	InitialIntervalMs int    `toml:"initial_interval_ms"`
	MaxIntervalMs     int    `toml:"max_interval_ms"`
}

// Config is the full engine configuration.
type Config struct {
	Log           Log           `toml:"log"`
	Planner       Planner       `toml:"planner"`
	Tracking      Tracking      `toml:"tracking"`
	Cluster       Cluster       `toml:"cluster"`
	Consolidation Consolidation `toml:"consolidation"`
	Retry         Retry         `toml:"retry"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "json"},
		Planner: Planner{
			Granularity:     "word",
			ChunkSize:       16,
			PacingMs:        15,
			MaxOperations:   500,
			LatencyBudgetMs: 30000,
		},
		Tracking: Tracking{MismatchPolicy: "skip", MaxHistory: 10000},
		Cluster:  Cluster{WindowMs: 2000, Gap: 80},
		Consolidation: Consolidation{
			BatchSize:    25,
			DeferBytes:   64 << 10,
			DeferChanges: 200,
			CacheSize:    512,
			QueueSize:    64,
		},
		Retry: Retry{MaxRetries: 3, InitialIntervalMs: 100, MaxIntervalMs: 2000},
	}
}

// Load reads configuration from the given TOML file, if present, applies
// environment overrides, and validates. An empty path skips the file
// layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults plus environment only.
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "GRANULARITY"); v != "" {
		c.Planner.Granularity = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "MISMATCH_POLICY"); v != "" {
		c.Tracking.MismatchPolicy = strings.ToLower(v)
	}
}

// Validate checks enum fields and value ranges.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, c.Log.Format)
	}
	switch c.Planner.Granularity {
	case "character", "word":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidGranularity, c.Planner.Granularity)
	}
	switch c.Tracking.MismatchPolicy {
	case "skip", "fail":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, c.Tracking.MismatchPolicy)
	}
	if c.Planner.ChunkSize <= 0 || c.Planner.MaxOperations <= 0 {
		return fmt.Errorf("planner chunk_size and max_operations must be positive")
	}
	if c.Consolidation.BatchSize <= 0 {
		return fmt.Errorf("consolidation batch_size must be positive")
	}
	return nil
}

// Pacing returns the planner pacing as a duration.
func (c *Config) Pacing() time.Duration {
	return time.Duration(c.Planner.PacingMs) * time.Millisecond
}

// LatencyBudget returns the planner latency budget as a duration.
func (c *Config) LatencyBudget() time.Duration {
	return time.Duration(c.Planner.LatencyBudgetMs) * time.Millisecond
}

// ClusterWindow returns the cluster time window as a duration.
func (c *Config) ClusterWindow() time.Duration {
	return time.Duration(c.Cluster.WindowMs) * time.Millisecond
}

// RetryIntervals returns the retry backoff bounds as durations.
func (c *Config) RetryIntervals() (initial, max time.Duration) {
	return time.Duration(c.Retry.InitialIntervalMs) * time.Millisecond,
		time.Duration(c.Retry.MaxIntervalMs) * time.Millisecond
}
