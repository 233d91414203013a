package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Planner.Granularity != "word" {
		t.Errorf("granularity = %q, want default 'word'", cfg.Planner.Granularity)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redline.toml")
	data := `
[log]
level = "debug"
format = "console"

[planner]
granularity = "character"
chunk_size = 8

[tracking]
mismatch_policy = "fail"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Planner.Granularity != "character" || cfg.Planner.ChunkSize != 8 {
		t.Errorf("planner = %+v", cfg.Planner)
	}
	if cfg.Tracking.MismatchPolicy != "fail" {
		t.Errorf("mismatch policy = %q", cfg.Tracking.MismatchPolicy)
	}
	// Untouched sections keep their defaults.
	if cfg.Consolidation.BatchSize != 25 {
		t.Errorf("batch size = %d, want default 25", cfg.Consolidation.BatchSize)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redline.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("REDLINE_LOG_LEVEL", "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("level = %q, want env override 'error'", cfg.Log.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLevel},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, ErrInvalidFormat},
		{"bad granularity", func(c *Config) { c.Planner.Granularity = "sentence" }, ErrInvalidGranularity},
		{"bad policy", func(c *Config) { c.Tracking.MismatchPolicy = "explode" }, ErrInvalidPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "redline.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, nil, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Log.Level != "warn" {
			t.Errorf("reloaded level = %q, want 'warn'", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never reloaded")
	}
}
