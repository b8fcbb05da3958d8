package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Cache.MaxSize != "64MB" {
		t.Errorf("default cache max_size = %s, want 64MB", cfg.Cache.MaxSize)
	}
	if cfg.Optimization.BatchSize != 10 {
		t.Errorf("default batch_size = %d, want 10", cfg.Optimization.BatchSize)
	}
	if cfg.Performance.SlowThreshold != time.Second {
		t.Errorf("default slow_threshold = %v, want 1s", cfg.Performance.SlowThreshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration invalid: %v", err)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1024B", 1024, false},
		{"1KB", 1024, false},
		{"4KB", 4096, false},
		{"64MB", 64 * 1024 * 1024, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"1TB", 1 << 40, false},
		{"1.5MB", 1572864, false},
		{" 512kb ", 512 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"-5MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSize(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad cache size", func(c *Configuration) { c.Cache.MaxSize = "lots" }},
		{"zero concurrency", func(c *Configuration) { c.Optimization.MaxConcurrent = 0 }},
		{"zero batch size", func(c *Configuration) { c.Optimization.BatchSize = 0 }},
		{"zero batch timeout", func(c *Configuration) { c.Optimization.BatchTimeout = 0 }},
		{"unknown algorithm", func(c *Configuration) { c.Optimization.CompressionAlgorithm = "snappy" }},
		{"bad log level", func(c *Configuration) { c.Logging.Level = "VERBOSE" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFileRoundTrip(t *testing.T) {
	cfg := NewDefault()
	cfg.Cache.MaxItems = 42
	cfg.Optimization.CompressionAlgorithm = "lz4"
	cfg.Performance.SlowThreshold = 250 * time.Millisecond

	path := filepath.Join(t.TempDir(), "sub", "optimizer.yaml")
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if loaded.Cache.MaxItems != 42 {
		t.Errorf("max_items = %d, want 42", loaded.Cache.MaxItems)
	}
	if loaded.Optimization.CompressionAlgorithm != "lz4" {
		t.Errorf("algorithm = %s, want lz4", loaded.Optimization.CompressionAlgorithm)
	}
	if loaded.Performance.SlowThreshold != 250*time.Millisecond {
		t.Errorf("slow_threshold = %v, want 250ms", loaded.Performance.SlowThreshold)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/optimizer.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPTILAYER_CACHE_MAX_SIZE", "128MB")
	t.Setenv("OPTILAYER_BATCH_SIZE", "25")
	t.Setenv("OPTILAYER_BATCH_TIMEOUT", "2s")
	t.Setenv("OPTILAYER_ENABLE_COMPRESSION", "false")
	t.Setenv("OPTILAYER_LOG_LEVEL", "DEBUG")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Cache.MaxSize != "128MB" {
		t.Errorf("cache max_size = %s, want 128MB", cfg.Cache.MaxSize)
	}
	if cfg.Optimization.BatchSize != 25 {
		t.Errorf("batch_size = %d, want 25", cfg.Optimization.BatchSize)
	}
	if cfg.Optimization.BatchTimeout != 2*time.Second {
		t.Errorf("batch_timeout = %v, want 2s", cfg.Optimization.BatchTimeout)
	}
	if cfg.Optimization.EnableCompression {
		t.Error("compression should be disabled")
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("log level = %s, want DEBUG", cfg.Logging.Level)
	}
}

func TestLoadFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("OPTILAYER_BATCH_SIZE", "not-a-number")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Optimization.BatchSize != 10 {
		t.Errorf("invalid env var should keep default, got %d", cfg.Optimization.BatchSize)
	}
}
