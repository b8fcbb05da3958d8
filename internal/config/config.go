// Package config defines the optimizer configuration tree with YAML
// and environment loading, defaults, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/optilayer/optilayer/pkg/errors"
)

// Configuration represents the complete optimizer configuration.
type Configuration struct {
	Cache        CacheConfig        `yaml:"cache"`
	Optimization OptimizationConfig `yaml:"optimization"`
	Performance  PerformanceConfig  `yaml:"performance"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// CacheConfig represents cache store settings. MaxSize accepts
// human-readable sizes such as "64MB".
type CacheConfig struct {
	MaxSize         string        `yaml:"max_size"`
	MaxItems        int           `yaml:"max_items"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// OptimizationConfig represents dispatch and compression settings.
type OptimizationConfig struct {
	MaxConcurrent        int           `yaml:"max_concurrent"`
	BatchSize            int           `yaml:"batch_size"`
	BatchTimeout         time.Duration `yaml:"batch_timeout"`
	EnableCompression    bool          `yaml:"enable_compression"`
	CompressionThreshold string        `yaml:"compression_threshold"`
	CompressionAlgorithm string        `yaml:"compression_algorithm"`
	CompressionLevel     int           `yaml:"compression_level"`
	MaxPoolBuffers       int           `yaml:"max_pool_buffers"`
}

// PerformanceConfig represents monitoring thresholds.
type PerformanceConfig struct {
	SlowThreshold      time.Duration `yaml:"slow_threshold"`
	MonitoringInterval time.Duration `yaml:"monitoring_interval"`
	MetricsRetention   time.Duration `yaml:"metrics_retention"`
}

// MetricsConfig represents the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Cache: CacheConfig{
			MaxSize:         "64MB",
			MaxItems:        10000,
			TTL:             5 * time.Minute,
			CleanupInterval: time.Minute,
		},
		Optimization: OptimizationConfig{
			MaxConcurrent:        8,
			BatchSize:            10,
			BatchTimeout:         100 * time.Millisecond,
			EnableCompression:    true,
			CompressionThreshold: "4KB",
			CompressionAlgorithm: "zstd",
			CompressionLevel:     0,
			MaxPoolBuffers:       0,
		},
		Performance: PerformanceConfig{
			SlowThreshold:      time.Second,
			MonitoringInterval: 30 * time.Second,
			MetricsRetention:   time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "optilayer",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithDetail("file", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv overrides configuration from environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("OPTILAYER_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("OPTILAYER_CACHE_MAX_SIZE"); val != "" {
		c.Cache.MaxSize = val
	}
	if val := os.Getenv("OPTILAYER_CACHE_MAX_ITEMS"); val != "" {
		if items, err := strconv.Atoi(val); err == nil {
			c.Cache.MaxItems = items
		}
	}
	if val := os.Getenv("OPTILAYER_CACHE_TTL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Cache.TTL = d
		}
	}
	if val := os.Getenv("OPTILAYER_MAX_CONCURRENT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Optimization.MaxConcurrent = n
		}
	}
	if val := os.Getenv("OPTILAYER_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Optimization.BatchSize = n
		}
	}
	if val := os.Getenv("OPTILAYER_BATCH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Optimization.BatchTimeout = d
		}
	}
	if val := os.Getenv("OPTILAYER_ENABLE_COMPRESSION"); val != "" {
		c.Optimization.EnableCompression = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OPTILAYER_SLOW_THRESHOLD"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.Performance.SlowThreshold = d
		}
	}
	if val := os.Getenv("OPTILAYER_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OPTILAYER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Metrics.Port = port
		}
	}
	return nil
}

// SaveToFile saves the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to marshal config").WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to create config directory").WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to write config file").WithCause(err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if _, err := c.CacheMaxBytes(); err != nil {
		return err
	}
	if _, err := c.CompressionThresholdBytes(); err != nil {
		return err
	}

	if c.Optimization.MaxConcurrent <= 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "max_concurrent must be greater than 0")
	}
	if c.Optimization.BatchSize <= 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "batch_size must be greater than 0")
	}
	if c.Optimization.BatchTimeout <= 0 {
		return errors.NewError(errors.ErrCodeConfigValidation, "batch_timeout must be greater than 0")
	}

	switch c.Optimization.CompressionAlgorithm {
	case "gzip", "zstd", "lz4":
	default:
		return errors.Newf(errors.ErrCodeConfigValidation,
			"invalid compression_algorithm: %s (must be one of: gzip, zstd, lz4)",
			c.Optimization.CompressionAlgorithm)
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Logging.Level) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return errors.Newf(errors.ErrCodeConfigValidation,
			"invalid log level: %s (must be one of: %s)",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// CacheMaxBytes returns the cache capacity in bytes.
func (c *Configuration) CacheMaxBytes() (int64, error) {
	return ParseSize(c.Cache.MaxSize)
}

// CompressionThresholdBytes returns the compression threshold in bytes.
func (c *Configuration) CompressionThresholdBytes() (int64, error) {
	return ParseSize(c.Optimization.CompressionThreshold)
}

// ParseSize parses a human-readable size such as "512KB" or "2GB"
// into bytes. A bare number is taken as bytes.
func ParseSize(sizeStr string) (int64, error) {
	s := strings.TrimSpace(strings.ToUpper(sizeStr))
	if s == "" {
		return 0, errors.NewError(errors.ErrCodeConfigValidation, "empty size")
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "TB"):
		multiplier = 1 << 40
		s = strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || value < 0 {
		return 0, errors.Newf(errors.ErrCodeConfigValidation, "invalid size: %s", sizeStr)
	}

	return int64(value * float64(multiplier)), nil
}

// String renders the effective configuration for startup logging.
func (c *Configuration) String() string {
	return fmt.Sprintf("cache[max_size=%s max_items=%d ttl=%v] optimization[concurrent=%d batch=%d/%v compression=%s] performance[slow=%v retention=%v]",
		c.Cache.MaxSize, c.Cache.MaxItems, c.Cache.TTL,
		c.Optimization.MaxConcurrent, c.Optimization.BatchSize, c.Optimization.BatchTimeout,
		c.Optimization.CompressionAlgorithm,
		c.Performance.SlowThreshold, c.Performance.MetricsRetention)
}
