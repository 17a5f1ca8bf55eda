// Package config loads engine configuration from environment variables
// (and an optional config file) via viper, then validates it before the
// engine is allowed to start — the same validate-or-fail discipline the
// teacher applies to its JWT secret (see
// infrastructure/api/src/config/secret_validation.go upstream).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full set of engine tunables, sourced from environment
// variables prefixed OKSENTINEL_ (e.g. OKSENTINEL_OUTPUT_DIR) or from a
// config file passed to Load.
type Config struct {
	OutputDir              string `mapstructure:"output_dir"`
	DefaultChunkSizeBytes  uint32 `mapstructure:"default_chunk_size_bytes"`
	DecryptedCacheCapacity int    `mapstructure:"decrypted_cache_capacity"`
	EncryptedCacheCapacity int    `mapstructure:"encrypted_cache_capacity"`
	ShortRangeWindow       int    `mapstructure:"short_range_window"`
	LongRangeWindow        int    `mapstructure:"long_range_window"`
	WorkerThreads          int    `mapstructure:"worker_threads"`
	SweepIntervalCron      string `mapstructure:"sweep_interval_cron"`
	MetricsAddr            string `mapstructure:"metrics_addr"`
	LogLevel               string `mapstructure:"log_level"`
}

// defaults mirror the spec's stated defaults (§4.7, §4.9) plus ambient
// ops settings.
func defaults() Config {
	return Config{
		OutputDir:              "./data/assets",
		DefaultChunkSizeBytes:  4 << 20,
		DecryptedCacheCapacity: 10,
		EncryptedCacheCapacity: 30,
		ShortRangeWindow:       3,
		LongRangeWindow:        10,
		WorkerThreads:          2,
		SweepIntervalCron:      "@every 1m",
		MetricsAddr:            ":9090",
		LogLevel:               "info",
	}
}

// Load reads configuration from environment variables (prefix
// OKSENTINEL_) and, if configPath is non-empty, from that file,
// applying defaults() first and validating the merged result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("oksentinel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := defaults()
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("default_chunk_size_bytes", d.DefaultChunkSizeBytes)
	v.SetDefault("decrypted_cache_capacity", d.DecryptedCacheCapacity)
	v.SetDefault("encrypted_cache_capacity", d.EncryptedCacheCapacity)
	v.SetDefault("short_range_window", d.ShortRangeWindow)
	v.SetDefault("long_range_window", d.LongRangeWindow)
	v.SetDefault("worker_threads", d.WorkerThreads)
	v.SetDefault("sweep_interval_cron", d.SweepIntervalCron)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants the engine assumes hold at startup.
// Like the teacher's ValidateJWTSecret, this fails loud rather than
// silently falling back to something the caller didn't ask for.
func Validate(cfg *Config) error {
	if cfg.OutputDir == "" {
		return fmt.Errorf("config: output_dir must not be empty")
	}
	if cfg.DefaultChunkSizeBytes < 1 {
		return fmt.Errorf("config: default_chunk_size_bytes must be >= 1, got %d", cfg.DefaultChunkSizeBytes)
	}
	if cfg.DecryptedCacheCapacity < 1 {
		return fmt.Errorf("config: decrypted_cache_capacity must be >= 1, got %d", cfg.DecryptedCacheCapacity)
	}
	if cfg.EncryptedCacheCapacity < 1 {
		return fmt.Errorf("config: encrypted_cache_capacity must be >= 1, got %d", cfg.EncryptedCacheCapacity)
	}
	if cfg.ShortRangeWindow < 1 || cfg.LongRangeWindow < 1 {
		return fmt.Errorf("config: short_range_window and long_range_window must be >= 1")
	}
	if cfg.WorkerThreads < 1 {
		return fmt.Errorf("config: worker_threads must be >= 1, got %d", cfg.WorkerThreads)
	}
	return nil
}
