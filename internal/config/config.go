// Package config handles tool configuration loading and management.
package config

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Faultbox/mesh3mf/pkg/scene"
)

// Config holds all settings.
type Config struct {
	Scene   SceneConfig   `yaml:"scene"`
	Colors  ColorsConfig  `yaml:"colors"`
	Loader  LoaderConfig  `yaml:"loader"`
	Logging LoggingConfig `yaml:"logging"`
}

// SceneConfig holds assembly settings.
type SceneConfig struct {
	TargetSize   float64 `yaml:"target_size"`   // Longest axis after normalization
	MaxInstances int     `yaml:"max_instances"` // Object visit limit, 0 for none
}

// ColorsConfig holds vertex color settings.
type ColorsConfig struct {
	Enabled bool `yaml:"enabled"`
	Linear  bool `yaml:"linear"` // Convert sRGB colors to linear light
}

// LoaderConfig holds package loading settings.
type LoaderConfig struct {
	Root         string        `yaml:"root"`          // Base directory for relative sources
	CacheEntries int           `yaml:"cache_entries"` // Geometry cache size, 0 disables
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Scene: SceneConfig{
			TargetSize:   scene.DefaultTargetSize,
			MaxInstances: scene.DefaultMaxInstances,
		},
		Colors: ColorsConfig{
			Enabled: true,
			Linear:  false,
		},
		Loader: LoaderConfig{
			Root:         "",
			CacheEntries: 32,
			Timeout:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogFile:    "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error
	if c.Scene.TargetSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("scene.target_size must be positive, got %v", c.Scene.TargetSize))
	}
	if c.Scene.MaxInstances < 0 {
		errs = multierr.Append(errs, fmt.Errorf("scene.max_instances must not be negative, got %d", c.Scene.MaxInstances))
	}
	if c.Loader.CacheEntries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("loader.cache_entries must not be negative, got %d", c.Loader.CacheEntries))
	}
	if c.Loader.Timeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("loader.timeout must not be negative, got %v", c.Loader.Timeout))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	return errs
}

// SceneOptions returns the pipeline options selected by the config.
func (c *Config) SceneOptions(log *zap.Logger) []scene.Option {
	registry := scene.Registry{}
	if c.Colors.Enabled {
		registry = scene.NewRegistry(c.Colors.Linear)
	}
	return []scene.Option{
		scene.WithLogger(log),
		scene.WithTargetSize(c.Scene.TargetSize),
		scene.WithMaxInstances(c.Scene.MaxInstances),
		scene.WithExtensions(registry),
	}
}
