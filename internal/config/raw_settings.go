package config

import "time"

// RawSettingsConfig holds general application settings
type RawSettingsConfig struct {
	Namespace       string                   `yaml:"namespace"`
	InternalMetrics RawInternalMetricsConfig `yaml:"internal_metrics"`
	Monitor         RawMonitorConfig         `yaml:"monitor"`
	Log             RawLogConfig             `yaml:"log"`
}

// RawInternalMetricsConfig controls the exporter's self-monitoring metrics
type RawInternalMetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RawMonitorConfig controls the periodic resource log
type RawMonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// RawLogConfig controls log output
type RawLogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}
