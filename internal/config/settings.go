package config

import (
	"fmt"
	"regexp"
	"time"
)

// SettingsConfig holds general application settings.
type SettingsConfig struct {
	Namespace       string
	InternalMetrics InternalMetricsConfig
	Monitor         MonitorConfig
	Log             LogConfig
}

// InternalMetricsConfig controls the exporter's self-monitoring metrics.
type InternalMetricsConfig struct {
	Enabled bool
}

// MonitorConfig controls the periodic resource log.
type MonitorConfig struct {
	Enabled  bool
	Interval time.Duration
}

// LogConfig controls log output. An empty File logs to stdout.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var namespacePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate applies defaults and validates settings configuration.
func (s *SettingsConfig) Validate() error {
	// Apply defaults
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if s.Monitor.Interval == 0 {
		s.Monitor.Interval = DefaultMonitorInterval
	}
	if s.Log.Level == "" {
		s.Log.Level = DefaultLogLevel
	}
	if s.Log.Format == "" {
		s.Log.Format = DefaultLogFormat
	}

	if !namespacePattern.MatchString(s.Namespace) {
		return fmt.Errorf("invalid namespace: %q", s.Namespace)
	}
	if s.Monitor.Interval < 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	switch s.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s.Log.Level)
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", s.Log.Format)
	}
	return nil
}
