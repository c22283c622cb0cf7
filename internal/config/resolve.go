package config

import (
	"fmt"
	"maps"
)

// Resolve converts a raw config into a validated Config with defaults applied
func Resolve(raw *RawConfig) (*Config, error) {
	cfg := &Config{
		Export:   resolveExport(raw.Export),
		Bus:      resolveBus(raw.Bus),
		Buildbot: resolveBuildbot(raw.Buildbot),
		Settings: resolveSettings(raw.Settings),
	}

	if err := cfg.Export.Validate(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}

	return cfg, nil
}

func resolveExport(raw RawExportConfig) ExportConfig {
	var export ExportConfig

	if p := raw.Prometheus; p != nil {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		export.Prometheus = &PrometheusExportConfig{
			Enabled:   enabled,
			Port:      p.Port,
			Interface: p.Interface,
			Path:      p.Path,
		}
	}

	if o := raw.OTEL; o != nil {
		export.OTEL = &OTELExportConfig{
			Enabled:   o.Enabled,
			Transport: o.Transport,
			Host:      o.Host,
			Port:      o.Port,
			Interval: IntervalConfig{
				Read: o.Interval.Read,
				Push: o.Interval.Push,
			},
			Resource: maps.Clone(o.Resource),
			Headers:  maps.Clone(o.Headers),
		}
	}

	return export
}

func resolveBus(raw RawBusConfig) BusConfig {
	nats := NATSConfig{
		URL:           raw.NATS.URL,
		SubjectPrefix: raw.NATS.SubjectPrefix,
		MaxReconnects: DefaultNATSMaxReconnects,
	}
	if nats.URL == "" {
		nats.URL = DefaultNATSURL
	}
	if nats.SubjectPrefix == "" {
		nats.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	if raw.NATS.MaxReconnects != nil {
		nats.MaxReconnects = *raw.NATS.MaxReconnects
	}
	return BusConfig{NATS: nats}
}

func resolveBuildbot(raw RawBuildbotConfig) BuildbotConfig {
	bb := BuildbotConfig{APIURL: raw.APIURL, Timeout: raw.Timeout}
	if bb.APIURL == "" {
		bb.APIURL = DefaultAPIURL
	}
	if bb.Timeout == 0 {
		bb.Timeout = DefaultAPITimeout
	}
	return bb
}

func resolveSettings(raw RawSettingsConfig) SettingsConfig {
	return SettingsConfig{
		Namespace:       raw.Namespace,
		InternalMetrics: InternalMetricsConfig{Enabled: raw.InternalMetrics.Enabled},
		Monitor: MonitorConfig{
			Enabled:  raw.Monitor.Enabled,
			Interval: raw.Monitor.Interval,
		},
		Log: LogConfig{
			Level:      raw.Log.Level,
			Format:     raw.Log.Format,
			File:       raw.Log.File,
			MaxSizeMB:  raw.Log.MaxSizeMB,
			MaxBackups: raw.Log.MaxBackups,
			MaxAgeDays: raw.Log.MaxAgeDays,
			Compress:   raw.Log.Compress,
		},
	}
}
