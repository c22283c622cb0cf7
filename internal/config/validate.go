package config

import (
	"fmt"
	"net/url"
)

// Validate performs syntactic validation on raw config
func Validate(raw *RawConfig) error {
	return validateRawSyntax(raw)
}

// validateRawSyntax rejects values that no default can repair
func validateRawSyntax(raw *RawConfig) error {
	if raw.Bus.NATS.URL != "" {
		if _, err := url.Parse(raw.Bus.NATS.URL); err != nil {
			return fmt.Errorf("invalid nats url %q: %w", raw.Bus.NATS.URL, err)
		}
	}
	if raw.Bus.NATS.MaxReconnects != nil && *raw.Bus.NATS.MaxReconnects < -1 {
		return fmt.Errorf("nats max_reconnects must be -1 (unlimited) or greater")
	}

	if raw.Buildbot.APIURL != "" {
		u, err := url.Parse(raw.Buildbot.APIURL)
		if err != nil {
			return fmt.Errorf("invalid buildbot api_url %q: %w", raw.Buildbot.APIURL, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid buildbot api_url %q: scheme must be http or https", raw.Buildbot.APIURL)
		}
	}
	if raw.Buildbot.Timeout < 0 {
		return fmt.Errorf("buildbot timeout must be positive")
	}

	if p := raw.Export.Prometheus; p != nil && p.Port < 0 {
		return fmt.Errorf("invalid prometheus port: %d", p.Port)
	}

	log := raw.Settings.Log
	if log.MaxSizeMB < 0 || log.MaxBackups < 0 || log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits cannot be negative")
	}

	return nil
}
