package config

import "time"

// RawConfig represents unparsed YAML structure
type RawConfig struct {
	Export   RawExportConfig   `yaml:"export"`
	Bus      RawBusConfig      `yaml:"bus"`
	Buildbot RawBuildbotConfig `yaml:"buildbot"`
	Settings RawSettingsConfig `yaml:"settings"`
}

// RawBusConfig selects the host event bus
type RawBusConfig struct {
	NATS RawNATSConfig `yaml:"nats"`
}

// RawNATSConfig defines the NATS connection carrying host events
type RawNATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	MaxReconnects *int   `yaml:"max_reconnects,omitempty"`
}

// RawBuildbotConfig defines access to the host data API
type RawBuildbotConfig struct {
	APIURL  string        `yaml:"api_url"`
	Timeout time.Duration `yaml:"timeout"`
}
