package config

import "time"

const (
	// Prometheus defaults
	DefaultPrometheusPort      = 9100
	DefaultPrometheusInterface = ""
	DefaultPrometheusPath      = "/metrics"

	// OTEL defaults
	DefaultOTELReadInterval = 10 * time.Second
	DefaultOTELPushInterval = 10 * time.Second
	DefaultOTELTransport    = "grpc"
	DefaultOTELHost         = "localhost"
	DefaultOTELPortGRPC     = 4317
	DefaultOTELPortHTTP     = 4318
	DefaultServiceName      = "bbexporter"
	DefaultServiceVersion   = "dev"

	// Host defaults
	DefaultNATSURL           = "nats://127.0.0.1:4222"
	DefaultNATSSubjectPrefix = "buildbot"
	DefaultNATSMaxReconnects = 3
	DefaultAPIURL            = "http://localhost:8010/api/v2"
	DefaultAPITimeout        = 5 * time.Second

	// Settings defaults
	DefaultNamespace       = "buildbot"
	DefaultMonitorInterval = 30 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// Config holds the complete application configuration.
type Config struct {
	Export   ExportConfig
	Bus      BusConfig
	Buildbot BuildbotConfig
	Settings SettingsConfig
}

// BusConfig defines where host events are consumed from.
type BusConfig struct {
	NATS NATSConfig
}

// NATSConfig defines the NATS connection carrying host events.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
}

// BuildbotConfig defines access to the host data API.
type BuildbotConfig struct {
	APIURL  string
	Timeout time.Duration
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Resolve(&RawConfig{})
	if err != nil {
		// the zero raw config always resolves
		panic(err)
	}
	return cfg
}
