package config

import "fmt"

// Overrides carries command line values replacing file settings. Nil
// fields leave the file value in place.
type Overrides struct {
	Port      *int
	Interface *string
	NATSURL   *string
	APIURL    *string
}

// Apply replaces settings with o and validates the result again.
func (c *Config) Apply(o Overrides) error {
	p := c.Export.Prometheus
	if p == nil {
		p = &PrometheusExportConfig{Enabled: true}
		c.Export.Prometheus = p
	}
	if o.Port != nil {
		p.Port = *o.Port
	}
	if o.Interface != nil {
		p.Interface = *o.Interface
	}
	if o.NATSURL != nil {
		c.Bus.NATS.URL = *o.NATSURL
	}
	if o.APIURL != nil {
		c.Buildbot.APIURL = *o.APIURL
	}

	if err := Validate(&RawConfig{
		Bus:      RawBusConfig{NATS: RawNATSConfig{URL: c.Bus.NATS.URL}},
		Buildbot: RawBuildbotConfig{APIURL: c.Buildbot.APIURL},
	}); err != nil {
		return err
	}
	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
