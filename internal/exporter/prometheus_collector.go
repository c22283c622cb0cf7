package exporter

import (
	"github.com/neox5/bbexporter/internal/version"
	"github.com/prometheus/client_golang/prometheus"
)

// stateCollector reports exporter state read at scrape time.
type stateCollector struct {
	info          *prometheus.Desc
	subscriptions *prometheus.Desc
	active        func() int
}

// newStateCollector creates a collector reading live subscriptions from active.
func newStateCollector(namespace string, active func() int) *stateCollector {
	return &stateCollector{
		info: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "exporter", "info"),
			"Exporter version information",
			[]string{"version"},
			nil,
		),
		subscriptions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "exporter", "subscriptions"),
			"Number of live event bus subscriptions",
			nil,
			nil,
		),
		active: active,
	}
}

// Describe sends metric descriptors to the channel.
func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.info
	ch <- c.subscriptions
}

// Collect is called on each Prometheus scrape.
func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1, version.String())
	ch <- prometheus.MustNewConstMetric(c.subscriptions, prometheus.GaugeValue, float64(c.active()))
}
