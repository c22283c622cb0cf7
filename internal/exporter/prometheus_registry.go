package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// SelfCollectors returns the exporter's own collectors: build info, live
// subscriptions, and the Go runtime and process collectors.
func SelfCollectors(namespace string, active func() int) []prometheus.Collector {
	return []prometheus.Collector{
		newStateCollector(namespace, active),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
}
