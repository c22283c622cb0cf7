package subscription

import "github.com/prometheus/client_golang/prometheus"

// Stats are the exporter's own event handling metrics.
type Stats struct {
	events     *prometheus.CounterVec
	violations *prometheus.CounterVec
	errors     *prometheus.CounterVec
}

// NewStats creates self metrics under namespace.
func NewStats(namespace string) *Stats {
	labels := []string{"category"}
	return &Stats{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "events_total",
			Help:      "Number of host events delivered to translators",
		}, labels),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "violations_total",
			Help:      "Number of host events rejected for breaking the payload contract",
		}, labels),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exporter",
			Name:      "handler_errors_total",
			Help:      "Number of host events whose translation failed for other reasons",
		}, labels),
	}
}

// Collectors returns the collectors to register.
func (s *Stats) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.events, s.violations, s.errors}
}
