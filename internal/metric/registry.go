package metric

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrKindMismatch  = errors.New("operation not supported by metric kind")
)

// Registry owns the catalog metrics and the Prometheus registry they are
// exposed from. Instances are created on first write and never removed.
type Registry struct {
	namespace string
	registry  *prometheus.Registry
	defs      []Definition
	byName    map[string]Definition

	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	scalars  map[string]prometheus.Gauge
}

// New creates a registry holding every catalog metric under namespace.
func New(namespace string) (*Registry, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r := &Registry{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		byName:    make(map[string]Definition),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		scalars:   make(map[string]prometheus.Gauge),
	}

	for _, def := range Catalog() {
		def.Labels = slices.Clone(def.Labels)

		var c prometheus.Collector
		switch {
		case def.Kind == KindCounter:
			vec := prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      def.Name,
				Help:      def.Help,
			}, def.Labels)
			r.counters[def.Name] = vec
			c = vec
		case def.Kind == KindGauge && len(def.Labels) == 0:
			g := prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      def.Name,
				Help:      def.Help,
			})
			r.scalars[def.Name] = g
			c = g
		case def.Kind == KindGauge:
			vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      def.Name,
				Help:      def.Help,
			}, def.Labels)
			r.gauges[def.Name] = vec
			c = vec
		default:
			return nil, fmt.Errorf("metric %q: unsupported kind %q", def.Name, def.Kind)
		}

		if err := r.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric %q: %w", def.Name, err)
		}

		r.defs = append(r.defs, def)
		r.byName[def.Name] = def

		slog.Debug("registered metric",
			"name", r.FullName(def.Name),
			"type", def.Kind,
			"labels", def.Labels)
	}

	return r, nil
}

// Namespace returns the prefix applied to every catalog metric.
func (r *Registry) Namespace() string {
	return r.namespace
}

// FullName returns the exposed name of a catalog metric.
func (r *Registry) FullName(name string) string {
	return prometheus.BuildFQName(r.namespace, "", name)
}

// Definitions returns the registered catalog in declaration order.
func (r *Registry) Definitions() []Definition {
	return slices.Clone(r.defs)
}

// Definition looks up a catalog metric by unprefixed name.
func (r *Registry) Definition(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Register adds collectors outside the catalog, such as self metrics.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// Inc increments a counter or gauge instance by one.
func (r *Registry) Inc(name string, labelValues ...string) error {
	if vec, ok := r.counters[name]; ok {
		c, err := vec.GetMetricWithLabelValues(labelValues...)
		if err != nil {
			return fmt.Errorf("metric %q: %w", name, err)
		}
		c.Inc()
		return nil
	}
	g, err := r.gauge(name, labelValues)
	if err != nil {
		return err
	}
	g.Inc()
	return nil
}

// Dec decrements a gauge instance by one.
func (r *Registry) Dec(name string, labelValues ...string) error {
	g, err := r.gauge(name, labelValues)
	if err != nil {
		return err
	}
	g.Dec()
	return nil
}

// Set sets a gauge instance to v.
func (r *Registry) Set(name string, v float64, labelValues ...string) error {
	g, err := r.gauge(name, labelValues)
	if err != nil {
		return err
	}
	g.Set(v)
	return nil
}

// Value reads the current value of an instance. An instance that was never
// written reads as zero without being created.
func (r *Registry) Value(name string, labelValues ...string) (float64, error) {
	def, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	if len(labelValues) != len(def.Labels) {
		return 0, fmt.Errorf("metric %q: expected %d label values, got %d",
			name, len(def.Labels), len(labelValues))
	}

	mfs, err := r.registry.Gather()
	if err != nil {
		return 0, fmt.Errorf("failed to gather metrics: %w", err)
	}

	full := r.FullName(name)
	for _, mf := range mfs {
		if mf.GetName() != full {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, def.Labels, labelValues) {
				return sampleValue(m), nil
			}
		}
	}
	return 0, nil
}

// gauge resolves a gauge instance, labelled or not.
func (r *Registry) gauge(name string, labelValues []string) (prometheus.Gauge, error) {
	if g, ok := r.scalars[name]; ok {
		if len(labelValues) != 0 {
			return nil, fmt.Errorf("metric %q: expected 0 label values, got %d", name, len(labelValues))
		}
		return g, nil
	}
	if vec, ok := r.gauges[name]; ok {
		g, err := vec.GetMetricWithLabelValues(labelValues...)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", name, err)
		}
		return g, nil
	}
	if _, ok := r.counters[name]; ok {
		return nil, fmt.Errorf("%w: %q is a counter", ErrKindMismatch, name)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

func matchLabels(m *dto.Metric, names, values []string) bool {
	pairs := m.GetLabel()
	if len(pairs) != len(names) {
		return false
	}
	want := make(map[string]string, len(names))
	for i, n := range names {
		want[n] = values[i]
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.GetCounter().GetValue()
	case m.Gauge != nil:
		return m.GetGauge().GetValue()
	case m.Untyped != nil:
		return m.GetUntyped().GetValue()
	}
	return 0
}
