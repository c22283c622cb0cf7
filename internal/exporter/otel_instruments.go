package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neox5/bbexporter/internal/metric"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// registerOTELInstruments creates an instrument for every catalog metric.
func registerOTELInstruments(e *OTELExporter) error {
	var instruments []instrument

	for _, def := range e.registry.Definitions() {
		name := e.registry.FullName(def.Name)
		opts := []otelmetric.InstrumentOption{otelmetric.WithDescription(def.Help)}
		if strings.HasSuffix(def.Name, "_seconds") {
			opts = append(opts, otelmetric.WithUnit("s"))
		}

		inst := instrument{name: name}

		switch def.Kind {
		case metric.KindCounter:
			counter, err := e.meter.Float64ObservableCounter(name, counterOptions(opts)...)
			if err != nil {
				return fmt.Errorf("failed to create counter %q: %w", name, err)
			}
			inst.counter = counter

		case metric.KindGauge:
			gauge, err := e.meter.Float64ObservableGauge(name, gaugeOptions(opts)...)
			if err != nil {
				return fmt.Errorf("failed to create gauge %q: %w", name, err)
			}
			inst.gauge = gauge
		}

		instruments = append(instruments, inst)

		slog.Debug("registered otel metric",
			"name", name,
			"type", def.Kind,
			"attributes", def.Labels)
	}

	e.instruments = instruments

	return registerOTELCallback(e)
}

// registerOTELCallback registers the observation callback for all instruments.
func registerOTELCallback(e *OTELExporter) error {
	var observables []otelmetric.Observable
	for _, inst := range e.instruments {
		if inst.counter != nil {
			observables = append(observables, inst.counter)
		}
		if inst.gauge != nil {
			observables = append(observables, inst.gauge)
		}
	}

	_, err := e.meter.RegisterCallback(
		func(ctx context.Context, observer otelmetric.Observer) error {
			families, err := e.gather()
			if err != nil {
				return err
			}

			slog.Debug("otel push", "families", len(families))

			for _, inst := range e.instruments {
				family, ok := families[inst.name]
				if !ok {
					continue
				}
				for _, m := range family.GetMetric() {
					attrs := otelmetric.WithAttributes(labelAttributes(m.GetLabel())...)
					if inst.counter != nil {
						observer.ObserveFloat64(inst.counter, m.GetCounter().GetValue(), attrs)
					}
					if inst.gauge != nil {
						observer.ObserveFloat64(inst.gauge, m.GetGauge().GetValue(), attrs)
					}
				}
			}
			return nil
		},
		observables...,
	)
	if err != nil {
		return fmt.Errorf("failed to register callback: %w", err)
	}

	return nil
}

func labelAttributes(pairs []*dto.LabelPair) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(pairs))
	for i, p := range pairs {
		attrs[i] = attribute.String(p.GetName(), p.GetValue())
	}
	return attrs
}

func counterOptions(opts []otelmetric.InstrumentOption) []otelmetric.Float64ObservableCounterOption {
	out := make([]otelmetric.Float64ObservableCounterOption, len(opts))
	for i, o := range opts {
		out[i] = o
	}
	return out
}

func gaugeOptions(opts []otelmetric.InstrumentOption) []otelmetric.Float64ObservableGaugeOption {
	out := make([]otelmetric.Float64ObservableGaugeOption, len(opts))
	for i, o := range opts {
		out[i] = o
	}
	return out
}
