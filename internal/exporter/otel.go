package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neox5/bbexporter/internal/config"
	"github.com/neox5/bbexporter/internal/metric"
	dto "github.com/prometheus/client_model/go"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/neox5/bbexporter"

// OTELExporter pushes the catalog metrics to an OTEL collector.
type OTELExporter struct {
	config        *config.OTELExportConfig
	registry      *metric.Registry
	meterProvider *sdkmetric.MeterProvider
	meter         otelmetric.Meter
	instruments   []instrument
	cancelFunc    context.CancelFunc

	// families caches the last registry read for Interval.Read.
	mu       sync.Mutex
	families map[string]*dto.MetricFamily
	readAt   time.Time
}

// instrument holds an OTEL observable instrument for one catalog metric.
type instrument struct {
	name    string
	counter otelmetric.Float64ObservableCounter
	gauge   otelmetric.Float64ObservableGauge
}

// NewOTELExporter creates a new OTEL exporter pushing over cfg.Transport.
func NewOTELExporter(cfg *config.OTELExportConfig, metrics *metric.Registry) (*OTELExporter, error) {
	res, err := createOTELResource(cfg.Resource)
	if err != nil {
		return nil, err
	}

	exp, err := createMetricExporter(cfg)
	if err != nil {
		return nil, err
	}

	// Create periodic reader with push interval
	reader := sdkmetric.NewPeriodicReader(
		exp,
		sdkmetric.WithInterval(cfg.Interval.Push),
	)

	return newOTELExporter(cfg, metrics, sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	))
}

func newOTELExporter(
	cfg *config.OTELExportConfig,
	metrics *metric.Registry,
	provider *sdkmetric.MeterProvider,
) (*OTELExporter, error) {
	e := &OTELExporter{
		config:        cfg,
		registry:      metrics,
		meterProvider: provider,
		meter:         provider.Meter(meterName),
	}

	if err := registerOTELInstruments(e); err != nil {
		return nil, err
	}
	return e, nil
}

// Start blocks until ctx is done; the periodic reader pushes on its own.
func (e *OTELExporter) Start(ctx context.Context) error {
	slog.Info("starting otel exporter",
		"transport", e.config.Transport,
		"endpoint", e.config.GetEndpoint(),
		"push_interval", e.config.Interval.Push,
	)

	// Create cancellable context
	readCtx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	<-readCtx.Done()
	return e.Stop()
}

// Stop flushes pending data and shuts the provider down.
func (e *OTELExporter) Stop() error {
	slog.Info("shutting down otel exporter")

	if e.cancelFunc != nil {
		e.cancelFunc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return e.meterProvider.Shutdown(ctx)
}

// gather returns the registry families, re-reading at most once per
// Interval.Read.
func (e *OTELExporter) gather() (map[string]*dto.MetricFamily, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.families != nil && time.Since(e.readAt) < e.config.Interval.Read {
		return e.families, nil
	}

	families, err := e.registry.PrometheusRegistry().Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	e.families = byName
	e.readAt = time.Now()
	return byName, nil
}
