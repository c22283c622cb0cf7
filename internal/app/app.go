// Package app wires configuration into a running exporter.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/neox5/bbexporter/internal/buildbot"
	"github.com/neox5/bbexporter/internal/bus"
	"github.com/neox5/bbexporter/internal/config"
	"github.com/neox5/bbexporter/internal/exporter"
	"github.com/neox5/bbexporter/internal/metric"
	"github.com/neox5/bbexporter/internal/monitor"
	"github.com/neox5/bbexporter/internal/subscription"
	"github.com/neox5/bbexporter/internal/translate"
)

// App holds initialized application components.
type App struct {
	Config             *config.Config
	Metrics            *metric.Registry
	Bus                bus.Bus
	Manager            *subscription.Manager
	PrometheusExporter *exporter.PrometheusExporter
	OTELExporter       *exporter.OTELExporter

	log      *slog.Logger
	closeBus func() error
}

type options struct {
	log     *slog.Logger
	bus     bus.Bus
	fetcher translate.BuildFetcher
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the application logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBus replaces the configured NATS bus. The caller keeps ownership.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithFetcher replaces the REST client used to resolve parent builds.
func WithFetcher(f translate.BuildFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// New initializes the application from a resolved configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log

	// Create metrics
	metrics, err := metric.New(cfg.Settings.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	var stats *subscription.Stats
	if cfg.Settings.InternalMetrics.Enabled {
		stats = subscription.NewStats(metrics.Namespace())
		if err := metrics.Register(stats.Collectors()...); err != nil {
			return nil, err
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		client, err := buildbot.NewClient(cfg.Buildbot.APIURL, cfg.Buildbot.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create buildbot client: %w", err)
		}
		fetcher = client
	}

	bindings, err := newBindings(metrics, fetcher)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Metrics:  metrics,
		Bus:      o.bus,
		log:      log,
		closeBus: func() error { return nil },
	}

	if a.Bus == nil {
		nc := cfg.Bus.NATS
		natsBus, err := bus.NewNATS(bus.NATSConfig{
			Connect:       bus.ConnectURL(nc.URL, nc.MaxReconnects, bus.LogConnectionEvents(log)...),
			Log:           log,
			SubjectPrefix: nc.SubjectPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect event bus: %w", err)
		}
		log.Info("connected event bus", "url", nc.URL, "prefix", nc.SubjectPrefix)
		a.Bus = natsBus
		a.closeBus = natsBus.Close
	}

	managerOpts := []subscription.Option{subscription.WithLogger(log)}
	if stats != nil {
		managerOpts = append(managerOpts, subscription.WithStats(stats))
	}
	a.Manager = subscription.New(a.Bus, bindings, managerOpts...)

	if cfg.Settings.InternalMetrics.Enabled {
		if err := metrics.Register(exporter.SelfCollectors(metrics.Namespace(), a.Manager.Active)...); err != nil {
			_ = a.closeBus()
			return nil, err
		}
	}

	// Create Prometheus exporter if enabled
	if p := cfg.Export.Prometheus; p != nil && p.Enabled {
		a.PrometheusExporter = exporter.NewPrometheusExporter(
			p,
			metrics.PrometheusRegistry(),
			cfg.Settings.InternalMetrics.Enabled,
		)
	}

	// Create OTEL exporter if enabled
	if cfg.Export.OTEL != nil && cfg.Export.OTEL.Enabled {
		a.OTELExporter, err = exporter.NewOTELExporter(cfg.Export.OTEL, metrics)
		if err != nil {
			_ = a.closeBus()
			return nil, fmt.Errorf("failed to create OTEL exporter: %w", err)
		}
	}

	return a, nil
}

func newBindings(metrics *metric.Registry, fetcher translate.BuildFetcher) ([]subscription.Binding, error) {
	schemas := translate.Schemas(fetcher)
	bindings := make([]subscription.Binding, 0, len(schemas))
	for _, s := range schemas {
		h, err := translate.New(metrics, s)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s translator: %w", s.Category, err)
		}
		bindings = append(bindings, subscription.Binding{Category: s.Category, Handler: h})
	}
	return bindings, nil
}

// Run registers the consumers, serves the exporters, and blocks until ctx
// is done or an exporter fails. Consumers are removed before the exporters
// stop, so no event is lost while the endpoint is still up.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.closeBus(); err != nil {
			a.log.Warn("failed to close event bus", "error", err)
		}
	}()

	if err := a.Manager.Register(ctx); err != nil {
		return fmt.Errorf("failed to register consumers: %w", err)
	}

	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()

	var mon *monitor.Monitor
	if m := a.Config.Settings.Monitor; m.Enabled {
		var err error
		mon, err = monitor.New(m.Interval, a.log, a.Manager)
		if err != nil {
			a.log.Warn("resource monitor disabled", "error", err)
		} else {
			mon.Run(serveCtx)
		}
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if a.PrometheusExporter != nil {
		wg.Go(func() {
			if err := a.PrometheusExporter.Start(serveCtx); err != nil {
				errChan <- fmt.Errorf("prometheus exporter: %w", err)
			}
		})
	}

	if a.OTELExporter != nil {
		wg.Go(func() {
			if err := a.OTELExporter.Start(serveCtx); err != nil {
				errChan <- fmt.Errorf("otel exporter: %w", err)
			}
		})
	}

	var runErr error
	select {
	case runErr = <-errChan:
		a.log.Error("exporter error", "error", runErr)
	case <-ctx.Done():
	}

	a.log.Debug("--- Shutdown Initiated ---")

	if err := a.Manager.Unregister(); err != nil {
		a.log.Warn("failed to remove consumers", "error", err)
	}
	a.logSnapshot(ctx)

	stopServing()
	wg.Wait()
	if mon != nil {
		mon.Wait()
	}

	// errors after shutdown began
	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	return errors.Join(append([]error{runErr}, errs...)...)
}

// Reconfigure replaces the live subscriptions with fresh ones. Accumulated
// metrics are kept.
func (a *App) Reconfigure(ctx context.Context) error {
	if err := a.Manager.Register(ctx); err != nil {
		return fmt.Errorf("failed to re-register consumers: %w", err)
	}
	a.log.Info("reconfigured", "subscriptions", a.Manager.Active())
	return nil
}

func (a *App) logSnapshot(ctx context.Context) {
	if !a.log.Enabled(ctx, slog.LevelDebug) {
		return
	}
	var sb strings.Builder
	if err := a.Metrics.Snapshot(&sb); err != nil {
		a.log.Debug("failed to render metrics snapshot", "error", err)
		return
	}
	a.log.Debug("final metrics snapshot", "snapshot", sb.String())
}
