package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/neox5/bbexporter/internal/config"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 5 * time.Second

// PrometheusExporter provides the HTTP endpoint serving the registry.
type PrometheusExporter struct {
	addr   string
	path   string
	server *http.Server

	mu       sync.Mutex
	listener net.Addr
}

// NewPrometheusExporter creates a new Prometheus HTTP exporter.
func NewPrometheusExporter(
	cfg *config.PrometheusExportConfig,
	promRegistry *prometheus.Registry,
	internalMetricsEnabled bool,
) *PrometheusExporter {
	addr := cfg.Addr()
	return &PrometheusExporter{
		addr:   addr,
		path:   cfg.Path,
		server: createHTTPServer(addr, cfg.Path, promRegistry, internalMetricsEnabled),
	}
}

// Handler returns the HTTP handler serving the metrics route.
func (e *PrometheusExporter) Handler() http.Handler {
	return e.server.Handler
}

// ListenAddr returns the bound address once Start is listening.
func (e *PrometheusExporter) ListenAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.String()
}

// Start begins serving HTTP requests and blocks until ctx is done.
func (e *PrometheusExporter) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.addr, err)
	}

	e.mu.Lock()
	e.listener = ln.Addr()
	e.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting prometheus exporter", "addr", ln.Addr().String(), "path", e.path)
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return e.Stop()
	}
}

// Stop gracefully stops the exporter.
func (e *PrometheusExporter) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutting down prometheus exporter")
	return e.server.Shutdown(ctx)
}
