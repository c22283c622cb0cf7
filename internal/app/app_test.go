package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/neox5/bbexporter/internal/bus"
	"github.com/neox5/bbexporter/internal/config"
	"github.com/neox5/bbexporter/internal/event"
	"github.com/neox5/bbexporter/internal/metric"
	"github.com/neox5/bbexporter/internal/subscription"
	"github.com/neox5/bbexporter/internal/translate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	iface := "127.0.0.1"
	require.NoError(t, cfg.Apply(config.Overrides{Interface: &iface}))
	// validation turns port 0 into the default, so pick a free port afterwards
	cfg.Export.Prometheus.Port = 0
	cfg.Settings.InternalMetrics.Enabled = true
	return cfg
}

func fetcher() translate.BuildFetcher {
	return translate.BuildFetcherFunc(func(context.Context, int64) (translate.BuildInfo, error) {
		return translate.BuildInfo{BuilderID: 3, WorkerID: 7}, nil
	})
}

func buildFinished() event.Envelope {
	return event.Envelope{
		Key: event.RoutingKey{Category: event.CategoryBuilds, ID: "12", Action: "finished"},
		Payload: event.Payload{
			"builderid":   3,
			"workerid":    7,
			"complete":    true,
			"started_at":  "2024-05-01T10:00:00Z",
			"complete_at": "2024-05-01T10:01:30Z",
			"results":     0,
		},
	}
}

func scrape(t *testing.T, addr string) string {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestApp_EndToEnd(t *testing.T) {
	mem := bus.NewMemory()
	defer mem.Close()

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a, err := New(testConfig(t), WithBus(mem), WithFetcher(fetcher()), WithLogger(log))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Manager.State() == subscription.Registered && a.PrometheusExporter.ListenAddr() != ""
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, mem.Publish(ctx, buildFinished()))

	body := scrape(t, a.PrometheusExporter.ListenAddr())
	assert.Contains(t, body, `buildbot_builds_duration_seconds{builder_id="3",worker_id="7"} 90`)
	assert.Contains(t, body, `buildbot_builds_success{builder_id="3",worker_id="7"} 1`)
	assert.Contains(t, body, `buildbot_exporter_events_total{category="builds"} 1`)
	assert.Contains(t, body, "buildbot_exporter_subscriptions 6")

	// reconfiguration keeps one subscription per category and the counts
	require.NoError(t, a.Reconfigure(ctx))
	assert.Equal(t, 1, mem.SubscriberCount(event.CategoryPattern(event.CategoryBuilds)))
	require.NoError(t, mem.Publish(ctx, buildFinished()))

	v, err := a.Metrics.Value(metric.BuildsSuccess, "3", "7")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, subscription.Unregistered, a.Manager.State())
	assert.Contains(t, logs.String(), "final metrics snapshot")
}

func TestApp_ExporterFailureStopsRun(t *testing.T) {
	mem := bus.NewMemory()
	defer mem.Close()

	cfg := testConfig(t)
	cfg.Export.Prometheus.Interface = "192.0.2.1"

	var logs bytes.Buffer
	a, err := New(cfg, WithBus(mem), WithFetcher(fetcher()),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)

	err = a.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus exporter")
	assert.Equal(t, subscription.Unregistered, a.Manager.State())
}

func TestNew_BusUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bus.NATS.URL = "nats://127.0.0.1:1"
	cfg.Bus.NATS.MaxReconnects = 0

	var logs bytes.Buffer
	_, err := New(cfg, WithFetcher(fetcher()), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect event bus")
}
