package subscription

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"testing"
	"time"

	"github.com/neox5/bbexporter/internal/bus"
	"github.com/neox5/bbexporter/internal/event"
	"github.com/neox5/bbexporter/internal/metric"
	"github.com/neox5/bbexporter/internal/translate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categories = []string{
	event.CategoryBuilds,
	event.CategoryBuilders,
	event.CategoryBuildsets,
	event.CategoryBuildRequests,
	event.CategorySteps,
	event.CategoryWorkers,
}

func translatorBindings(t *testing.T, reg *metric.Registry) []Binding {
	t.Helper()

	fetcher := translate.BuildFetcherFunc(func(context.Context, int64) (translate.BuildInfo, error) {
		return translate.BuildInfo{BuilderID: 1, WorkerID: 2}, nil
	})

	var bindings []Binding
	for _, s := range translate.Schemas(fetcher) {
		h, err := translate.New(reg, s)
		require.NoError(t, err)
		bindings = append(bindings, Binding{Category: s.Category, Handler: h})
	}
	return bindings
}

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func builderStarted() event.Envelope {
	return event.Envelope{
		Key:     event.RoutingKey{Category: event.CategoryBuilders, ID: "4", Action: "started"},
		Payload: event.Payload{"builderid": 4, "name": "docs"},
	}
}

func TestManager_RegisterOnePerCategory(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	b := bus.NewMemory()
	defer b.Close()

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)))
	assert.Equal(t, Unregistered, m.State())

	require.NoError(t, m.Register(t.Context()))
	assert.Equal(t, Registered, m.State())
	assert.Equal(t, len(categories), m.Active())

	for _, c := range categories {
		assert.Equal(t, 1, b.SubscriberCount(event.CategoryPattern(c)), c)
	}
}

func TestManager_RegisterIsIdempotent(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	b := bus.NewMemory()
	defer b.Close()

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)))

	require.NoError(t, m.Register(t.Context()))
	require.NoError(t, m.Register(t.Context()))

	for _, c := range categories {
		assert.Equal(t, 1, b.SubscriberCount(event.CategoryPattern(c)), c)
	}

	require.NoError(t, b.Publish(t.Context(), builderStarted()))

	v, err := reg.Value(metric.BuildersRunningTotal)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v, "one event must mutate metrics exactly once")
	assert.Equal(t, uint64(1), m.Handled())
}

func TestManager_Unregister(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	b := bus.NewMemory()
	defer b.Close()

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)))

	require.NoError(t, m.Unregister(), "unregister before register is a no-op")

	require.NoError(t, m.Register(t.Context()))
	require.NoError(t, m.Unregister())
	require.NoError(t, m.Unregister())
	assert.Equal(t, Unregistered, m.State())

	for _, c := range categories {
		assert.Zero(t, b.SubscriberCount(event.CategoryPattern(c)), c)
	}

	require.NoError(t, b.Publish(t.Context(), builderStarted()))
	v, err := reg.Value(metric.BuildersRunningTotal)
	require.NoError(t, err)
	assert.Zero(t, v)

	// Register again after a full cycle.
	require.NoError(t, m.Register(t.Context()))
	assert.Equal(t, len(categories), m.Active())
}

type flakyBus struct {
	*bus.Memory
	failAfter int
	calls     int
}

func (f *flakyBus) Subscribe(ctx context.Context, p event.Pattern, h event.Handler) (bus.Subscription, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("bus unavailable")
	}
	return f.Memory.Subscribe(ctx, p, h)
}

func TestManager_RegisterFailureRollsBack(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	mem := bus.NewMemory()
	defer mem.Close()
	b := &flakyBus{Memory: mem, failAfter: 3}

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)))

	err = m.Register(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus unavailable")
	assert.Equal(t, Unregistered, m.State())

	for _, c := range categories {
		assert.Zero(t, mem.SubscriberCount(event.CategoryPattern(c)), c)
	}
}

func TestManager_ViolationsAreReportedAndDeliveryContinues(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	stats := NewStats(reg.Namespace())
	require.NoError(t, reg.Register(stats.Collectors()...))

	b := bus.NewMemory()
	defer b.Close()

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)), WithStats(stats))
	require.NoError(t, m.Register(t.Context()))

	bad := event.Envelope{
		Key:     event.RoutingKey{Category: event.CategoryBuilds, ID: "9", Action: "finished"},
		Payload: event.Payload{"builderid": 1, "workerid": 2, "complete": true, "results": 0},
	}
	err = b.Publish(t.Context(), bad)
	require.Error(t, err)
	assert.True(t, translate.IsViolation(err))

	require.NoError(t, b.Publish(t.Context(), builderStarted()))

	assert.Equal(t, uint64(2), m.Handled())
	assert.Equal(t, uint64(1), m.Violations())
	assert.Contains(t, logs.String(), "payload contract violation")
	assert.Contains(t, logs.String(), "builds.9.finished")

	assert.Equal(t, 1.0, testutil.ToFloat64(stats.events.WithLabelValues(event.CategoryBuilds)))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.violations.WithLabelValues(event.CategoryBuilds)))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.events.WithLabelValues(event.CategoryBuilders)))

	v, err := reg.Value(metric.BuildsSuccess, "1", "2")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestManager_RecoversPanics(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()

	var logs bytes.Buffer
	m := New(b, []Binding{{
		Category: "builds",
		Handler: func(context.Context, event.Envelope) error {
			panic("nil payload")
		},
	}}, WithLogger(quietLogger(&logs)))
	require.NoError(t, m.Register(t.Context()))

	err := b.Publish(t.Context(), event.Envelope{Key: event.RoutingKey{Category: "builds", ID: "1", Action: "new"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic handling builds.1.new")
	assert.Contains(t, logs.String(), "failed to translate event")
}

func TestManager_UnregisterWaitsForInFlight(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var logs bytes.Buffer
	m := New(b, []Binding{{
		Category: "steps",
		Handler: func(context.Context, event.Envelope) error {
			close(started)
			<-release
			return nil
		},
	}}, WithLogger(quietLogger(&logs)))
	require.NoError(t, m.Register(t.Context()))

	go func() {
		_ = b.Publish(context.Background(), event.Envelope{Key: event.RoutingKey{Category: "steps", ID: "1", Action: "finished"}})
	}()
	<-started

	done := make(chan error, 1)
	go func() { done <- m.Unregister() }()

	select {
	case <-done:
		t.Fatal("unregister returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("unregister did not return")
	}
	assert.Equal(t, uint64(1), m.Handled())
}

func TestManager_ReregisterDoesNotLeakGoroutines(t *testing.T) {
	reg, err := metric.New("")
	require.NoError(t, err)
	b := bus.NewMemory()
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var logs bytes.Buffer
	m := New(b, translatorBindings(t, reg), WithLogger(quietLogger(&logs)))
	require.NoError(t, m.Register(ctx))
	before := runtime.NumGoroutine()

	for range 100 {
		require.NoError(t, m.Register(ctx))
	}

	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before+2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, len(categories), m.Active())
}

func TestManager_ActiveDoesNotWaitForUnregister(t *testing.T) {
	b := bus.NewMemory()
	defer b.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	var logs bytes.Buffer
	m := New(b, []Binding{{
		Category: "steps",
		Handler: func(context.Context, event.Envelope) error {
			close(started)
			<-release
			return nil
		},
	}}, WithLogger(quietLogger(&logs)))
	require.NoError(t, m.Register(t.Context()))

	go func() {
		_ = b.Publish(context.Background(), event.Envelope{Key: event.RoutingKey{Category: "steps", ID: "1", Action: "finished"}})
	}()
	<-started
	go func() { _ = m.Unregister() }()

	// Unregister now holds the lock until the handler returns.
	assert.Eventually(t, func() bool {
		return m.Active() == 0 && m.State() == Unregistered
	}, time.Second, 5*time.Millisecond, "Active blocked behind a pending unregister")
}
