package metric

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New("")
	require.NoError(t, err)
	return r
}

func TestNew_RegistersCatalog(t *testing.T) {
	r := newRegistry(t)

	assert.Equal(t, DefaultNamespace, r.Namespace())
	assert.Len(t, r.Definitions(), len(Catalog()))

	for _, def := range Catalog() {
		got, ok := r.Definition(def.Name)
		require.True(t, ok, def.Name)
		assert.Equal(t, def.Labels, got.Labels)
	}

	assert.Equal(t, "buildbot_builds_duration_seconds", r.FullName(BuildsDuration))
}

func TestNew_CustomNamespace(t *testing.T) {
	r, err := New("ci")
	require.NoError(t, err)
	assert.Equal(t, "ci_workers_running", r.FullName(WorkersRunning))
}

func TestRegistry_Mutations(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.Inc(BuildsSuccess, "1", "2"))
	require.NoError(t, r.Inc(BuildsSuccess, "1", "2"))
	require.NoError(t, r.Set(BuildsDuration, 12.5, "1", "2"))
	require.NoError(t, r.Inc(BuildersRunningTotal))
	require.NoError(t, r.Inc(BuildersRunning, "3", "linux"))
	require.NoError(t, r.Dec(BuildersRunning, "3", "linux"))

	v, err := r.Value(BuildsSuccess, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = r.Value(BuildsDuration, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	v, err = r.Value(BuildersRunningTotal)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = r.Value(BuildersRunning, "3", "linux")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	v, err = r.Value(BuildsFailure, "1", "2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestRegistry_RejectsLabelMismatch(t *testing.T) {
	r := newRegistry(t)

	assert.Error(t, r.Inc(BuildsSuccess, "1"))
	assert.Error(t, r.Inc(BuildsSuccess, "1", "2", "3"))
	assert.Error(t, r.Set(StepsDuration, 1, "1", "compile"))
	assert.Error(t, r.Inc(WorkersRunningTotal, "extra"))

	_, err := r.Value(BuildsSuccess, "1")
	assert.Error(t, err)
}

func TestRegistry_RejectsUnknownAndKindMismatch(t *testing.T) {
	r := newRegistry(t)

	assert.ErrorIs(t, r.Inc("nope"), ErrUnknownMetric)
	assert.ErrorIs(t, r.Dec(BuildsSuccess, "1", "2"), ErrKindMismatch)
	assert.ErrorIs(t, r.Set(BuildsError, 1, "1", "2"), ErrKindMismatch)

	_, err := r.Value("nope")
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestRegistry_ConcurrentIncrements(t *testing.T) {
	r := newRegistry(t)

	const events, pairs = 1000, 50

	var wg sync.WaitGroup
	for i := range events {
		wg.Go(func() {
			p := strconv.Itoa(i % pairs)
			assert.NoError(t, r.Inc(BuildsSuccess, p, p))
		})
	}
	wg.Wait()

	total := 0.0
	for p := range pairs {
		v, err := r.Value(BuildsSuccess, strconv.Itoa(p), strconv.Itoa(p))
		require.NoError(t, err)
		assert.Equal(t, float64(events/pairs), v)
		total += v
	}
	assert.Equal(t, float64(events), total)
}

func TestRegistry_Register(t *testing.T) {
	r := newRegistry(t)

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "self_events_total", Help: "events"})
	require.NoError(t, r.Register(c))
	c.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(c))
	assert.Error(t, r.Register(c), "duplicate registration")
}

func TestSnapshot_Empty(t *testing.T) {
	r := newRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, r.Snapshot(&buf))
	out := buf.String()

	for _, def := range Catalog() {
		full := r.FullName(def.Name)
		assert.Contains(t, out, "# HELP "+full+" "+def.Help+"\n")
		assert.Contains(t, out, "# TYPE "+full+" "+string(def.Kind)+"\n")
	}

	// Label-less gauges always carry a sample.
	assert.Contains(t, out, "buildbot_builders_running_total 0\n")
	assert.Contains(t, out, "buildbot_workers_running_total 0\n")

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.HasPrefix(line, "#") {
			assert.Regexp(t, `^# (HELP|TYPE) buildbot_[a-z_]+ .+$`, line)
			continue
		}
		assert.Regexp(t, `^buildbot_[a-z_]+(\{.*\})? \S+$`, line)
	}
}

func TestSnapshot_WithInstances(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Set(BuildsDuration, 12.5, "4", "7"))
	require.NoError(t, r.Inc(BuildsSuccess, "4", "7"))

	var buf bytes.Buffer
	require.NoError(t, r.Snapshot(&buf))
	out := buf.String()

	assert.Contains(t, out, `buildbot_builds_duration_seconds{builder_id="4",worker_id="7"} 12.5`)
	assert.Contains(t, out, `buildbot_builds_success{builder_id="4",worker_id="7"} 1`)
	assert.Equal(t, 1, strings.Count(out, "# TYPE buildbot_builds_success counter"))
}
