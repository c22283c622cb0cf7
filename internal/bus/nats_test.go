package bus

import (
	"log/slog"
	"testing"

	"github.com/neox5/bbexporter/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "buildbot.builds.*.*", Subject("buildbot", event.CategoryPattern("builds")))
	assert.Equal(t, "ci.workers._.connected",
		Subject("ci", event.Pattern{Category: "workers", Action: "connected"}))
}

func TestRoutingKey(t *testing.T) {
	k, err := RoutingKey("buildbot", "buildbot.steps.31.finished")
	require.NoError(t, err)
	assert.Equal(t, event.RoutingKey{Category: "steps", ID: "31", Action: "finished"}, k)

	k, err = RoutingKey("buildbot", "buildbot.workers._.connected")
	require.NoError(t, err)
	assert.Empty(t, k.ID)

	_, err = RoutingKey("buildbot", "other.steps.31.finished")
	assert.Error(t, err)

	_, err = RoutingKey("buildbot", "buildbot.steps.31")
	assert.Error(t, err)
}

func TestSubject_MatchesRoutingKey(t *testing.T) {
	p := event.CategoryPattern("buildrequests")
	k, err := RoutingKey("bb", "bb.buildrequests.4.complete")
	require.NoError(t, err)
	assert.True(t, p.Match(k))
}

func TestNewNATS_ConnectError(t *testing.T) {
	_, err := NewNATS(NATSConfig{
		Connect: ConnectURL("nats://127.0.0.1:1", 0, LogConnectionEvents(slog.Default())...),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats: connect")
}
