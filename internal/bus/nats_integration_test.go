package bus

import (
	"context"
	"testing"
	"time"

	"github.com/neox5/bbexporter/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATS_DeliversHostEvents(t *testing.T) {
	connect := newTestContainer(t)

	b, err := NewNATS(NATSConfig{Connect: connect})
	require.NoError(t, err)
	defer b.Close()

	received := make(chan event.Envelope, 4)
	sub, err := b.Subscribe(t.Context(), event.CategoryPattern(event.CategoryBuilds),
		func(_ context.Context, env event.Envelope) error {
			received <- env
			return nil
		})
	require.NoError(t, err)

	pub, closePub, err := connect()
	require.NoError(t, err)
	defer closePub()

	require.NoError(t, pub.Publish("buildbot.builds.12.finished", []byte(`not json`)))
	require.NoError(t, pub.Publish("buildbot.steps.3.finished", []byte(`{"buildid": 12}`)))
	require.NoError(t, pub.Publish("buildbot.builds.12.finished",
		[]byte(`{"builderid": 3, "workerid": 7, "complete": true, "results": 0}`)))
	require.NoError(t, pub.Flush())

	select {
	case env := <-received:
		assert.Equal(t, event.RoutingKey{Category: "builds", ID: "12", Action: "finished"}, env.Key)
		id, err := env.Payload.Int("builderid")
		require.NoError(t, err)
		assert.Equal(t, int64(3), id)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, pub.Publish("buildbot.builds.13.finished", []byte(`{}`)))
	require.NoError(t, pub.Flush())

	select {
	case env := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %s", env.Key)
	case <-time.After(200 * time.Millisecond):
	}
}
