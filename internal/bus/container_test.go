package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestContainer starts a NATS server container and returns a Connector
// for it. The test is skipped when no container runtime is available.
func newTestContainer(t *testing.T) Connector {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	natsC, err := testcontainers.Run(
		t.Context(), "nats:latest",
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	endpoint, err := natsC.PortEndpoint(t.Context(), "4222/tcp", "nats")
	require.NoError(t, err)
	t.Logf("nats endpoint: %s", endpoint)
	return ConnectURL(endpoint, 0)
}
