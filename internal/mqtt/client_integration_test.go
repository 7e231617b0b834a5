//go:build integration

package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMosquitto runs an anonymous mosquitto broker and returns its tcp:// URL
func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "1883/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestClientAgainstBroker(t *testing.T) {
	broker := startMosquitto(t)

	sub, err := NewClient(Config{Broker: broker, ClientID: "sub"}, quietLogger())
	require.NoError(t, err)
	pub, err := NewClient(Config{Broker: broker, ClientID: "pub"}, quietLogger())
	require.NoError(t, err)

	received := make(chan string, 1)
	connected := make(chan struct{}, 1)
	sub.SetOnConnect(func() { connected <- struct{}{} })
	require.NoError(t, sub.Subscribe(t.Context(), "tabla/devices/dev-1", func(_ string, payload []byte) {
		received <- string(payload)
	}))

	require.NoError(t, sub.Connect(t.Context()))
	defer sub.Disconnect()
	select {
	case <-connected:
	case <-time.After(10 * time.Second):
		t.Fatal("on-connect callback not run")
	}

	require.NoError(t, pub.Connect(t.Context()))
	defer pub.Disconnect()
	require.NoError(t, pub.Publish(t.Context(), "tabla/devices/dev-1", []byte(`{"notification":{"title":"hi"}}`)))

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"notification":{"title":"hi"}}`, msg)
	case <-time.After(10 * time.Second):
		t.Fatal("message not received")
	}
}
