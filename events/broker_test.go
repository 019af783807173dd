package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrun/events"
)

func TestBroadcastReachesRegisteredClients(t *testing.T) {
	broker := events.GetBroker()

	client := make(chan string, 10)
	broker.Register(client)
	defer broker.Unregister(client)

	broker.Broadcast(events.RunStarted, map[string]any{"run_id": 7})

	select {
	case message := <-client:
		assert.Contains(t, message, "event: run_started\n")
		assert.Contains(t, message, `"run_id":7`)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnregisterClosesClient(t *testing.T) {
	broker := events.GetBroker()

	client := make(chan string, 10)
	broker.Register(client)
	broker.Unregister(client)

	_, open := <-client
	assert.False(t, open)

	// Broadcasting after unregister must not panic
	broker.Broadcast(events.RunFinished, map[string]any{"run_id": 7})
}

func TestBroadcastSkipsFullClients(t *testing.T) {
	broker := events.GetBroker()

	full := make(chan string) // no buffer, nobody reading
	broker.Register(full)
	defer broker.Unregister(full)

	healthy := make(chan string, 10)
	broker.Register(healthy)
	defer broker.Unregister(healthy)

	broker.Broadcast(events.EnvFinished, map[string]any{"env": "py36-dj18"})

	require.Eventually(t, func() bool {
		select {
		case <-healthy:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
