package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchstage/internal/augment"
	"matchstage/internal/services"
)

// Compile-time checks that the hub satisfies the pipeline's event surfaces.
var (
	_ augment.Notifier = (*Hub)(nil)
	_ services.Events  = (*Hub)(nil)
)

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case payload := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return Message{}
	}
}

func startedHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	h.Start()
	t.Cleanup(h.Stop)
	return h
}

func registerClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{hub: h, send: make(chan []byte, 8)}
	h.register <- c

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
	return c
}

func TestBroadcastReachesClients(t *testing.T) {
	h := startedHub(t)
	c := registerClient(t, h)

	h.Broadcast(TypeConnection, map[string]string{"hello": "world"})

	msg := receive(t, c)
	assert.Equal(t, TypeConnection, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestAugmentProgressEvent(t *testing.T) {
	h := startedHub(t)
	c := registerClient(t, h)

	h.AugmentProgress("batch-1", 2, 5, 1)

	msg := receive(t, c)
	assert.Equal(t, TypeBatchProgress, msg.Type)
	data := msg.Data.(map[string]any)
	assert.Equal(t, "batch-1", data["batch_id"])
	assert.Equal(t, float64(2), data["done"])
	assert.Equal(t, float64(5), data["total"])
	assert.Equal(t, float64(1), data["failed"])
}

func TestBatchLifecycleEvents(t *testing.T) {
	h := startedHub(t)
	c := registerClient(t, h)

	h.BatchStaged("batch-1", "E0", 4)
	msg := receive(t, c)
	assert.Equal(t, TypeBatchStaged, msg.Type)

	h.BatchCommitted("batch-1", "E0", 4)
	msg = receive(t, c)
	assert.Equal(t, TypeBatchCommitted, msg.Type)
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h := startedHub(t)
	c := registerClient(t, h)

	h.unregister <- c
	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		time.Second, 5*time.Millisecond)

	_, open := <-c.send
	assert.False(t, open)
}
