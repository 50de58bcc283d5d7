package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/werpoz/chatrelay/internal/model"
)

func testClient(hub *Hub, tenantID string) *Client {
	// conn stays nil: Add/Broadcast/Remove never touch the socket
	return NewClient(hub, nil, tenantID, "")
}

func recvFrame(t *testing.T, c *Client) model.RealtimeFrame {
	t.Helper()
	select {
	case raw := <-c.send:
		var f model.RealtimeFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	default:
		t.Fatal("expected a frame on the send channel")
		return model.RealtimeFrame{}
	}
}

func TestBroadcastReachesTenantClients(t *testing.T) {
	hub := NewHub()
	a := testClient(hub, "t1")
	b := testClient(hub, "t1")
	hub.Add(a)
	hub.Add(b)

	hub.Broadcast("t1", model.RealtimeFrame{Type: "message.created", SessionID: "s1", Payload: []byte(`{"x":1}`)})

	fa := recvFrame(t, a)
	fb := recvFrame(t, b)
	assert.Equal(t, "message.created", fa.Type)
	assert.Equal(t, "s1", fa.SessionID)
	assert.Equal(t, fa, fb)
}

func TestBroadcastIsolatesTenants(t *testing.T) {
	hub := NewHub()
	mine := testClient(hub, "t1")
	other := testClient(hub, "t2")
	hub.Add(mine)
	hub.Add(other)

	hub.Broadcast("t1", model.RealtimeFrame{Type: "message.created", SessionID: "s1", Payload: []byte(`{}`)})

	recvFrame(t, mine)
	select {
	case <-other.send:
		t.Fatal("frame crossed the tenant boundary")
	default:
	}
}

func TestBroadcastUnknownTenantIsNoop(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("ghost", model.RealtimeFrame{Type: "message.created", Payload: []byte(`{}`)})
	assert.Zero(t, hub.TenantCount())
}

func TestRemoveReleasesEmptyTenantEntry(t *testing.T) {
	hub := NewHub()
	a := testClient(hub, "t1")
	b := testClient(hub, "t1")
	hub.Add(a)
	hub.Add(b)
	require.Equal(t, 2, hub.ClientCount("t1"))
	require.Equal(t, 1, hub.TenantCount())

	hub.Remove(a)
	assert.Equal(t, 1, hub.ClientCount("t1"))
	assert.Equal(t, 1, hub.TenantCount())

	hub.Remove(b)
	assert.Zero(t, hub.ClientCount("t1"))
	assert.Zero(t, hub.TenantCount(), "empty tenant entries are released")
}

func TestRemoveTwiceIsSafe(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	hub.Remove(c)
	hub.Remove(c) // closing the send channel twice would panic

	_, open := <-c.send
	assert.False(t, open)
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := testClient(hub, "t1")
	hub.Add(slow)

	frame := model.RealtimeFrame{Type: "message.created", SessionID: "s1", Payload: []byte(`{}`)}

	// nobody drains the channel; fill the buffer, then one more
	for i := 0; i < cap(slow.send); i++ {
		hub.Broadcast("t1", frame)
	}
	require.Equal(t, 1, hub.ClientCount("t1"))

	hub.Broadcast("t1", frame)
	assert.Zero(t, hub.ClientCount("t1"), "client with a full buffer is dropped")
	assert.Zero(t, hub.TenantCount())
}

func TestBroadcastOrderIsStable(t *testing.T) {
	hub := NewHub()
	c := testClient(hub, "t1")
	hub.Add(c)

	for _, typ := range []string{"message.created", "message.edited", "message.deleted"} {
		hub.Broadcast("t1", model.RealtimeFrame{Type: typ, SessionID: "s1", Payload: []byte(`{}`)})
	}

	assert.Equal(t, "message.created", recvFrame(t, c).Type)
	assert.Equal(t, "message.edited", recvFrame(t, c).Type)
	assert.Equal(t, "message.deleted", recvFrame(t, c).Type)
}
