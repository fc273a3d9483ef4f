package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/event"
)

func TestBroadcastReachesAllConnections(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	conns := []*fakeConn{{}, {}, {}}
	for i, conn := range conns {
		registry.Register(conn, ConnInfo{UserID: i + 1})
	}

	broadcaster.Broadcast(event.New(event.TypingPayload{ChannelID: 1, UserID: 1}))

	for _, conn := range conns {
		events := conn.received()
		require.Len(t, events, 1)
		assert.Equal(t, event.TypeTyping, events[0].Type)
	}
}

func TestBroadcastEvictsFailingConnections(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	healthy := []*fakeConn{{}, {}, {}}
	broken := []*fakeConn{{failWrites: true}, {failWrites: true}}
	for _, conn := range healthy {
		registry.Register(conn, ConnInfo{})
	}
	for _, conn := range broken {
		registry.Register(conn, ConnInfo{})
	}
	require.Equal(t, 5, registry.Len())

	broadcaster.Broadcast(event.New(event.TypingPayload{ChannelID: 1, UserID: 1}))

	assert.Equal(t, 3, registry.Len())
	for _, conn := range broken {
		assert.True(t, conn.closed)
	}
	for _, conn := range healthy {
		assert.Len(t, conn.received(), 1)
	}

	// The evicted connections are gone for good: the next broadcast only
	// reaches the survivors.
	broadcaster.Broadcast(event.New(event.TypingPayload{ChannelID: 2, UserID: 1}))
	assert.Equal(t, 3, registry.Len())
	for _, conn := range healthy {
		assert.Len(t, conn.received(), 2)
	}
}

func TestSendToSingleConnection(t *testing.T) {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	origin := &fakeConn{}
	other := &fakeConn{}
	registry.Register(origin, ConnInfo{})
	registry.Register(other, ConnInfo{})

	require.NoError(t, broadcaster.SendTo(origin, event.New(event.ErrorPayload{Message: "nope"})))

	require.Len(t, origin.received(), 1)
	assert.Empty(t, other.received())
}
