package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndUnregister(t *testing.T) {
	registry := NewRegistry()

	h1 := registry.Register(&fakeConn{}, ConnInfo{UserID: 1})
	h2 := registry.Register(&fakeConn{}, ConnInfo{UserID: 2})
	require.NotEqual(t, h1, h2)
	assert.Equal(t, 2, registry.Len())

	registry.Unregister(h1)
	assert.Equal(t, 1, registry.Len())

	_, _, ok := registry.Get(h1)
	assert.False(t, ok)
	_, info, ok := registry.Get(h2)
	require.True(t, ok)
	assert.Equal(t, 2, info.UserID)
}

func TestRegistryUnregisterUnknownIsNoop(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeConn{}, ConnInfo{})

	registry.Unregister(Handle("missing"))
	registry.Unregister(Handle("missing"))
	assert.Equal(t, 1, registry.Len())
}

func TestRegistryForEachAllowsUnregister(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeConn{}, ConnInfo{})
	registry.Register(&fakeConn{}, ConnInfo{})
	registry.Register(&fakeConn{}, ConnInfo{})

	visited := 0
	registry.ForEach(func(h Handle, conn Conn, info ConnInfo) {
		visited++
		registry.Unregister(h)
	})

	assert.Equal(t, 3, visited)
	assert.Equal(t, 0, registry.Len())
}
