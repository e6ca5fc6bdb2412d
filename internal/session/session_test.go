package session

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
	return NewManager(logger, quartz.NewMock(t))
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t)

	id := m.Create("ROOM01", "alice")
	require.NotEmpty(t, id)
	require.True(t, m.Exists(id))

	s, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "ROOM01", s.RoomID)
	assert.Equal(t, "alice", s.Username)
	assert.Empty(t, s.ConnID)

	assert.Equal(t, "alice", m.Username(id))
	assert.Empty(t, m.Username("nope"))

	_, err = m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBindConnection(t *testing.T) {
	t.Run("binds and resolves both directions", func(t *testing.T) {
		m := newTestManager(t)
		id := m.Create("ROOM01", "alice")

		require.NoError(t, m.BindConnection(id, "conn-1"))

		connID, ok := m.ConnectionID(id)
		require.True(t, ok)
		assert.Equal(t, "conn-1", connID)

		roomID, sessionID, ok := m.ByConnection("conn-1")
		require.True(t, ok)
		assert.Equal(t, "ROOM01", roomID)
		assert.Equal(t, id, sessionID)
	})

	t.Run("rebind invalidates the old connection", func(t *testing.T) {
		m := newTestManager(t)
		id := m.Create("ROOM01", "alice")

		require.NoError(t, m.BindConnection(id, "conn-1"))
		require.NoError(t, m.BindConnection(id, "conn-2"))

		_, _, ok := m.ByConnection("conn-1")
		assert.False(t, ok, "stale connection must not resolve")

		connID, ok := m.ConnectionID(id)
		require.True(t, ok)
		assert.Equal(t, "conn-2", connID)
	})

	t.Run("empty conn id marks disconnected", func(t *testing.T) {
		m := newTestManager(t)
		id := m.Create("ROOM01", "alice")

		require.NoError(t, m.BindConnection(id, "conn-1"))
		require.NoError(t, m.BindConnection(id, ""))

		_, ok := m.ConnectionID(id)
		assert.False(t, ok)
		_, _, ok = m.ByConnection("conn-1")
		assert.False(t, ok)
	})

	t.Run("unknown session rejected", func(t *testing.T) {
		m := newTestManager(t)
		assert.ErrorIs(t, m.BindConnection("nope", "conn-1"), ErrNotFound)
	})
}

func TestDelete(t *testing.T) {
	m := newTestManager(t)
	id := m.Create("ROOM01", "alice")
	require.NoError(t, m.BindConnection(id, "conn-1"))

	m.Delete(id)

	assert.False(t, m.Exists(id))
	_, _, ok := m.ByConnection("conn-1")
	assert.False(t, ok)

	// Deleting twice is harmless
	m.Delete(id)
}

func TestCreateTimestamps(t *testing.T) {
	m := newTestManager(t)

	first := m.Create("ROOM01", "alice")
	second := m.Create("ROOM01", "bob")

	a, err := m.Get(first)
	require.NoError(t, err)
	b, err := m.Get(second)
	require.NoError(t, err)
	assert.False(t, b.JoinedAt.Before(a.JoinedAt))
}
