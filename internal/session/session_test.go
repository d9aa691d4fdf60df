package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	state, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, state)

	started := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.Save(&State{Outcome: "completed", Resource: "/drives/d/root", StartedAt: started}))

	state, err = m.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "completed", state.Outcome)
	assert.True(t, started.Equal(state.StartedAt))
}

func TestTryLockIsExclusive(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	unlock, err := m.TryLock()
	require.NoError(t, err)

	_, err = m.TryLock()
	assert.ErrorIs(t, err, ErrLocked)

	unlock()
	unlock2, err := m.TryLock()
	require.NoError(t, err)
	unlock2()
}

func TestNewManagerDefaultDir(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	m, err := NewManager("")
	require.NoError(t, err)
	assert.Contains(t, m.Dir(), "onedrive-gateway")
}
