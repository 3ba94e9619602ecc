package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration, maxEntries int, clock *fakeClock) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.json")
	m, err := NewManager(ttl, maxEntries, path, WithClock(clock.Now))
	require.NoError(t, err)
	return m
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time  { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGetSet_RoundTripWithinTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestManager(t, time.Minute, 10, clock)

	m.Set("k1", "v1")
	v, ok := m.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestGet_ExpiredEntryDeletedOnRead(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestManager(t, time.Second, 10, clock)

	m.Set("k1", "v1")
	clock.Advance(2 * time.Second)

	_, ok := m.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Size())
}

func TestSet_PreservesCreatedAtAcrossOverwrite(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestManager(t, time.Hour, 10, clock)

	m.Set("k1", "v1")
	firstCreated := m.entries["k1"].CreatedAt

	clock.Advance(time.Minute)
	m.Set("k1", "v2")

	assert.Equal(t, firstCreated, m.entries["k1"].CreatedAt)
	assert.Equal(t, "v2", m.entries["k1"].Value)
}

func TestSet_EvictsByLRUWhenOverCapacity(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestManager(t, time.Hour, 2, clock)

	m.Set("k1", "v1")
	clock.Advance(time.Second)
	m.Set("k2", "v2")
	clock.Advance(time.Second)

	// Access k1 so it is the most-recently-used, then insert k3 which
	// should evict k2 (the least recently accessed).
	_, _ = m.Get("k1")
	clock.Advance(time.Second)
	m.Set("k3", "v3")

	assert.LessOrEqual(t, m.Size(), 2)
	_, hasK1 := m.Get("k1")
	_, hasK2 := m.Get("k2")
	_, hasK3 := m.Get("k3")
	assert.True(t, hasK1)
	assert.False(t, hasK2)
	assert.True(t, hasK3)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	path := filepath.Join(t.TempDir(), "sub", "cache.json")
	m, err := NewManager(time.Hour, 10, path, WithClock(clock.Now))
	require.NoError(t, err)

	m.Set("k1", "v1")
	require.NoError(t, m.Save())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	m2, err := NewManager(time.Hour, 10, path, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, m2.Load())

	v, ok := m2.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestLoad_AbsentFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	m, err := NewManager(time.Hour, 10, path)
	require.NoError(t, err)
	assert.NoError(t, m.Load())
	assert.Equal(t, 0, m.Size())
}

func TestLoad_MalformedOrWrongVersionYieldsEmptyCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	m, err := NewManager(time.Hour, 10, path)
	require.NoError(t, err)
	require.NoError(t, m.Load())
	assert.Equal(t, 0, m.Size())

	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"entries":[]}`), 0o600))
	m2, err := NewManager(time.Hour, 10, path)
	require.NoError(t, err)
	require.NoError(t, m2.Load())
	assert.Equal(t, 0, m2.Size())
}

func TestNewManager_RejectsInvalidParameters(t *testing.T) {
	_, err := NewManager(0, 10, "x")
	assert.Error(t, err)

	_, err = NewManager(time.Second, 0, "x")
	assert.Error(t, err)
}
