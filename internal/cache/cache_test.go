package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key("https://api.example.com", "fusion energy", "10")
	assert.True(t, strings.HasPrefix(k, "assay:v1:"))
	assert.Equal(t, k, Key("https://api.example.com", "fusion energy", "10"))
	assert.NotEqual(t, k, Key("https://api.example.com", "fusion energy", "5"))
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)

	require.NoError(t, c.Set("k", []byte("v"), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete("k"))
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewDiskCache(dir, time.Hour)
	c.now = func() time.Time { return now }

	key := Key("q")
	require.NoError(t, c.Set(key, []byte(`{"results":[]}`), 0))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"results":[]}`, string(got))

	path := c.path(key)
	assert.FileExists(t, path)
	assert.Equal(t, dir, filepath.Dir(filepath.Dir(path)), "entries are sharded one level deep")

	now = now.Add(2 * time.Hour)
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

func TestDiskCache_CorruptEntry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	key := Key("corrupt")
	require.NoError(t, os.MkdirAll(filepath.Dir(c.path(key)), 0o755))
	require.NoError(t, os.WriteFile(c.path(key), []byte("not json"), 0o644))

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.NoError(t, c.Delete(key), "deleting a missing entry is not an error")
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	disk := NewDiskCache(t.TempDir(), time.Hour)
	require.NoError(t, disk.Set("k", []byte("from disk"), 0))

	c := NewLayered(mem, disk)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from disk", string(got))

	fromMem, ok := mem.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from disk", string(fromMem))

	require.NoError(t, c.Clear())
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestNewLayeredCache_MemoryOnly(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", 0)
	require.NoError(t, c.Set("k", []byte("v"), 0))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))
	assert.Len(t, c.layers(), 1)
}
