package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("novelty", "n^2 >= 0")
	assert.True(t, strings.HasPrefix(a, "lemmata:v1:novelty:"))
	assert.Equal(t, a, Key("novelty", "n^2 >= 0"))
	assert.NotEqual(t, a, Key("novelty", "n^2 >= 0 "))
	assert.NotEqual(t, a, Key("other", "n^2 >= 0"))
}

func TestMemory(t *testing.T) {
	m := NewMemory(time.Minute, time.Minute)

	value := []byte("v")
	require.NoError(t, m.Set("k", value, 0))
	value[0] = 'x'

	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got, "stored value is a copy")
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Set("short", []byte("s"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, ok = m.Get("short")
	assert.False(t, ok)

	require.NoError(t, m.Delete("k"))
	_, ok = m.Get("k")
	assert.False(t, ok)
}

func TestDisk(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, time.Hour)
	key := Key("novelty", "s")

	require.NoError(t, d.Set(key, []byte(`{"novel":true}`), 0))
	got, ok := d.Get(key)
	require.True(t, ok)
	assert.Equal(t, `{"novel":true}`, string(got))

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), diskSuffix))

	require.NoError(t, d.Set(key, []byte("old"), -time.Second))
	_, ok = d.Get(key)
	assert.False(t, ok, "expired entries miss")

	assert.NoError(t, d.Delete("missing"))
}

func TestDisk_CorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, time.Hour)
	require.NoError(t, os.WriteFile(d.path("k"), []byte("{not json"), 0o644))

	_, ok := d.Get("k")
	assert.False(t, ok)
	_, err := os.Stat(d.path("k"))
	assert.True(t, os.IsNotExist(err))
}

func TestDisk_ClearKeepsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, time.Hour)
	require.NoError(t, d.Set("a", []byte("1"), 0))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644))

	require.NoError(t, d.Clear())
	_, ok := d.Get("a")
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestLayered_PromotesDiskHits(t *testing.T) {
	mem := NewMemory(time.Minute, time.Minute)
	disk := NewDisk(t.TempDir(), time.Hour)
	require.NoError(t, disk.Set("k", []byte("from disk"), 0))

	l := NewLayered(mem, disk)
	got, ok := l.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from disk", string(got))

	promoted, ok := mem.Get("k")
	require.True(t, ok)
	assert.Equal(t, "from disk", string(promoted))

	require.NoError(t, l.Delete("k"))
	_, ok = l.Get("k")
	assert.False(t, ok)
}

type verdict struct {
	Novel bool   `json:"novel"`
	URL   string `json:"url"`
}

func TestTyped(t *testing.T) {
	typed := NewTyped[verdict](NewMemory(time.Minute, time.Minute), "novelty", time.Hour)

	_, ok := typed.Get("s")
	assert.False(t, ok)

	require.NoError(t, typed.Put("s", verdict{Novel: false, URL: "https://arxiv.org/abs/1"}))
	got, ok := typed.Get("s")
	require.True(t, ok)
	assert.Equal(t, verdict{URL: "https://arxiv.org/abs/1"}, got)

	var disabled *Typed[verdict]
	_, ok = disabled.Get("s")
	assert.False(t, ok)
	assert.NoError(t, disabled.Put("s", verdict{}))

	noStore := NewTyped[verdict](nil, "novelty", time.Hour)
	assert.NoError(t, noStore.Put("s", verdict{}))
	_, ok = noStore.Get("s")
	assert.False(t, ok)
}

func TestNew(t *testing.T) {
	assert.Nil(t, New(config.CacheConfig{Enabled: false}))

	_, isMemory := New(config.CacheConfig{Enabled: true, TTLHours: 1}).(*Memory)
	assert.True(t, isMemory)

	_, isLayered := New(config.CacheConfig{Enabled: true, TTLHours: 1, Dir: t.TempDir()}).(*Layered)
	assert.True(t, isLayered)
}
