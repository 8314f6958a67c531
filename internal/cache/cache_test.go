package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	store, err := New(Config{
		Dir:           t.TempDir(),
		MemoryEntries: 64,
		Retention:     retention,
	}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestPutThenGetWithinTTL(t *testing.T) {
	store := newTestStore(t, time.Hour)
	payload := []byte(`{"value":1337}`)

	store.Put("k1", payload, time.Hour)

	got, ok := store.Get("k1", time.Hour)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	stats := store.Stats()
	assert.Equal(t, uint64(1), stats.MemoryHits)
	assert.Equal(t, uint64(1), stats.Writes)
}

func TestGetAfterTTLElapsedMisses(t *testing.T) {
	store := newTestStore(t, time.Hour)
	store.Put("short", []byte(`"v"`), 50*time.Millisecond)

	time.Sleep(80 * time.Millisecond)

	_, ok := store.Get("short", 50*time.Millisecond)
	assert.False(t, ok, "expired entry must never be returned")
}

func TestWriteClassNeverCached(t *testing.T) {
	store := newTestStore(t, time.Hour)

	// TTL 0 marks a submit-class method: Put is a no-op.
	store.Put("tx", []byte(`"signature"`), 0)

	_, ok := store.Get("tx", 0)
	assert.False(t, ok)
	_, ok = store.Get("tx", time.Hour)
	assert.False(t, ok, "no entry may exist after a zero-TTL put")
	assert.Equal(t, uint64(0), store.Stats().Writes)
}

func TestDiskHitPromotesToMemory(t *testing.T) {
	dir := t.TempDir()
	first, err := New(Config{Dir: dir, MemoryEntries: 64}, zap.NewNop())
	require.NoError(t, err)
	first.Put("persisted", []byte(`{"slot":42}`), time.Hour)

	// A fresh store over the same directory simulates a restarted process:
	// its memory tier is empty, so the first read must come from disk.
	second, err := New(Config{Dir: dir, MemoryEntries: 64}, zap.NewNop())
	require.NoError(t, err)

	got, ok := second.Get("persisted", time.Hour)
	require.True(t, ok)
	assert.JSONEq(t, `{"slot":42}`, string(got))
	assert.Equal(t, uint64(1), second.Stats().DiskHits)

	_, ok = second.Get("persisted", time.Hour)
	require.True(t, ok)
	assert.Equal(t, uint64(1), second.Stats().MemoryHits, "second read should hit the promoted memory entry")
}

func TestDiskEntryExpiresByModTime(t *testing.T) {
	dir := t.TempDir()
	first, err := New(Config{Dir: dir, MemoryEntries: 64}, zap.NewNop())
	require.NoError(t, err)
	first.Put("aged", []byte(`"old"`), time.Hour)

	// Age the file well past the TTL; mtime is the authoritative timestamp.
	path := filepath.Join(dir, "aged.json")
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	second, err := New(Config{Dir: dir, MemoryEntries: 64}, zap.NewNop())
	require.NoError(t, err)

	_, ok := second.Get("aged", time.Hour)
	assert.False(t, ok)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "stale file should be removed on read")
}

func TestPutWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{Dir: dir, MemoryEntries: 64}, zap.NewNop())
	require.NoError(t, err)

	payload := []byte(`{"lamports":999}`)
	store.Put("entry", payload, time.Hour)

	onDisk, err := os.ReadFile(filepath.Join(dir, "entry.json"))
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, f := range files {
		assert.NotContains(t, f.Name(), ".tmp", "no temp files may remain after a put")
	}
}

func TestEvictExpiredHonorsRetentionCeiling(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{Dir: dir, MemoryEntries: 64, Retention: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	store.Put("fresh", []byte(`"a"`), time.Hour)
	store.Put("aged", []byte(`"b"`), time.Hour)

	agedPath := filepath.Join(dir, "aged.json")
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(agedPath, old, old))

	removed := store.EvictExpired()
	assert.Equal(t, 1, removed)

	_, err = os.Stat(agedPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "fresh.json"))
	assert.NoError(t, err, "entries within retention must survive the sweep")
	assert.Equal(t, uint64(1), store.Stats().Evictions)
}

func TestRefreshOverwritesEntry(t *testing.T) {
	store := newTestStore(t, time.Hour)

	store.Put("k", []byte(`"v1"`), time.Hour)
	store.Put("k", []byte(`"v2"`), time.Hour)

	got, ok := store.Get("k", time.Hour)
	require.True(t, ok)
	assert.Equal(t, []byte(`"v2"`), got)
}
