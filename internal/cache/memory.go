// internal/cache/memory.go
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// memEntry keeps the payload together with its write time. Validity is
// decided at read time against the caller's TTL, so the same entry can be
// fresh for one method policy and stale for another refresh of it.
type memEntry struct {
	payload   []byte
	writtenAt time.Time
}

// memoryTier is the fast in-process tier, bounded by an LRU so a busy
// process cannot grow it without limit. Stale entries fall out lazily on
// read or under LRU pressure.
type memoryTier struct {
	entries *lru.Cache[string, memEntry]
}

func newMemoryTier(size int) (*memoryTier, error) {
	entries, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, err
	}
	return &memoryTier{entries: entries}, nil
}

func (m *memoryTier) get(key string, ttl time.Duration, now time.Time) ([]byte, bool) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false
	}
	if now.Sub(entry.writtenAt) >= ttl {
		m.entries.Remove(key)
		return nil, false
	}
	return entry.payload, true
}

func (m *memoryTier) put(key string, payload []byte, writtenAt time.Time) {
	m.entries.Add(key, memEntry{payload: payload, writtenAt: writtenAt})
}

func (m *memoryTier) len() int {
	return m.entries.Len()
}
