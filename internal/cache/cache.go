// internal/cache/cache.go
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMemoryEntries = 4096
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = 30 * time.Minute
)

// Config carries the cache construction parameters.
type Config struct {
	Dir           string
	MemoryEntries int
	Retention     time.Duration
}

// Store is the two-tier TTL cache: an LRU memory tier in front of a
// file-per-key disk tier. Disk failures are absorbed and logged, they never
// fail the logical operation.
type Store struct {
	mem       *memoryTier
	disk      *diskTier
	retention time.Duration
	logger    *zap.Logger

	// Statistics (accessed atomically)
	memHits   uint64
	diskHits  uint64
	misses    uint64
	writes    uint64
	evictions uint64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	MemoryHits    uint64 `json:"memory_hits"`
	DiskHits      uint64 `json:"disk_hits"`
	Misses        uint64 `json:"misses"`
	Writes        uint64 `json:"writes"`
	Evictions     uint64 `json:"evictions"`
	MemoryEntries int    `json:"memory_entries"`
}

// New creates a Store rooted at cfg.Dir, creating the directory if needed.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = DefaultMemoryEntries
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	log := logger.Named("cache")
	mem, err := newMemoryTier(cfg.MemoryEntries)
	if err != nil {
		return nil, err
	}
	disk, err := newDiskTier(cfg.Dir, log)
	if err != nil {
		return nil, err
	}

	return &Store{
		mem:       mem,
		disk:      disk,
		retention: cfg.Retention,
		logger:    log,
	}, nil
}

// Get returns the cached payload for key when an entry exists and is younger
// than ttl. The memory tier is consulted first, and a disk hit repopulates
// the memory tier so the next lookup stays fast. A non-positive ttl always
// misses, write-class methods are never cached.
func (s *Store) Get(key string, ttl time.Duration) ([]byte, bool) {
	if ttl <= 0 {
		atomic.AddUint64(&s.misses, 1)
		return nil, false
	}

	now := time.Now()
	if payload, ok := s.mem.get(key, ttl, now); ok {
		atomic.AddUint64(&s.memHits, 1)
		return payload, true
	}

	if payload, writtenAt, ok := s.disk.get(key, ttl, now); ok {
		s.mem.put(key, payload, writtenAt)
		atomic.AddUint64(&s.diskHits, 1)
		return payload, true
	}

	atomic.AddUint64(&s.misses, 1)
	return nil, false
}

// Put stores the payload in both tiers. With ttl <= 0 the call is a no-op.
// A failed disk write is logged and swallowed: the memory tier still holds
// the entry and the logical operation has already succeeded.
func (s *Store) Put(key string, payload []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	s.mem.put(key, payload, time.Now())
	if err := s.disk.put(key, payload); err != nil {
		s.logger.Warn("Cache disk write failed",
			zap.String("key", key),
			zap.Error(err))
	}
	atomic.AddUint64(&s.writes, 1)
}

// EvictExpired removes disk entries older than the retention ceiling and
// returns how many were deleted.
func (s *Store) EvictExpired() int {
	removed, err := s.disk.evictOlderThan(s.retention, time.Now())
	if err != nil {
		s.logger.Warn("Cache sweep failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		atomic.AddUint64(&s.evictions, uint64(removed))
		s.logger.Info("Evicted aged cache entries",
			zap.Int("removed", removed),
			zap.Duration("retention", s.retention))
	}
	return removed
}

// RunSweeper periodically evicts aged disk entries until ctx is done.
// onSweep, when non-nil, observes the removal count of every sweep.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.EvictExpired()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// Stats returns a snapshot of cache counters.
func (s *Store) Stats() Stats {
	return Stats{
		MemoryHits:    atomic.LoadUint64(&s.memHits),
		DiskHits:      atomic.LoadUint64(&s.diskHits),
		Misses:        atomic.LoadUint64(&s.misses),
		Writes:        atomic.LoadUint64(&s.writes),
		Evictions:     atomic.LoadUint64(&s.evictions),
		MemoryEntries: s.mem.len(),
	}
}
