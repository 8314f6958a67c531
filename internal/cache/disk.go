// internal/cache/disk.go
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// diskTier persists one file per key under a configured directory. The file
// modification time is the authoritative write timestamp, no metadata file
// exists next to the payload.
type diskTier struct {
	dir    string
	logger *zap.Logger
}

func newDiskTier(dir string, logger *zap.Logger) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &diskTier{dir: dir, logger: logger}, nil
}

func (d *diskTier) path(key string) string {
	return filepath.Join(d.dir, key+".json")
}

// get returns the payload and its write time when the entry exists and its
// age is below ttl. A stale file is removed on the spot.
func (d *diskTier) get(key string, ttl time.Duration, now time.Time) ([]byte, time.Time, bool) {
	path := d.path(key)

	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, false
	}

	writtenAt := info.ModTime()
	if now.Sub(writtenAt) >= ttl {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.logger.Debug("Failed to remove stale cache file",
				zap.String("path", path),
				zap.Error(err))
		}
		return nil, time.Time{}, false
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn("Cache file read failed",
			zap.String("path", path),
			zap.Error(err))
		return nil, time.Time{}, false
	}
	return payload, writtenAt, true
}

// put writes the payload atomically: a temp file in the same directory is
// renamed into place, so a concurrently starting process never sees a
// partial entry.
func (d *diskTier) put(key string, payload []byte) error {
	tmp, err := os.CreateTemp(d.dir, "put-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, d.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

// evictOlderThan removes entries whose age exceeds the retention ceiling,
// regardless of per-entry TTL. Leftover temp files from interrupted writes
// are collected by the same pass.
func (d *diskTier) evictOlderThan(retention time.Duration, now time.Time) (int, error) {
	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	removed := 0
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < retention {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, name)); err != nil {
			d.logger.Debug("Failed to evict cache file",
				zap.String("name", name),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
