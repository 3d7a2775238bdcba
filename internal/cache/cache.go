// Package cache implements a durable file-per-key response cache. Entries
// are raw JSON bodies, human-readable, and never invalidated automatically:
// deleting a file is the only way to force a refresh.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/comixcatalog/etl/internal/metrics"
)

// Cache memoizes expensive lookups on local disk. It is opened once at run
// start and consulted by a single ingestion worker at a time, so no locking
// is needed beyond the filesystem's own guarantees.
type Cache struct {
	dir    string
	logger *zap.Logger
}

// Open prepares the cache directory, creating it if needed and verifying it
// is writable.
func Open(dir string, logger *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache directory is required")
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, fmt.Errorf("cache path %q is not a directory", dir)
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create cache directory: %w", mkErr)
		}
	default:
		return nil, fmt.Errorf("stat cache directory: %w", err)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("cache directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Cache{dir: dir, logger: logger}, nil
}

// GetOrCompute returns the cached value for key, or invokes compute, persists
// its result, and returns it. A hit always short-circuits compute, even if
// the upstream catalog has since changed. Errors from compute are returned
// uncached; a write failure is surfaced to the caller (it aborts the run).
func (c *Cache) GetOrCompute(key string, compute func() ([]byte, error)) ([]byte, error) {
	path := c.entryPath(key)

	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from a sanitized key under dir
	if err == nil {
		metrics.ObserveCacheLookup(true)
		c.logger.Debug("cache hit", zap.String("key", key))
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read cache entry %q: %w", key, err)
	}

	metrics.ObserveCacheLookup(false)
	data, err = compute()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write cache entry %q: %w", key, err)
	}
	c.logger.Debug("cache entry written", zap.String("key", key), zap.Int("bytes", len(data)))
	return data, nil
}

// entryPath maps a logical key to a filesystem-safe file under the cache
// directory.
func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".json")
}

func sanitizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
