package cache

import (
	"context"
	"errors"
	"time"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

// Default timeout for backend operations
const defaultTimeout = 5 * time.Second

var (
	// ErrNotFound is returned by a Backend when a key does not exist.
	ErrNotFound = errors.New("cache: key not found")

	// ErrQuotaExceeded is returned by a Backend when a write would exceed
	// the store's capacity.
	ErrQuotaExceeded = errors.New("cache: storage quota exceeded")
)

// Backend is a durable key to string store.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key for which InNamespace(key, prefix)
	// holds and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Close releases the underlying storage.
	Close() error
}

// StatsReporter is implemented by backends that can report their size.
type StatsReporter interface {
	Stats(ctx context.Context) (metrics.Stats, error)
}

// Cache is the best-effort view of a Backend used by the extraction engine.
type Cache struct {
	backend Backend
	enabled bool
	name    string
}

// New wraps backend. When enabled is false (typically because the
// startup self-test failed) every operation is a no-op.
func New(backend Backend, enabled bool) *Cache {
	return &Cache{
		backend: backend,
		enabled: enabled && backend != nil,
		name:    backendName(backend),
	}
}

// Enabled reports whether the cache accepts reads and writes.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Backend returns the wrapped backend name for logging.
func (c *Cache) Backend() string {
	if c == nil {
		return "none"
	}
	return c.name
}

// Get returns the value stored under key. Any failure, including a
// disabled cache, reads as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	value, err := c.backend.Get(ctx, key)
	metrics.PhaseDuration.WithLabelValues("cache_read").Observe(time.Since(start).Seconds())

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Warn("Cache read failed for %s, treating as miss: %v", key, err)
		}
		metrics.CacheMisses.Inc()
		return "", false
	}

	metrics.CacheHits.Inc()
	return value, true
}

// Put stores value under key. It reports whether the write succeeded and
// never retries or evicts other entries.
func (c *Cache) Put(ctx context.Context, key, value string) bool {
	if !c.Enabled() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	err := c.backend.Set(ctx, key, value)
	metrics.PhaseDuration.WithLabelValues("cache_write").Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.CacheWriteFailures.WithLabelValues("quota").Inc()
			logging.Warn("Cache quota exceeded, thumbnail for %s not cached (%d bytes)", key, len(value))
		} else {
			metrics.CacheWriteFailures.WithLabelValues("error").Inc()
			logging.Warn("Cache write failed for %s: %v", key, err)
		}
		return false
	}
	return true
}

// Clear removes every entry of the namespace whose prefix is prefix and
// returns the number removed. Failures are logged and reported as zero.
func (c *Cache) Clear(ctx context.Context, prefix string) int {
	if !c.Enabled() {
		return 0
	}

	n, err := c.backend.DeletePrefix(ctx, prefix)
	if err != nil {
		logging.Warn("Cache clear failed for prefix %q: %v", prefix, err)
		if n <= 0 {
			return 0
		}
	}

	if n > 0 {
		metrics.CacheEntriesCleared.Add(float64(n))
	}
	logging.Info("Cleared %d cached thumbnails with prefix %q", n, prefix)
	return n
}

// Stats reports the backend size when the backend supports it.
func (c *Cache) Stats(ctx context.Context) (metrics.Stats, error) {
	if !c.Enabled() {
		return metrics.Stats{}, errors.New("cache disabled")
	}
	reporter, ok := c.backend.(StatsReporter)
	if !ok {
		return metrics.Stats{}, errors.New("backend does not report stats")
	}
	return reporter.Stats(ctx)
}

func backendName(b Backend) string {
	switch b.(type) {
	case *SQLiteBackend:
		return "sqlite"
	case *BoltBackend:
		return "bolt"
	case *RedisBackend:
		return "redis"
	case *MemoryBackend:
		return "memory"
	case nil:
		return "none"
	default:
		return "custom"
	}
}
