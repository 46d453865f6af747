package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"video-thumbnail/internal/logging"
)

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
	KindRedis  = "redis"
	KindMemory = "memory"
)

// Config selects and configures a Backend.
type Config struct {
	Kind     string
	Dir      string
	MaxBytes int64
	Redis    RedisOptions
}

// Open creates the configured backend. File-backed kinds need Dir.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindSQLite, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache backend %q requires a directory", KindSQLite)
		}
		return NewSQLiteBackend(ctx, filepath.Join(cfg.Dir, "thumbnails.db"), cfg.MaxBytes)
	case KindBolt:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("cache backend %q requires a directory", KindBolt)
		}
		if cfg.MaxBytes > 0 {
			logging.Warn("CACHE_MAX_BYTES is not enforced by the bolt backend")
		}
		return NewBoltBackend(filepath.Join(cfg.Dir, "thumbnails.bolt"))
	case KindRedis:
		return NewRedisBackend(ctx, cfg.Redis)
	case KindMemory:
		return NewMemoryBackend(cfg.MaxBytes), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Kind)
	}
}
