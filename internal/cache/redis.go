package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

const scanBatchSize = 100

// RedisBackend stores thumbnails as plain string keys in Redis.
type RedisBackend struct {
	client *redis.Client
}

// RedisOptions configures NewRedisBackend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, opts RedisOptions) (*RedisBackend, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address not configured")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.Error("failed to close redis client after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to redis (%s, DB %d): %w", opts.Addr, opts.DB, err)
	}

	logging.Info("Connected to redis (%s, DB %d)", opts.Addr, opts.DB)
	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Set implements Backend. Entries never expire.
func (b *RedisBackend) Set(ctx context.Context, key, value string) error {
	err := b.client.Set(ctx, key, value, 0).Err()
	if err != nil && isRedisOOM(err) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// DeletePrefix implements Backend using SCAN rather than KEYS so large
// instances are not blocked.
func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	matched, err := b.scan(ctx, escapeGlob(prefix)+"*")
	if err != nil {
		return 0, err
	}
	keys := matched[:0]
	for _, k := range matched {
		if InNamespace(k, prefix) {
			keys = append(keys, k)
		}
	}

	removed := 0
	for start := 0; start < len(keys); start += scanBatchSize {
		end := min(start+scanBatchSize, len(keys))
		n, err := b.client.Del(ctx, keys[start:end]...).Result()
		removed += int(n)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Stats implements StatsReporter. Only keys in the cache layout are counted,
// since the instance may be shared.
func (b *RedisBackend) Stats(ctx context.Context) (metrics.Stats, error) {
	keys, err := b.scan(ctx, "*"+namespaceSeparator+"*")
	if err != nil {
		return metrics.Stats{}, err
	}

	pipe := b.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.StrLen(ctx, key)
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return metrics.Stats{}, err
		}
	}

	s := metrics.Stats{Entries: len(keys)}
	for _, cmd := range cmds {
		s.Bytes += cmd.Val()
	}
	return s, nil
}

// Close implements Backend.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) scan(ctx context.Context, pattern string) ([]string, error) {
	var allKeys []string
	var cursor uint64
	for {
		keys, nextCursor, err := b.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		allKeys = append(allKeys, keys...)
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return allKeys, nil
}

func isRedisOOM(err error) bool {
	return strings.HasPrefix(err.Error(), "OOM ")
}

// escapeGlob escapes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
