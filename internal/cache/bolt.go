package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

var bucketThumbnails = []byte("thumbnails")

// BoltBackend stores thumbnails in a single bbolt bucket.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if needed) the bbolt file at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketThumbnails)
		return err
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close bolt db after bucket creation failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	logging.Info("Bolt cache opened at %s", path)
	return &BoltBackend{db: db}, nil
}

// Get implements Backend.
func (b *BoltBackend) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value string
	found := false
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketThumbnails)
		if bucket == nil {
			return nil
		}
		// The returned slice is only valid inside the transaction.
		if v := bucket.Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Backend.
func (b *BoltBackend) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketThumbnails).Put([]byte(key), []byte(value))
	})
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// Delete implements Backend.
func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketThumbnails).Delete([]byte(key))
	})
}

// DeletePrefix implements Backend.
func (b *BoltBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketThumbnails)
		p := []byte(prefix)

		// Collect first; deleting while iterating makes the cursor skip keys.
		var keys [][]byte
		c := bucket.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if InNamespace(string(k), prefix) {
				keys = append(keys, append([]byte(nil), k...))
			}
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Stats implements StatsReporter.
func (b *BoltBackend) Stats(ctx context.Context) (metrics.Stats, error) {
	if err := ctx.Err(); err != nil {
		return metrics.Stats{}, err
	}

	var s metrics.Stats
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketThumbnails).ForEach(func(_, v []byte) error {
			s.Entries++
			s.Bytes += int64(len(v))
			return nil
		})
	})
	return s, err
}

// Close implements Backend.
func (b *BoltBackend) Close() error {
	return b.db.Close()
}
