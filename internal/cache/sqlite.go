package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-sqlite3"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

// SQLiteBackend stores thumbnails in a single SQLite table.
type SQLiteBackend struct {
	db       *sql.DB
	dbPath   string
	maxBytes int64
	mu       sync.RWMutex
}

// NewSQLiteBackend opens (creating if needed) the cache database at dbPath.
// The parent directory must already exist. When maxBytes is positive, writes
// that would push the total payload size past it fail with ErrQuotaExceeded.
func NewSQLiteBackend(ctx context.Context, dbPath string, maxBytes int64) (*SQLiteBackend, error) {
	logging.Info("Cache database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Cache database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to cache database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	b := &SQLiteBackend{
		db:       db,
		dbPath:   dbPath,
		maxBytes: maxBytes,
	}

	if err := b.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close cache database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	logging.Info("Cache database initialized successfully at %s", dbPath)
	return b, nil
}

func (b *SQLiteBackend) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS thumbnail_cache (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);
	`
	_, err := b.db.ExecContext(ctx, schema)
	return err
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var value string
	err := b.db.QueryRowContext(ctx, "SELECT value FROM thumbnail_cache WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set implements Backend.
func (b *SQLiteBackend) Set(ctx context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxBytes > 0 {
		var used int64
		err := b.db.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(length(CAST(value AS BLOB))), 0) FROM thumbnail_cache WHERE key != ?", key,
		).Scan(&used)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > b.maxBytes {
			return ErrQuotaExceeded
		}
	}

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO thumbnail_cache (key, value, updated_at) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return translateSQLiteError(err)
}

// Delete implements Backend.
func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.db.ExecContext(ctx, "DELETE FROM thumbnail_cache WHERE key = ?", key)
	return err
}

// DeletePrefix implements Backend. LIKE is avoided because keys contain
// URLs, which routinely carry '%' and '_'.
func (b *SQLiteBackend) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := b.db.QueryContext(ctx,
		"SELECT key FROM thumbnail_cache WHERE substr(key, 1, length(?)) = ?", prefix, prefix)
	if err != nil {
		return 0, err
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, err
		}
		if InNamespace(key, prefix) {
			keys = append(keys, key)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM thumbnail_cache WHERE key = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	removed := 0
	for _, key := range keys {
		result, err := stmt.ExecContext(ctx, key)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

// Stats implements StatsReporter.
func (b *SQLiteBackend) Stats(ctx context.Context) (metrics.Stats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var s metrics.Stats
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(length(CAST(value AS BLOB))), 0) FROM thumbnail_cache",
	).Scan(&s.Entries, &s.Bytes)
	return s, err
}

// Vacuum reclaims space freed by cleared namespaces.
func (b *SQLiteBackend) Vacuum(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, err := b.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// translateSQLiteError maps out-of-space conditions to ErrQuotaExceeded.
func translateSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// diagnoseDatabasePermissions checks cache directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat cache directory: %w", err)
	}

	logging.Debug("Cache directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("cache directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Cache file exists: %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Cache file %s is read-only (mode: %v), writes will fail", path, info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix cache file permissions: %v", chmodErr)
			} else {
				logging.Info("Fixed cache file permissions for %s", path)
			}
		}
	}

	return nil
}
