package cache

import (
	"context"
	"sync"

	"video-thumbnail/internal/metrics"
)

// MemoryBackend is a process-local Backend. Contents are lost on restart.
type MemoryBackend struct {
	mu       sync.RWMutex
	entries  map[string]string
	used     int64
	maxBytes int64
}

// NewMemoryBackend creates an empty store. A positive maxBytes caps the
// total size of stored values.
func NewMemoryBackend(maxBytes int64) *MemoryBackend {
	return &MemoryBackend{
		entries:  make(map[string]string),
		maxBytes: maxBytes,
	}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.entries[key]
	next := m.used + int64(len(value))
	if exists {
		next -= int64(len(prev))
	}
	if m.maxBytes > 0 && next > m.maxBytes {
		return ErrQuotaExceeded
	}

	m.entries[key] = value
	m.used = next
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.entries[key]; ok {
		m.used -= int64(len(v))
		delete(m.entries, key)
	}
	return nil
}

// DeletePrefix implements Backend.
func (m *MemoryBackend) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, v := range m.entries {
		if InNamespace(k, prefix) {
			m.used -= int64(len(v))
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Stats implements StatsReporter.
func (m *MemoryBackend) Stats(_ context.Context) (metrics.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return metrics.Stats{Entries: len(m.entries), Bytes: m.used}, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
