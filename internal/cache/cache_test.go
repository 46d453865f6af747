package cache

import (
	"context"
	"errors"
	"testing"

	"video-thumbnail/internal/metrics"
)

// failingBackend fails every operation with err.
type failingBackend struct {
	err error
}

func (f failingBackend) Get(context.Context, string) (string, error) { return "", f.err }
func (f failingBackend) Set(context.Context, string, string) error   { return f.err }
func (f failingBackend) Delete(context.Context, string) error        { return f.err }
func (f failingBackend) DeletePrefix(context.Context, string) (int, error) {
	return 0, f.err
}
func (f failingBackend) Close() error { return nil }

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(0), true)

	if !c.Put(ctx, "k", "v") {
		t.Fatal("Put should succeed")
	}
	got, ok := c.Get(ctx, "k")
	if !ok || got != "v" {
		t.Errorf("Get() = (%q, %v), want (\"v\", true)", got, ok)
	}
}

func TestCacheDisabledIgnoresPriorWrites(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(0)
	if err := backend.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	c := New(backend, false)
	if c.Enabled() {
		t.Fatal("cache should be disabled")
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("disabled cache should report a miss")
	}
	if c.Put(ctx, "k2", "v2") {
		t.Error("disabled cache should not accept writes")
	}
	if _, err := backend.Get(ctx, "k2"); !errors.Is(err, ErrNotFound) {
		t.Error("disabled cache should not reach the backend on Put")
	}
	if n := c.Clear(ctx, ""); n != 0 {
		t.Errorf("Clear on disabled cache = %d, want 0", n)
	}
}

func TestCacheNilBackend(t *testing.T) {
	c := New(nil, true)
	if c.Enabled() {
		t.Error("cache with nil backend should be disabled")
	}
	if c.Backend() != "none" {
		t.Errorf("Backend() = %q, want none", c.Backend())
	}
}

func TestCacheReadFailureIsMiss(t *testing.T) {
	c := New(failingBackend{err: errors.New("disk on fire")}, true)
	if v, ok := c.Get(context.Background(), "k"); ok || v != "" {
		t.Errorf("Get() = (%q, %v), want miss", v, ok)
	}
}

func TestCachePutFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"quota", ErrQuotaExceeded},
		{"wrapped quota", errors.Join(errors.New("write"), ErrQuotaExceeded)},
		{"generic", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(failingBackend{err: tt.err}, true)
			if c.Put(context.Background(), "k", "v") {
				t.Error("Put should report failure")
			}
		})
	}
}

func TestCacheQuotaDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(10), true)

	if !c.Put(ctx, "a", "12345") {
		t.Fatal("first write should fit")
	}
	if c.Put(ctx, "b", "1234567") {
		t.Fatal("second write should exceed quota")
	}
	if v, ok := c.Get(ctx, "a"); !ok || v != "12345" {
		t.Error("existing entry should survive a quota failure")
	}
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(0), true)

	c.Put(ctx, Key("one", 480, 0.1, "u1"), "a")
	c.Put(ctx, Key("one", 480, 0.2, "u1"), "b")
	c.Put(ctx, Key("two", 480, 0.1, "u1"), "c")

	if n := c.Clear(ctx, NamespacePrefix("one")); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if _, ok := c.Get(ctx, Key("two", 480, 0.1, "u1")); !ok {
		t.Error("other namespace should be untouched")
	}
	if n := c.Clear(ctx, NamespacePrefix("one")); n != 0 {
		t.Errorf("second Clear() = %d, want 0", n)
	}
}

func TestCacheClearFailureReturnsZero(t *testing.T) {
	c := New(failingBackend{err: errors.New("boom")}, true)
	if n := c.Clear(context.Background(), "x"); n != 0 {
		t.Errorf("Clear() = %d, want 0", n)
	}
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryBackend(0), true)
	c.Put(ctx, "a", "123")
	c.Put(ctx, "b", "45")

	var provider metrics.StatsProvider = c
	stats, err := provider.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 2 || stats.Bytes != 5 {
		t.Errorf("Stats() = %+v, want 2 entries and 5 bytes", stats)
	}

	if _, err := New(failingBackend{}, true).Stats(ctx); err == nil {
		t.Error("expected error from backend without stats support")
	}
}
