package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStatsProvider struct {
	stats Stats
	err   error
	calls int
}

func (f *fakeStatsProvider) Stats(_ context.Context) (Stats, error) {
	f.calls++
	return f.stats, f.err
}

func TestCollectorCollect(t *testing.T) {
	provider := &fakeStatsProvider{stats: Stats{Entries: 12, Bytes: 4096}}
	c := NewCollector(provider, time.Minute)

	c.collect()

	if got := testutil.ToFloat64(CacheEntries); got != 12 {
		t.Errorf("CacheEntries = %v, want 12", got)
	}
	if got := testutil.ToFloat64(CacheSizeBytes); got != 4096 {
		t.Errorf("CacheSizeBytes = %v, want 4096", got)
	}
}

func TestCollectorKeepsPreviousValuesOnError(t *testing.T) {
	provider := &fakeStatsProvider{stats: Stats{Entries: 3, Bytes: 300}}
	c := NewCollector(provider, time.Minute)
	c.collect()

	provider.err = errors.New("backend offline")
	provider.stats = Stats{Entries: 99, Bytes: 9900}
	c.collect()

	if got := testutil.ToFloat64(CacheEntries); got != 3 {
		t.Errorf("CacheEntries = %v, want previous value 3", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, time.Minute)
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	provider := &fakeStatsProvider{}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()
	time.Sleep(35 * time.Millisecond)
	c.Stop()
}
