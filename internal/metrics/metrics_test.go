package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"HTTPRateLimited", HTTPRateLimited},
		{"ExtractionsTotal", ExtractionsTotal},
		{"ThumbnailsTotal", ThumbnailsTotal},
		{"PhaseDuration", PhaseDuration},
		{"MediaSessionsActive", MediaSessionsActive},
		{"EncodeStrategyTotal", EncodeStrategyTotal},
		{"HandlesActive", HandlesActive},
		{"HandlesExpired", HandlesExpired},
		{"CacheHits", CacheHits},
		{"CacheMisses", CacheMisses},
		{"CacheWriteFailures", CacheWriteFailures},
		{"CacheEntriesCleared", CacheEntriesCleared},
		{"CacheEntries", CacheEntries},
		{"CacheSizeBytes", CacheSizeBytes},
		{"CapabilitySupported", CapabilitySupported},
		{"BatchSourcesInFlight", BatchSourcesInFlight},
		{"BatchDuration", BatchDuration},
		{"MemoryUsageRatio", MemoryUsageRatio},
		{"MemoryPaused", MemoryPaused},
		{"AppInfo", AppInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetricsIsIdempotent(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("InitializeMetrics panicked: %v", r)
		}
	}()
	InitializeMetrics()
	InitializeMetrics()
}

func TestSetCapability(t *testing.T) {
	SetCapability("capture", true)
	if got := testutil.ToFloat64(CapabilitySupported.WithLabelValues("capture")); got != 1 {
		t.Errorf("capture capability = %v, want 1", got)
	}

	SetCapability("capture", false)
	if got := testutil.ToFloat64(CapabilitySupported.WithLabelValues("capture")); got != 0 {
		t.Errorf("capture capability = %v, want 0", got)
	}
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}
