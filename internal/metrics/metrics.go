package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_service_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_service_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Extraction metrics
var (
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_extractions_total",
			Help: "Total number of extract calls by outcome",
		},
		[]string{"status"}, // "ok", "partial", "empty", "load_timeout", "load_error", "unsupported", "canceled"
	)

	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_thumbnails_total",
			Help: "Total number of per-offset thumbnail outcomes",
		},
		[]string{"status"}, // "generated", "cached", "capture_error", "encode_error"
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbnail_service_phase_duration_seconds",
			Help:    "Duration of each extraction phase in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"phase"}, // "load", "capture", "encode", "cache_read", "cache_write"
	)

	MediaSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_media_sessions_active",
			Help: "Number of media sessions currently open",
		},
	)

	EncodeStrategyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_encode_strategy_total",
			Help: "Total number of encodes by strategy",
		},
		[]string{"strategy"}, // "direct", "paint"
	)

	HandlesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_handles_active",
			Help: "Number of unrevoked handle references",
		},
	)

	HandlesExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_handles_expired_total",
			Help: "Handles released without an explicit revoke, by reason",
		},
		[]string{"reason"}, // "ttl", "capacity"
	)
)

// Cache metrics
var (
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_service_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_service_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	CacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbnail_service_cache_write_failures_total",
			Help: "Total number of failed cache writes by reason",
		},
		[]string{"reason"}, // "quota", "error"
	)

	CacheEntriesCleared = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbnail_service_cache_entries_cleared_total",
			Help: "Total number of cache entries removed by namespace clears",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_cache_entries",
			Help: "Number of entries in the thumbnail cache",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_cache_size_bytes",
			Help: "Total size of cached payloads in bytes",
		},
	)
)

// Capability metrics
var (
	CapabilitySupported = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_capability_supported",
			Help: "Whether a runtime capability is available (1 = yes, 0 = no)",
		},
		[]string{"capability"}, // "capture", "cache", "direct_resize"
	)
)

// Batch metrics
var (
	BatchSourcesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_batch_sources_in_flight",
			Help: "Number of sources currently being processed by batch runs",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thumbnail_service_batch_duration_seconds",
			Help:    "Duration of batch runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_memory_paused",
			Help: "Whether batch processing is paused due to memory pressure (1 = paused)",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thumbnail_service_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

// SetCapability records whether a capability is available.
func SetCapability(name string, supported bool) {
	v := 0.0
	if supported {
		v = 1
	}
	CapabilitySupported.WithLabelValues(name).Set(v)
}
