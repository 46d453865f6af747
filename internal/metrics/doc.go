// Package metrics provides Prometheus instrumentation for the thumbnail service.
//
// All metrics are prefixed with "thumbnail_service_" to avoid naming
// collisions with other applications.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//   - HTTPRateLimited: Counter of requests rejected by the rate limiter
//
// ## Extraction Metrics
//
//   - ExtractionsTotal: Counter of extract calls by outcome
//   - ThumbnailsTotal: Counter of per-offset outcomes (generated, cached, failures)
//   - PhaseDuration: Histogram of load, capture, encode and cache phases
//   - MediaSessionsActive: Gauge of open media sessions
//   - EncodeStrategyTotal: Counter of encodes by strategy (direct, paint)
//   - HandlesActive: Gauge of unrevoked handle references
//   - HandlesExpired: Counter of handles released by TTL or capacity
//
// ## Cache Metrics
//
//   - CacheHits / CacheMisses: Counters of lookups
//   - CacheWriteFailures: Counter of failed writes by reason (quota, error)
//   - CacheEntriesCleared: Counter of entries removed by namespace clears
//   - CacheEntries / CacheSizeBytes: Gauges refreshed by the Collector
//
// ## Capability, Batch and Memory Metrics
//
//   - CapabilitySupported: Gauge per probed capability
//   - BatchSourcesInFlight / BatchDuration: fan-out progress
//   - MemoryUsageRatio / MemoryPaused: backpressure state
//
// Call InitializeMetrics once at startup so that every labelled series is
// exported from the first scrape.
package metrics
