package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, status := range []string{"ok", "partial", "empty", "load_timeout", "load_error", "unsupported", "canceled"} {
		ExtractionsTotal.WithLabelValues(status)
	}

	for _, status := range []string{"generated", "cached", "capture_error", "encode_error"} {
		ThumbnailsTotal.WithLabelValues(status)
	}

	for _, phase := range []string{"load", "capture", "encode", "cache_read", "cache_write"} {
		PhaseDuration.WithLabelValues(phase)
	}

	for _, strategy := range []string{"direct", "paint"} {
		EncodeStrategyTotal.WithLabelValues(strategy)
	}

	for _, reason := range []string{"ttl", "capacity"} {
		HandlesExpired.WithLabelValues(reason)
	}

	for _, reason := range []string{"quota", "error"} {
		CacheWriteFailures.WithLabelValues(reason)
	}

	for _, c := range []string{"capture", "cache", "direct_resize"} {
		CapabilitySupported.WithLabelValues(c)
	}
}
