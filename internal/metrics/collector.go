package metrics

import (
	"context"
	"time"

	"video-thumbnail/internal/logging"
)

// StatsProvider reports the current size of the thumbnail cache.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}

// Stats holds the current cache statistics
type Stats struct {
	Entries int
	Bytes   int64
}

// Collector periodically collects and updates cache gauges
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := c.statsProvider.Stats(ctx)
	if err != nil {
		logging.Debug("Metrics collection skipped: %v", err)
		return
	}

	CacheEntries.Set(float64(stats.Entries))
	CacheSizeBytes.Set(float64(stats.Bytes))

	logging.Debug("Metrics collected: cache entries=%d, bytes=%d", stats.Entries, stats.Bytes)
}
