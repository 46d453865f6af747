package handlers

import (
	"time"

	"video-thumbnail/internal/batch"
	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/thumbnail"
)

// DefaultMaxBatchURLs bounds the number of sources in one batch request.
const DefaultMaxBatchURLs = 100

// Availability reports whether an optional component can be used.
type Availability interface {
	Available() bool
}

// Config wires the handlers.
type Config struct {
	Engine  *thumbnail.Engine
	Batch   *batch.Runner
	Cache   *cache.Cache
	Handles *encoder.HandleRegistry
	// Resizer reports whether the direct resize-and-encode path is usable.
	// Optional.
	Resizer      Availability
	MaxBatchURLs int
}

// Handlers serves the thumbnail API.
type Handlers struct {
	engine       *thumbnail.Engine
	batch        *batch.Runner
	cache        *cache.Cache
	handles      *encoder.HandleRegistry
	resizer      Availability
	maxBatchURLs int
	startTime    time.Time
}

// New creates Handlers from cfg.
func New(cfg Config) *Handlers {
	if cfg.MaxBatchURLs <= 0 {
		cfg.MaxBatchURLs = DefaultMaxBatchURLs
	}
	if cfg.Batch == nil && cfg.Engine != nil {
		cfg.Batch = batch.NewRunner(batch.Config{Extractor: cfg.Engine})
	}
	return &Handlers{
		engine:       cfg.Engine,
		batch:        cfg.Batch,
		cache:        cfg.Cache,
		handles:      cfg.Handles,
		resizer:      cfg.Resizer,
		maxBatchURLs: cfg.MaxBatchURLs,
		startTime:    time.Now(),
	}
}
