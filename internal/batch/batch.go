// Package batch extracts thumbnails for many sources concurrently.
//
// Sources are independent: a failure of one is recorded in its own
// SourceResult and never cancels the others. Results come back in input
// order.
package batch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
	"video-thumbnail/internal/thumbnail"
	"video-thumbnail/internal/workers"
)

// MaxWorkers caps the default fan-out width.
const MaxWorkers = 16

// Extractor produces thumbnails for one source.
type Extractor interface {
	Resolve(url string, opts thumbnail.Options) thumbnail.Request
	Extract(ctx context.Context, req thumbnail.Request) ([]thumbnail.Result, error)
}

// Gate holds back new sources, e.g. under memory pressure.
type Gate interface {
	Wait(ctx context.Context) error
}

// SourceResult is the outcome for one source.
type SourceResult struct {
	URL        string             `json:"url"`
	Thumbnails []thumbnail.Result `json:"thumbnails"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"durationMs"`

	Err error `json:"-"`
}

// Summary aggregates a batch run.
type Summary struct {
	URLs       int           `json:"urls"`
	Size       int           `json:"size"`
	Cache      bool          `json:"cache"`
	PerURL     int           `json:"perUrl"`
	Requested  int           `json:"requested"`
	Generated  int           `json:"generated"`
	Failed     int           `json:"failedSources"`
	TotalBytes int           `json:"totalBytes"`
	MSPerThumb int64         `json:"msPerThumbnail"`
	KBPerThumb int           `json:"kbPerThumbnail"`
	DurationMS int64         `json:"durationMs"`
	Duration   time.Duration `json:"-"`
}

// Config wires a Runner.
type Config struct {
	Extractor Extractor
	// Workers is the number of sources processed at once. Zero sizes it
	// from the CPU budget.
	Workers int
	// Gate is optional.
	Gate Gate
}

// Runner fans extraction out across sources.
type Runner struct {
	extractor Extractor
	workers   int
	gate      Gate
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	n := cfg.Workers
	if n <= 0 {
		n = workers.ForIO(MaxWorkers)
	}
	return &Runner{extractor: cfg.Extractor, workers: n, gate: cfg.Gate}
}

// Workers returns the fan-out width.
func (r *Runner) Workers() int {
	return r.workers
}

// Run extracts thumbnails for every url with the same options.
func (r *Runner) Run(ctx context.Context, urls []string, opts thumbnail.Options) ([]SourceResult, Summary) {
	start := time.Now()
	results := make([]SourceResult, len(urls))

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i, url := range urls {
		g.Go(func() error {
			results[i] = r.runOne(ctx, url, opts)
			return nil
		})
	}
	_ = g.Wait()

	elapsed := time.Since(start)
	metrics.BatchDuration.Observe(elapsed.Seconds())

	summary := summarize(results, r.extractor.Resolve("", opts), elapsed)
	logSummary(summary)
	return results, summary
}

func (r *Runner) runOne(ctx context.Context, url string, opts thumbnail.Options) SourceResult {
	metrics.BatchSourcesInFlight.Inc()
	defer metrics.BatchSourcesInFlight.Dec()

	start := time.Now()
	res := SourceResult{URL: url, Thumbnails: []thumbnail.Result{}}

	err := ctx.Err()
	if err == nil && r.gate != nil {
		err = r.gate.Wait(ctx)
	}
	if err == nil {
		var thumbs []thumbnail.Result
		thumbs, err = r.extractor.Extract(ctx, r.extractor.Resolve(url, opts))
		if thumbs != nil {
			res.Thumbnails = thumbs
		}
	}
	if err != nil {
		res.Err = err
		res.Error = err.Error()
	}

	res.DurationMS = time.Since(start).Milliseconds()
	logging.Debug("Batch source %s: %d thumbnails in %dms", url, len(res.Thumbnails), res.DurationMS)
	return res
}

// summarize aggregates results. Per-thumbnail figures are over the
// thumbnails actually generated.
func summarize(results []SourceResult, req thumbnail.Request, elapsed time.Duration) Summary {
	perURL := len(req.Offsets)
	s := Summary{
		URLs:       len(results),
		Size:       req.MaxDimension,
		Cache:      req.UseCache,
		PerURL:     perURL,
		Requested:  len(results) * perURL,
		Duration:   elapsed,
		DurationMS: elapsed.Milliseconds(),
	}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
		}
		s.Generated += len(r.Thumbnails)
		for _, t := range r.Thumbnails {
			s.TotalBytes += t.ByteSize
		}
	}
	if s.Generated > 0 {
		s.MSPerThumb = (s.DurationMS + int64(s.Generated)/2) / int64(s.Generated)
		s.KBPerThumb = s.TotalBytes / s.Generated / 1024
	}
	return s
}

func logSummary(s Summary) {
	caching := "disabled"
	if s.Cache {
		caching = "enabled"
	}
	logging.Info("%d URLs requested, %dpx, caching: %s, %d thumbnails per URL (%dms)",
		s.URLs, s.Size, caching, s.PerURL, s.DurationMS)
	logging.Info("%d/%d thumbnails generated from %d URLs (%dms/%dKB per thumbnail)",
		s.Generated, s.Requested, s.URLs, s.MSPerThumb, s.KBPerThumb)
	if s.Failed > 0 {
		logging.Warn("%d of %d sources failed", s.Failed, s.URLs)
	}
}
