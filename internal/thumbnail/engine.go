package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/metrics"
)

// UnknownSeekTime is reported for cached fractional offsets, whose
// position depended on a duration that was never loaded.
const UnknownSeekTime = -1

// Result is one extracted thumbnail.
//
// A result served from the cache carries only what the cached data URI
// records. SeekTime is UnknownSeekTime for fractional offsets, since the
// duration that placed them was never loaded, and Format holds the mime
// type without a quality. Payload is identical to the one first produced.
type Result struct {
	Offset   float64        `json:"timestamp"`
	SeekTime float64        `json:"seekTime"`
	Payload  string         `json:"URI"`
	ByteSize int            `json:"size"`
	SizeKB   float64        `json:"sizeKB"`
	Format   encoder.Format `json:"mime"`
	Cached   bool           `json:"cached"`
}

// Prober reports runtime capabilities.
type Prober interface {
	Support() capability.Support
}

// Config wires an Engine.
type Config struct {
	Probe    Prober
	Cache    *cache.Cache
	Loader   *media.Loader
	Capturer *media.Capturer
	Encoder  *encoder.Encoder
	// Namespace is the default cache namespace.
	Namespace string
}

// Engine extracts thumbnails.
type Engine struct {
	probe     Prober
	cache     *cache.Cache
	loader    *media.Loader
	capturer  *media.Capturer
	encoder   *encoder.Encoder
	namespace string
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Capturer == nil {
		cfg.Capturer = media.NewCapturer()
	}
	return &Engine{
		probe:     cfg.Probe,
		cache:     cfg.Cache,
		loader:    cfg.Loader,
		capturer:  cfg.Capturer,
		encoder:   cfg.Encoder,
		namespace: cfg.Namespace,
	}
}

// Namespace returns the default cache namespace.
func (e *Engine) Namespace() string {
	return e.namespace
}

// Support returns the probed runtime capabilities.
func (e *Engine) Support() capability.Support {
	return e.probe.Support()
}

// Resolve applies defaults to opts using the engine's default namespace.
func (e *Engine) Resolve(url string, opts Options) Request {
	return opts.Resolve(url, e.namespace)
}

// Extract produces one thumbnail per offset of req, in order. Offsets that
// fail to capture or encode are skipped. A non-nil error means the source
// as a whole failed (unsupported runtime, load timeout, load error or
// cancellation) and is always paired with an empty result.
func (e *Engine) Extract(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()
	logging.Debug("Extracting %s", Describe(req))

	support := e.probe.Support()
	if !support.CanCapture {
		logging.Once("unsupported-runtime", "Thumbnail extraction disabled: %v", capability.ErrUnsupportedRuntime)
		metrics.ExtractionsTotal.WithLabelValues("unsupported").Inc()
		return nil, capability.ErrUnsupportedRuntime
	}

	useCache := req.UseCache && support.CanCache && e.cache.Enabled()
	if req.UseCache && !useCache {
		logging.Once("cache-disabled", "Thumbnail caching requested but the cache is unavailable, continuing without it")
	}

	var session *media.Session
	defer func() {
		if session != nil {
			session.Release()
		}
	}()

	results := make([]Result, 0, len(req.Offsets))
	for _, offset := range req.Offsets {
		var key string
		if useCache {
			key = cache.Key(req.Namespace, req.MaxDimension, offset, req.URL)
			if value, ok := e.cache.Get(ctx, key); ok {
				r, err := e.fromCache(offset, value, req.Mode)
				if err == nil {
					metrics.ThumbnailsTotal.WithLabelValues("cached").Inc()
					results = append(results, r)
					continue
				}
				logging.Warn("Ignoring unreadable cache entry %s: %v", key, err)
			}
		}

		if session == nil {
			s, err := e.loader.Open(ctx, req.URL, req.LoadTimeout)
			if err != nil {
				e.recordSourceFailure(req.URL, err)
				return nil, err
			}
			session = s
		}

		bm, err := e.capturer.Capture(ctx, session, offset, req.MaxDimension)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e.recordSourceFailure(req.URL, ctxErr)
				return nil, ctxErr
			}
			metrics.ThumbnailsTotal.WithLabelValues("capture_error").Inc()
			logging.Warn("Skipping offset %v of %s: %v", offset, req.URL, err)
			continue
		}

		p, err := e.encoder.Encode(bm, req.Format, req.Mode)
		if err != nil {
			metrics.ThumbnailsTotal.WithLabelValues("encode_error").Inc()
			logging.Warn("Skipping offset %v of %s: %v", offset, req.URL, err)
			continue
		}

		if useCache && req.Mode == encoder.EmbeddedPayload {
			e.cache.Put(ctx, key, p.Value)
		}

		metrics.ThumbnailsTotal.WithLabelValues("generated").Inc()
		results = append(results, newResult(offset, bm.SeekTime, p.Value, p.Format, false))
	}

	status := "ok"
	switch {
	case len(results) == 0:
		status = "empty"
		logging.Warn("No thumbnails generated for %s", req.URL)
	case len(results) < len(req.Offsets):
		status = "partial"
	}
	metrics.ExtractionsTotal.WithLabelValues(status).Inc()

	logging.Debug("%s (%dpx max, %s): %d/%d thumbnails in %v",
		req.URL, req.MaxDimension, req.Mode, len(results), len(req.Offsets), time.Since(start))
	return results, nil
}

// ClearCache removes every cached thumbnail of namespace (the default
// namespace when empty) and returns how many were removed. Namespaces that
// merely start with namespace, such as "ns-cache-x" for "ns", are left
// alone.
func (e *Engine) ClearCache(ctx context.Context, namespace string) int {
	if namespace == "" {
		namespace = e.namespace
	}
	if !cache.ValidNamespace(namespace) {
		logging.Debug("Not clearing invalid namespace %q", namespace)
		return 0
	}
	return e.cache.Clear(ctx, cache.NamespacePrefix(namespace))
}

// fromCache builds a result from a cached data URI. Handle output gets a
// fresh handle for the cached bytes.
func (e *Engine) fromCache(offset float64, value string, mode encoder.OutputMode) (Result, error) {
	mimeType, data, err := encoder.DecodeDataURI(value)
	if err != nil {
		return Result{}, err
	}

	payload := value
	if mode == encoder.HandleReference {
		if e.encoder == nil || e.encoder.Handles() == nil {
			return Result{}, errors.New("no handle registry")
		}
		payload = e.encoder.Handles().Register(data, mimeType)
	}

	seekTime := float64(UnknownSeekTime)
	if !(offset > 0 && offset < 1) {
		seekTime = offset
	}

	return newResult(offset, seekTime, payload, encoder.Format{MimeType: mimeType}, true), nil
}

func (e *Engine) recordSourceFailure(url string, err error) {
	status := "load_error"
	switch {
	case errors.Is(err, media.ErrLoadTimeout):
		status = "load_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = "canceled"
	}
	metrics.ExtractionsTotal.WithLabelValues(status).Inc()
	logging.Warn("Unable to create thumbnails for %s: %v", url, err)
}

func newResult(offset, seekTime float64, payload string, f encoder.Format, cached bool) Result {
	return Result{
		Offset:   offset,
		SeekTime: seekTime,
		Payload:  payload,
		ByteSize: len(payload),
		SizeKB:   roundKB(len(payload)),
		Format:   f,
		Cached:   cached,
	}
}

func roundKB(n int) float64 {
	return math.Round(float64(n)/1024*100) / 100
}

// Describe summarizes a request for logs.
func Describe(req Request) string {
	offsets := make([]string, len(req.Offsets))
	for i, o := range req.Offsets {
		offsets[i] = cache.FormatOffset(o)
	}
	return fmt.Sprintf("%s [%s] %dpx %s %s cache=%v", req.URL, strings.Join(offsets, ","),
		req.MaxDimension, req.Format.MimeType, req.Mode, req.UseCache)
}
