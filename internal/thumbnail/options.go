package thumbnail

import (
	"math"
	"regexp"
	"time"

	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/logging"
)

// Option defaults. Time and size are independent on purpose.
const (
	DefaultTime      = 0.1
	DefaultSize      = 480
	DefaultMimeType  = encoder.MimePNG
	DefaultTimeout   = 30 * time.Second
	DefaultNamespace = "video-thumbnail"

	// MaxTimeout caps the load timeout a request may ask for.
	MaxTimeout = 10 * time.Minute
)

// MaxTimeoutMillis is MaxTimeout in the unit of Options.Timeout.
const MaxTimeoutMillis = int(MaxTimeout / time.Millisecond)

var imageMimeRe = regexp.MustCompile(`(?i)^image/.+`)

// Options is the per-request configuration surface. Every field is
// optional; Resolve fills in defaults.
type Options struct {
	// Time is a single offset, used when Timestamps is empty.
	Time *float64 `json:"time,omitempty"`
	// Timestamps lists offsets, processed in order.
	Timestamps []float64 `json:"timestamps,omitempty"`
	// Size is the maximum thumbnail width in pixels.
	Size int `json:"size,omitempty"`
	// Mime selects the output format and lossy quality in (0, 1].
	Mime *encoder.Format `json:"mime,omitempty"`
	// Type is "dataURI" or "objectURL".
	Type string `json:"type,omitempty"`
	// Cache enables cache reads, and writes for dataURI output.
	Cache bool `json:"cache,omitempty"`
	// CacheKeyPrefix is the cache namespace.
	CacheKeyPrefix string `json:"cacheKeyPrefix,omitempty"`
	// Timeout is the load timeout in milliseconds, capped at MaxTimeout.
	Timeout int `json:"timeout,omitempty"`
}

// Request is a fully resolved extraction request.
type Request struct {
	URL          string
	Offsets      []float64
	MaxDimension int
	Format       encoder.Format
	Mode         encoder.OutputMode
	UseCache     bool
	Namespace    string
	LoadTimeout  time.Duration
}

// Resolve applies defaults and validation to o for url. namespace is used
// when no cacheKeyPrefix is given; empty means DefaultNamespace.
func (o Options) Resolve(url, namespace string) Request {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	req := Request{
		URL:          url,
		MaxDimension: DefaultSize,
		Format:       encoder.Format{MimeType: DefaultMimeType}.Normalize(),
		Mode:         encoder.EmbeddedPayload,
		UseCache:     o.Cache,
		Namespace:    namespace,
		LoadTimeout:  DefaultTimeout,
	}

	single := DefaultTime
	if o.Time != nil && validOffset(*o.Time) {
		single = *o.Time
	}

	for _, ts := range o.Timestamps {
		if !validOffset(ts) {
			logging.Debug("Ignoring invalid timestamp %v for %s", ts, url)
			continue
		}
		req.Offsets = append(req.Offsets, ts)
	}
	if len(req.Offsets) == 0 {
		req.Offsets = []float64{single}
	}

	if o.Size > 0 {
		req.MaxDimension = o.Size
	}
	if o.Mime != nil && imageMimeRe.MatchString(o.Mime.MimeType) {
		req.Format = o.Mime.Normalize()
	}
	if mode, ok := encoder.ParseOutputMode(o.Type); ok {
		req.Mode = mode
	}
	if o.CacheKeyPrefix != "" {
		if cache.ValidNamespace(o.CacheKeyPrefix) {
			req.Namespace = o.CacheKeyPrefix
		} else {
			logging.Debug("Ignoring invalid cacheKeyPrefix %q for %s", o.CacheKeyPrefix, url)
		}
	}
	switch {
	case o.Timeout > MaxTimeoutMillis:
		req.LoadTimeout = MaxTimeout
	case o.Timeout > 0:
		req.LoadTimeout = time.Duration(o.Timeout) * time.Millisecond
	}

	return req
}

func validOffset(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}
