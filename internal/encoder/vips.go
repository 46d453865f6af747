package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// InitVips initializes the libvips library.
// Safe to call more than once; only the first call starts vips.
func InitVips() (err error) {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// vips.Startup panics when the shared library cannot be initialized.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("libvips startup failed: %v", r)
		}
	}()

	// Configure vips logging BEFORE Startup() so LOG_LEVEL is respected
	vipsLogLevel, logHandler := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(logHandler, vipsLogLevel)

	// Thumbnails are small; keep the operation cache modest
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// vipsLogging maps the application log level onto libvips log routing.
func vipsLogging(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo, func(domain string, l vips.LogLevel, msg string) {
			switch l {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelInfo:
		return vips.LogLevelWarning, func(domain string, l vips.LogLevel, msg string) {
			switch l {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	case logging.LevelWarn:
		return vips.LogLevelError, func(domain string, l vips.LogLevel, msg string) {
			if l >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	default:
		return vips.LogLevelCritical, func(domain string, l vips.LogLevel, msg string) {
			if l >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	}
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// VipsResizer resizes and encodes in a single libvips pipeline.
type VipsResizer struct {
	available func() bool
}

// NewVipsResizer returns a resizer whose availability is probed on first
// use. When enabled is false the resizer always reports unavailable.
func NewVipsResizer(enabled bool) *VipsResizer {
	r := &VipsResizer{}
	r.available = sync.OnceValue(func() bool {
		ok := enabled
		if !enabled {
			logging.Info("Direct resize disabled by configuration, using scale-then-paint")
		} else if err := InitVips(); err != nil {
			logging.Warn("Direct resize unavailable, using scale-then-paint: %v", err)
			ok = false
		}
		metrics.SetCapability("direct_resize", ok)
		return ok
	})
	return r
}

// Available implements Resizer.
func (r *VipsResizer) Available() bool {
	return r.available()
}

// Supports implements Resizer.
func (r *VipsResizer) Supports(mimeType string) bool {
	switch mimeType {
	case MimePNG, MimeJPEG, MimeWebP:
		return true
	default:
		return false
	}
}

// ResizeEncode implements Resizer. The frame is handed to vips losslessly
// so the only lossy step is the final export.
func (r *VipsResizer) ResizeEncode(src image.Image, width, height int, f Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("failed to buffer frame for vips: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load frame: %w", err)
	}
	defer ref.Close()

	if err := ref.Thumbnail(width, height, vips.InterestingNone); err != nil {
		return nil, fmt.Errorf("vips resize failed: %w", err)
	}

	var out []byte
	switch f.MimeType {
	case MimeJPEG:
		out, _, err = ref.ExportJpeg(&vips.JpegExportParams{
			Quality:        f.qualityPercent(),
			StripMetadata:  true,
			OptimizeCoding: true,
		})
	case MimeWebP:
		params := vips.NewWebpExportParams()
		params.Quality = f.qualityPercent()
		params.StripMetadata = true
		out, _, err = ref.ExportWebp(params)
	default:
		params := vips.NewPngExportParams()
		params.StripMetadata = true
		out, _, err = ref.ExportPng(params)
	}
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return out, nil
}
