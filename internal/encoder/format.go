package encoder

import (
	"math"
	"strings"

	"github.com/disintegration/imaging"
)

// Supported mime types.
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
	MimeGIF  = "image/gif"
	MimeBMP  = "image/bmp"
	MimeTIFF = "image/tiff"
)

// DefaultQuality is used for lossy formats when no valid quality is given.
const DefaultQuality = 0.92

// Format is a requested output encoding. Quality is in (0, 1] and only
// affects lossy formats.
type Format struct {
	MimeType string  `json:"type"`
	Quality  float64 `json:"quality,omitempty"`
}

// Normalize lowercases the mime type, defaults it to PNG and replaces an
// out-of-range quality with DefaultQuality.
func (f Format) Normalize() Format {
	f.MimeType = strings.ToLower(strings.TrimSpace(f.MimeType))
	if f.MimeType == "image/jpg" {
		f.MimeType = MimeJPEG
	}
	if f.MimeType == "" {
		f.MimeType = MimePNG
	}
	if !(f.Quality > 0 && f.Quality <= 1) {
		f.Quality = DefaultQuality
	}
	return f
}

func (f Format) qualityPercent() int {
	q := int(math.Round(f.Quality * 100))
	return min(max(q, 1), 100)
}

// imagingFormat maps a mime type to an encoder of the paint path.
func imagingFormat(mimeType string) (imaging.Format, bool) {
	switch mimeType {
	case MimePNG:
		return imaging.PNG, true
	case MimeJPEG:
		return imaging.JPEG, true
	case MimeGIF:
		return imaging.GIF, true
	case MimeBMP:
		return imaging.BMP, true
	case MimeTIFF:
		return imaging.TIFF, true
	default:
		return imaging.PNG, false
	}
}

// OutputMode selects how an encoded image is handed back.
type OutputMode int

const (
	// EmbeddedPayload is a self-contained data URI. It can be cached.
	EmbeddedPayload OutputMode = iota
	// HandleReference is a revocable reference valid for this process only.
	HandleReference
)

// ParseOutputMode accepts "dataURI" and "objectURL" (case-insensitive).
func ParseOutputMode(s string) (OutputMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "datauri", "":
		return EmbeddedPayload, true
	case "objecturl":
		return HandleReference, true
	default:
		return EmbeddedPayload, false
	}
}

func (m OutputMode) String() string {
	switch m {
	case EmbeddedPayload:
		return "dataURI"
	case HandleReference:
		return "objectURL"
	default:
		return "unknown"
	}
}
