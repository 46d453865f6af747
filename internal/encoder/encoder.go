// Package encoder turns captured frames into image payloads.
//
// Two strategies are tried in order. A Resizer that can resize and encode
// in one step (libvips) is used when available and able to produce the
// requested format; otherwise the frame is scaled onto an intermediate
// surface and that surface is encoded. Payloads are either data URIs or
// handle references registered in a HandleRegistry.
package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/metrics"
)

// ErrEncode is returned when a frame cannot be encoded.
var ErrEncode = errors.New("encode failed")

// Encoding strategies, as reported in Payload.Strategy.
const (
	StrategyDirect = "direct"
	StrategyPaint  = "paint"
)

// Resizer resizes and encodes a frame in a single step.
type Resizer interface {
	// Available reports whether the resizer can be used at all.
	Available() bool
	// Supports reports whether mimeType can be produced.
	Supports(mimeType string) bool
	ResizeEncode(src image.Image, width, height int, f Format) ([]byte, error)
}

// Payload is an encoded image.
type Payload struct {
	// Value is the data URI or handle reference.
	Value string
	// Format is the format actually produced.
	Format   Format
	Width    int
	Height   int
	Strategy string
}

// Encoder encodes bitmaps.
type Encoder struct {
	resizer Resizer
	handles *HandleRegistry
}

// New creates an Encoder. resizer may be nil. handles is required for
// HandleReference output.
func New(resizer Resizer, handles *HandleRegistry) *Encoder {
	return &Encoder{resizer: resizer, handles: handles}
}

// Handles returns the registry handle references are issued from.
func (e *Encoder) Handles() *HandleRegistry {
	return e.handles
}

// Encode encodes bm at its target size.
func (e *Encoder) Encode(bm *media.Bitmap, f Format, mode OutputMode) (*Payload, error) {
	start := time.Now()
	defer func() {
		metrics.PhaseDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	}()

	if bm == nil || bm.Frame == nil || bm.Width <= 0 || bm.Height <= 0 {
		return nil, fmt.Errorf("%w: empty bitmap", ErrEncode)
	}
	if mode == HandleReference && e.handles == nil {
		return nil, fmt.Errorf("%w: no handle registry for %s output", ErrEncode, mode)
	}

	f = f.Normalize()

	data, produced, strategy, err := e.encodeBytes(bm, f)
	if err != nil {
		return nil, err
	}
	metrics.EncodeStrategyTotal.WithLabelValues(strategy).Inc()

	p := &Payload{
		Format:   produced,
		Width:    bm.Width,
		Height:   bm.Height,
		Strategy: strategy,
	}
	if mode == HandleReference {
		p.Value = e.handles.Register(data, produced.MimeType)
	} else {
		p.Value = DataURI(produced.MimeType, data)
	}

	logging.Debug("Encoded %dx%d %s via %s (%d bytes) in %v",
		bm.Width, bm.Height, produced.MimeType, strategy, len(data), time.Since(start))
	return p, nil
}

func (e *Encoder) encodeBytes(bm *media.Bitmap, f Format) ([]byte, Format, string, error) {
	if e.resizer != nil && e.resizer.Available() && e.resizer.Supports(f.MimeType) {
		data, err := e.resizer.ResizeEncode(bm.Frame, bm.Width, bm.Height, f)
		if err == nil {
			return data, f, StrategyDirect, nil
		}
		logging.Warn("Direct resize failed, falling back to scale-then-paint: %v", err)
	}

	data, produced, err := paint(bm, f)
	if err != nil {
		return nil, Format{}, "", err
	}
	return data, produced, StrategyPaint, nil
}

// paint scales the frame onto a surface of the target size and encodes the
// surface. Formats the paint path cannot produce fall back to PNG.
func paint(bm *media.Bitmap, f Format) ([]byte, Format, error) {
	surface := image.NewNRGBA(image.Rect(0, 0, bm.Width, bm.Height))
	draw.CatmullRom.Scale(surface, surface.Bounds(), bm.Frame, bm.Frame.Bounds(), draw.Src, nil)

	imgFormat, ok := imagingFormat(f.MimeType)
	if !ok {
		logging.Once("paint-fallback-"+f.MimeType, "%s is not supported by the paint encoder, using %s", f.MimeType, MimePNG)
		f.MimeType = MimePNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, surface, imgFormat, imaging.JPEGQuality(f.qualityPercent())); err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), f, nil
}

// DataURI builds a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len(mimeType) + 13 + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// DecodeDataURI parses a base64 data URI produced by DataURI.
func DecodeDataURI(uri string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URI")
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URI is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("invalid data URI payload: %w", err)
	}
	return mimeType, data, nil
}
