package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

// ErrCapture is returned when a frame cannot be captured at an offset.
var ErrCapture = errors.New("frame capture failed")

// Bitmap is a captured frame and the size it should be encoded at.
type Bitmap struct {
	Frame    image.Image
	Width    int
	Height   int
	SeekTime float64
}

// ResolveSeekTime maps an offset to a position in seconds. Offsets strictly
// between 0 and 1 are a fraction of duration; anything else is an absolute
// time clamped to [0, duration].
func ResolveSeekTime(offset, duration float64) float64 {
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	if math.IsNaN(offset) {
		return 0
	}
	if offset > 0 && offset < 1 {
		if math.IsInf(duration, 1) {
			return 0
		}
		return offset * duration
	}
	return math.Max(0, math.Min(offset, duration))
}

// TargetSize returns the encode size for a frame of natural size w x h:
// the width is capped at maxDimension and the height keeps the aspect ratio.
func TargetSize(maxDimension, w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	width := w
	if maxDimension > 0 && maxDimension < w {
		width = maxDimension
	}
	height := int(math.Round(float64(width) * float64(h) / float64(w)))
	return width, max(height, 1)
}

// Capturer reads frames from open sessions.
type Capturer struct{}

// NewCapturer creates a Capturer.
func NewCapturer() *Capturer {
	return &Capturer{}
}

// Capture seeks s to offset and returns the displayed frame. Capture has no
// timeout of its own; it returns early only when ctx is done.
func (c *Capturer) Capture(ctx context.Context, s *Session, offset float64, maxDimension int) (*Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.PhaseDuration.WithLabelValues("capture").Observe(time.Since(start).Seconds())
	}()

	seekTime := ResolveSeekTime(offset, s.Duration)

	// Force a play/pause transition so the settle event fires on runtimes
	// that never report seeks on an unplayed element.
	if err := s.el.Play(); err != nil {
		logging.Debug("Play rejected for %s, seeking anyway: %v", s.URL, err)
	}
	s.el.Pause()
	s.el.Seek(seekTime)

	events := s.el.Events()
wait:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("%w at %.3fs: event stream closed", ErrCapture, seekTime)
			}
			switch ev.Type {
			case EventSeeked:
				break wait
			case EventError:
				return nil, fmt.Errorf("%w at %.3fs: %v", ErrCapture, seekTime, ev.Err)
			default:
				// duplicate readiness signal
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	frame, err := s.el.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w at %.3fs: %v", ErrCapture, seekTime, err)
	}

	natW, natH := s.Width, s.Height
	if natW <= 0 || natH <= 0 {
		b := frame.Bounds()
		natW, natH = b.Dx(), b.Dy()
	}
	w, h := TargetSize(maxDimension, natW, natH)
	if w == 0 {
		return nil, fmt.Errorf("%w at %.3fs: empty frame", ErrCapture, seekTime)
	}

	logging.Debug("Captured %s at %.3fs (%dx%d) in %v", s.URL, seekTime, w, h, time.Since(start))
	return &Bitmap{Frame: frame, Width: w, Height: h, SeekTime: seekTime}, nil
}
