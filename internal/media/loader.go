package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

var (
	// ErrLoadTimeout is returned when a source is not seek-ready in time.
	ErrLoadTimeout = errors.New("media load timed out")
	// ErrLoad is returned when the media subsystem reports a load failure.
	ErrLoad = errors.New("media load failed")
)

// Session is an opened, seek-ready source owned by one extraction.
type Session struct {
	URL      string
	Duration float64
	Width    int
	Height   int

	el      Element
	release sync.Once
}

// Release clears the source. Only the first call has any effect.
func (s *Session) Release() {
	s.release.Do(func() {
		s.el.SetSource("")
		metrics.MediaSessionsActive.Dec()
		logging.Debug("Released media session for %s", s.URL)
	})
}

// Loader opens media sources.
type Loader struct {
	newElement ElementFactory
}

// NewLoader creates a Loader that builds one element per Open call.
func NewLoader(factory ElementFactory) *Loader {
	return &Loader{newElement: factory}
}

// Open loads url and waits until it is seek-ready. On timeout, load error
// or cancellation the source is cleared before Open returns.
func (l *Loader) Open(ctx context.Context, url string, timeout time.Duration) (*Session, error) {
	start := time.Now()
	defer func() {
		metrics.PhaseDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	el := l.newElement()
	el.SetSource(url)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	events := el.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				el.SetSource("")
				return nil, fmt.Errorf("%w: %s: event stream closed", ErrLoad, url)
			}
			switch ev.Type {
			case EventReady:
				w, h := el.NaturalSize()
				s := &Session{
					URL:      url,
					Duration: el.Duration(),
					Width:    w,
					Height:   h,
					el:       el,
				}
				metrics.MediaSessionsActive.Inc()
				logging.Debug("Media ready in %v: %s (%.3fs, %dx%d)", time.Since(start), url, s.Duration, w, h)
				return s, nil
			case EventError:
				el.SetSource("")
				return nil, fmt.Errorf("%w: %s: %v", ErrLoad, url, ev.Err)
			default:
				logging.Debug("Ignoring %s event while loading %s", ev.Type, url)
			}
		case <-timer.C:
			el.SetSource("")
			return nil, fmt.Errorf("%w after %v: %s", ErrLoadTimeout, timeout, url)
		case <-ctx.Done():
			el.SetSource("")
			return nil, ctx.Err()
		}
	}
}
