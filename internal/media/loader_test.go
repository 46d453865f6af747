package media_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"video-thumbnail/internal/media"
	"video-thumbnail/internal/media/mediatest"
)

const testURL = "http://example.com/video.mp4"

func TestLoaderOpen(t *testing.T) {
	f := mediatest.NewFactory(mediatest.Script{Duration: 120, Width: 1920, Height: 1080})
	l := media.NewLoader(f.New)

	s, err := l.Open(context.Background(), testURL, time.Second)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Release()

	if s.URL != testURL || s.Duration != 120 || s.Width != 1920 || s.Height != 1080 {
		t.Errorf("unexpected session %+v", s)
	}
	if f.Created() != 1 {
		t.Errorf("created %d elements, want 1", f.Created())
	}
	if got := f.Last().Clears(); got != 0 {
		t.Errorf("source cleared %d times before release", got)
	}
}

func TestLoaderTimeout(t *testing.T) {
	f := mediatest.NewFactory(mediatest.Script{NeverReady: true})
	l := media.NewLoader(f.New)

	start := time.Now()
	s, err := l.Open(context.Background(), testURL, 10*time.Millisecond)
	if !errors.Is(err, media.ErrLoadTimeout) {
		t.Fatalf("Open error = %v, want ErrLoadTimeout", err)
	}
	if s != nil {
		t.Error("expected nil session on timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}

	el := f.Last()
	if el.Clears() != 1 {
		t.Errorf("source cleared %d times, want 1", el.Clears())
	}
	sources := el.Sources()
	if sources[len(sources)-1] != "" {
		t.Errorf("last source = %q, want cleared", sources[len(sources)-1])
	}
}

func TestLoaderError(t *testing.T) {
	loadErr := errors.New("404 not found")
	f := mediatest.NewFactory(mediatest.Script{LoadErr: loadErr})
	l := media.NewLoader(f.New)

	_, err := l.Open(context.Background(), testURL, time.Second)
	if !errors.Is(err, media.ErrLoad) {
		t.Fatalf("Open error = %v, want ErrLoad", err)
	}
	if f.Last().Clears() != 1 {
		t.Error("source should be cleared after a load error")
	}
}

func TestLoaderContextCanceled(t *testing.T) {
	f := mediatest.NewFactory(mediatest.Script{NeverReady: true})
	l := media.NewLoader(f.New)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Open(ctx, testURL, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Open error = %v, want context.Canceled", err)
	}
	if f.Last().Clears() != 1 {
		t.Error("source should be cleared on cancellation")
	}
}

func TestSessionReleaseOnce(t *testing.T) {
	f := mediatest.NewFactory(mediatest.Script{Duration: 10, Width: 64, Height: 48})
	l := media.NewLoader(f.New)

	s, err := l.Open(context.Background(), testURL, time.Second)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	s.Release()
	s.Release()

	if got := f.Last().Clears(); got != 1 {
		t.Errorf("source cleared %d times, want 1", got)
	}
}
