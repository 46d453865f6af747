// Package capability detects, once per process, whether the runtime can
// capture frames and persist thumbnails.
package capability

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/metrics"
)

// ErrUnsupportedRuntime is returned by extraction when frame capture is
// unavailable.
var ErrUnsupportedRuntime = errors.New("frame capture is not supported by this runtime")

const selfTestKeyPrefix = "__thumbnail_probe__"

// Support is the immutable result of probing the runtime.
type Support struct {
	CanCapture bool `json:"canCapture"`
	CanCache   bool `json:"canCache"`
}

// Config holds the inputs of a Probe.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// Backend is self-tested for CanCache. Nil means caching is unavailable.
	Backend cache.Backend
	// LookPath resolves binaries; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Probe computes Support lazily on first use and memoizes it.
type Probe struct {
	cfg     Config
	support func() Support
}

// NewProbe creates a Probe. Nothing is probed until Support is called.
func NewProbe(cfg Config) *Probe {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.LookPath == nil {
		cfg.LookPath = exec.LookPath
	}

	p := &Probe{cfg: cfg}
	p.support = sync.OnceValue(p.probe)
	return p
}

// Support returns the probed capabilities. Every call returns the same value.
func (p *Probe) Support() Support {
	return p.support()
}

func (p *Probe) probe() Support {
	s := Support{
		CanCapture: p.canCapture(),
		CanCache:   p.canCache(),
	}

	metrics.SetCapability("capture", s.CanCapture)
	metrics.SetCapability("cache", s.CanCache)

	logging.Info("Capability probe: capture=%v, cache=%v", s.CanCapture, s.CanCache)
	return s
}

func (p *Probe) canCapture() bool {
	for _, bin := range []string{p.cfg.FFmpegPath, p.cfg.FFprobePath} {
		path, err := p.cfg.LookPath(bin)
		if err != nil {
			logging.Warn("Frame capture unavailable: %s not found: %v", bin, err)
			return false
		}
		logging.Debug("Capability probe: %s resolved to %s", bin, path)
	}
	return true
}

// canCache runs a write, read, delete cycle against a throwaway key.
func (p *Probe) canCache() bool {
	if p.cfg.Backend == nil {
		logging.Info("No cache backend configured, caching disabled")
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := selfTestKeyPrefix + uuid.NewString()
	const value = "ok"

	defer func() {
		if err := p.cfg.Backend.Delete(ctx, key); err != nil {
			logging.Warn("Cache self-test cleanup failed for %s: %v", key, err)
		}
	}()

	if err := p.cfg.Backend.Set(ctx, key, value); err != nil {
		logging.Warn("Cache self-test write failed, caching disabled: %v", err)
		return false
	}

	got, err := p.cfg.Backend.Get(ctx, key)
	if err != nil {
		logging.Warn("Cache self-test read failed, caching disabled: %v", err)
		return false
	}
	if got != value {
		logging.Warn("Cache self-test read back %q, caching disabled", got)
		return false
	}
	return true
}
