package capability

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"video-thumbnail/internal/cache"
)

func lookPathFound(file string) (string, error) {
	return "/usr/bin/" + file, nil
}

// recordingBackend wraps a MemoryBackend and records keys and failures.
type recordingBackend struct {
	*cache.MemoryBackend
	mu       sync.Mutex
	setKeys  []string
	failSet  bool
	failGet  bool
	mangle   bool
}

func (r *recordingBackend) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	r.setKeys = append(r.setKeys, key)
	r.mu.Unlock()
	if r.failSet {
		return cache.ErrQuotaExceeded
	}
	if r.mangle {
		value += "x"
	}
	return r.MemoryBackend.Set(ctx, key, value)
}

func (r *recordingBackend) Get(ctx context.Context, key string) (string, error) {
	if r.failGet {
		return "", errors.New("read failed")
	}
	return r.MemoryBackend.Get(ctx, key)
}

func TestProbeCapture(t *testing.T) {
	tests := []struct {
		name     string
		lookPath func(string) (string, error)
		want     bool
	}{
		{"both binaries found", lookPathFound, true},
		{
			"ffprobe missing",
			func(file string) (string, error) {
				if file == "ffprobe" {
					return "", errors.New("not found")
				}
				return "/usr/bin/" + file, nil
			},
			false,
		},
		{
			"nothing found",
			func(string) (string, error) { return "", errors.New("not found") },
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbe(Config{LookPath: tt.lookPath})
			if got := p.Support().CanCapture; got != tt.want {
				t.Errorf("CanCapture = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProbeUsesConfiguredBinaries(t *testing.T) {
	var looked []string
	p := NewProbe(Config{
		FFmpegPath:  "/opt/ff/ffmpeg",
		FFprobePath: "/opt/ff/ffprobe",
		LookPath: func(file string) (string, error) {
			looked = append(looked, file)
			return file, nil
		},
	})
	p.Support()

	if len(looked) != 2 || looked[0] != "/opt/ff/ffmpeg" || looked[1] != "/opt/ff/ffprobe" {
		t.Errorf("looked up %v, want configured paths", looked)
	}
}

func TestProbeCache(t *testing.T) {
	tests := []struct {
		name    string
		backend *recordingBackend
		want    bool
	}{
		{"healthy backend", &recordingBackend{MemoryBackend: cache.NewMemoryBackend(0)}, true},
		{"write fails", &recordingBackend{MemoryBackend: cache.NewMemoryBackend(0), failSet: true}, false},
		{"read fails", &recordingBackend{MemoryBackend: cache.NewMemoryBackend(0), failGet: true}, false},
		{"value mismatch", &recordingBackend{MemoryBackend: cache.NewMemoryBackend(0), mangle: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbe(Config{LookPath: lookPathFound, Backend: tt.backend})
			if got := p.Support().CanCache; got != tt.want {
				t.Errorf("CanCache = %v, want %v", got, tt.want)
			}

			if len(tt.backend.setKeys) != 1 {
				t.Fatalf("expected exactly one self-test write, got %d", len(tt.backend.setKeys))
			}
			key := tt.backend.setKeys[0]
			if !strings.HasPrefix(key, selfTestKeyPrefix) {
				t.Errorf("self-test key %q lacks prefix %q", key, selfTestKeyPrefix)
			}
			stats, _ := tt.backend.Stats(context.Background())
			if stats.Entries != 0 {
				t.Errorf("self-test key was not cleaned up, %d entries remain", stats.Entries)
			}
		})
	}
}

func TestProbeNilBackend(t *testing.T) {
	p := NewProbe(Config{LookPath: lookPathFound})
	if p.Support().CanCache {
		t.Error("CanCache should be false without a backend")
	}
}

func TestProbeMemoized(t *testing.T) {
	calls := 0
	backend := &recordingBackend{MemoryBackend: cache.NewMemoryBackend(0)}
	p := NewProbe(Config{
		Backend: backend,
		LookPath: func(file string) (string, error) {
			calls++
			return file, nil
		},
	})

	var wg sync.WaitGroup
	results := make([]Support, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = p.Support()
		}(i)
	}
	wg.Wait()

	if calls != 2 {
		t.Errorf("LookPath called %d times, want 2 (one probe)", calls)
	}
	if len(backend.setKeys) != 1 {
		t.Errorf("self-test ran %d times, want 1", len(backend.setKeys))
	}
	for i, r := range results {
		if r != results[0] {
			t.Errorf("result %d = %+v differs from %+v", i, r, results[0])
		}
	}
}
