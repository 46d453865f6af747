package workers

import (
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
)

// EnvOverride names the environment variable that pins the worker count.
const EnvOverride = "THUMBNAIL_WORKERS"

// Kind describes where a workload spends its time.
type Kind int

const (
	// CPU is decode and encode work.
	CPU Kind = iota
	// IO is waiting on remote media, ffmpeg subprocesses or the cache.
	IO
	// Mixed is a full extraction: load, capture, encode and store.
	Mixed
)

func (k Kind) multiplier() float64 {
	switch k {
	case IO:
		return 2.0
	case Mixed:
		return 1.5
	default:
		return 1.0
	}
}

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Mixed:
		return "mixed"
	default:
		return "cpu"
	}
}

var configured atomic.Int64

// SetOverride pins the worker count from configuration. It wins over the
// environment variable. Zero or a negative value clears it.
func SetOverride(n int) {
	if n < 0 {
		n = 0
	}
	configured.Store(int64(n))
}

// override returns the pinned worker count, or 0.
func override() int {
	if n := configured.Load(); n > 0 {
		return int(n)
	}
	if v := os.Getenv(EnvOverride); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// For returns the worker count for a workload of kind k, capped at limit
// (0 means uncapped). It scales GOMAXPROCS, which follows container CPU
// limits, unless an override is set.
func For(k Kind, limit int) int {
	n := override()
	if n == 0 {
		n = max(int(float64(runtime.GOMAXPROCS(0))*k.multiplier()), 1)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU returns the worker count for CPU-bound work.
func ForCPU(limit int) int { return For(CPU, limit) }

// ForIO returns the worker count for I/O-bound work.
func ForIO(limit int) int { return For(IO, limit) }

// ForMixed returns the worker count for mixed work.
func ForMixed(limit int) int { return For(Mixed, limit) }
