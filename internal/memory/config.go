package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"video-thumbnail/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for ffmpeg subprocesses and libvips.
const DefaultMemoryRatio = 0.85

// Source values reported in ConfigResult.
const (
	SourceGOMEMLIMIT = "GOMEMLIMIT"
	SourceContainer  = "MEMORY_LIMIT"
	SourceNone       = "none"
)

// ConfigResult describes how GOMEMLIMIT was set up.
type ConfigResult struct {
	Configured     bool
	Source         string
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configure sets GOMEMLIMIT to ratio of containerLimit. An explicit
// GOMEMLIMIT environment variable takes precedence, and a zero
// containerLimit leaves the runtime untouched. Call it before significant
// allocations.
func Configure(containerLimit int64, ratio float64) ConfigResult {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := ConfigResult{Source: SourceGOMEMLIMIT}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	if containerLimit <= 0 {
		logging.Debug("No container memory limit, GOMEMLIMIT not configured")
		return ConfigResult{Source: SourceNone}
	}

	if !(ratio > 0 && ratio <= 1) {
		if ratio != 0 {
			logging.Warn("Memory ratio %v out of range (0.0-1.0), using default %.2f", ratio, DefaultMemoryRatio)
		}
		ratio = DefaultMemoryRatio
	}

	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(containerLimit))

	return ConfigResult{
		Configured:     true,
		Source:         SourceContainer,
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
