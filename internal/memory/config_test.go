package memory

import (
	"math"
	"runtime/debug"
	"testing"
)

func restoreMemoryLimit(t *testing.T) {
	t.Helper()
	original := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(original) })
}

func TestConfigure(t *testing.T) {
	restoreMemoryLimit(t)
	t.Setenv("GOMEMLIMIT", "")

	tests := []struct {
		name      string
		limit     int64
		ratio     float64
		wantRatio float64
		wantSrc   string
	}{
		{name: "no container limit", limit: 0, ratio: 0.5, wantSrc: SourceNone},
		{name: "explicit ratio", limit: 1 << 30, ratio: 0.5, wantRatio: 0.5, wantSrc: SourceContainer},
		{name: "zero ratio uses default", limit: 1 << 30, ratio: 0, wantRatio: DefaultMemoryRatio, wantSrc: SourceContainer},
		{name: "ratio above one uses default", limit: 1 << 30, ratio: 1.5, wantRatio: DefaultMemoryRatio, wantSrc: SourceContainer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Configure(tt.limit, tt.ratio)
			if got.Source != tt.wantSrc {
				t.Fatalf("Source = %q, want %q", got.Source, tt.wantSrc)
			}
			if tt.wantSrc == SourceNone {
				if got.Configured {
					t.Error("Configured should be false without a limit")
				}
				return
			}
			if got.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", got.Ratio, tt.wantRatio)
			}
			want := int64(float64(tt.limit) * tt.wantRatio)
			if got.GoMemLimit != want {
				t.Errorf("GoMemLimit = %d, want %d", got.GoMemLimit, want)
			}
			if applied := debug.SetMemoryLimit(-1); applied != want {
				t.Errorf("runtime limit = %d, want %d", applied, want)
			}
		})
	}
}

func TestConfigureEnvWins(t *testing.T) {
	restoreMemoryLimit(t)
	t.Setenv("GOMEMLIMIT", "512MiB")
	debug.SetMemoryLimit(512 << 20)

	got := Configure(1<<30, 0.5)
	if got.Source != SourceGOMEMLIMIT {
		t.Fatalf("Source = %q, want %q", got.Source, SourceGOMEMLIMIT)
	}
	if got.GoMemLimit != 512<<20 {
		t.Errorf("GoMemLimit = %d, want %d", got.GoMemLimit, 512<<20)
	}
	if got.ContainerLimit != 0 {
		t.Error("container limit should be ignored when GOMEMLIMIT is set")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{100 << 20, "100.0 MiB"},
		{3 << 30, "3.0 GiB"},
		{math.MaxInt64, "8.0 EiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
