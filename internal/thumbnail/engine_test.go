package thumbnail

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/media/mediatest"
)

const testURL = "http://example.com/videos/clip.mp4"

type staticProbe capability.Support

func (s staticProbe) Support() capability.Support { return capability.Support(s) }

var fullSupport = capability.Support{CanCapture: true, CanCache: true}

type testEngine struct {
	*Engine
	factory *mediatest.Factory
	backend *cache.MemoryBackend
	handles *encoder.HandleRegistry
}

func newTestEngine(t *testing.T, script mediatest.Script, support capability.Support, maxBytes int64) *testEngine {
	t.Helper()
	if script.Duration == 0 {
		script.Duration = 100
	}
	if script.Width == 0 {
		script.Width, script.Height = 1920, 1080
	}

	f := mediatest.NewFactory(script)
	backend := cache.NewMemoryBackend(maxBytes)
	handles := encoder.NewHandleRegistry("/api/handles/", encoder.HandleLimits{})

	e := NewEngine(Config{
		Probe:   staticProbe(support),
		Cache:   cache.New(backend, support.CanCache),
		Loader:  media.NewLoader(f.New),
		Encoder: encoder.New(nil, handles),
	})
	return &testEngine{Engine: e, factory: f, backend: backend, handles: handles}
}

func offsetsOf(results []Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Offset
	}
	return out
}

func countCalls(calls []string, prefix string) int {
	n := 0
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func TestExtractPartialFailure(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{
		FailSeek: func(t float64) error {
			if math.Abs(t-50) < 1e-9 {
				return errors.New("corrupt frame")
			}
			return nil
		},
	}, fullSupport, 0)

	req := Options{Timestamps: []float64{0.1, 0.3, 0.5, 0.7, 0.9}, Size: 120}.Resolve(testURL, "")
	results, err := te.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if got, want := offsetsOf(results), []float64{0.1, 0.3, 0.7, 0.9}; !reflect.DeepEqual(got, want) {
		t.Errorf("offsets = %v, want %v", got, want)
	}
	if te.factory.Created() != 1 {
		t.Errorf("opened %d sessions, want 1", te.factory.Created())
	}

	el := te.factory.Last()
	if el.Clears() != 1 {
		t.Errorf("session released %d times, want 1", el.Clears())
	}
	calls := el.Calls()
	if n := countCalls(calls, "seek:"); n != 5 {
		t.Errorf("attempted %d seeks, want 5", n)
	}
	if calls[len(calls)-1] != "clear" {
		t.Errorf("last call = %q, want release after all offsets", calls[len(calls)-1])
	}

	for _, r := range results {
		if r.Cached {
			t.Error("fresh result marked cached")
		}
		if r.ByteSize != len(r.Payload) {
			t.Errorf("ByteSize = %d, want %d", r.ByteSize, len(r.Payload))
		}
		if math.Abs(r.SeekTime-r.Offset*100) > 1e-9 {
			t.Errorf("SeekTime = %v for offset %v", r.SeekTime, r.Offset)
		}
	}
}

func TestExtractCacheIdempotence(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	req := Options{Timestamps: []float64{0.25, 10}, Size: 64, Cache: true}.Resolve(testURL, "")

	first, err := te.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	if te.factory.Created() != 1 {
		t.Fatalf("first call opened %d sessions, want 1", te.factory.Created())
	}

	second, err := te.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}
	if te.factory.Created() != 1 {
		t.Errorf("second call opened the media again (%d loads)", te.factory.Created())
	}

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d and %d results, want 2 each", len(first), len(second))
	}
	for i := range first {
		if first[i].Payload != second[i].Payload {
			t.Errorf("payload %d differs between calls", i)
		}
		if !second[i].Cached {
			t.Errorf("result %d should come from cache", i)
		}
	}

	if second[0].SeekTime != UnknownSeekTime {
		t.Errorf("cached fractional SeekTime = %v, want %v", second[0].SeekTime, UnknownSeekTime)
	}
	if second[1].SeekTime != 10 {
		t.Errorf("cached absolute SeekTime = %v, want 10", second[1].SeekTime)
	}
	if second[0].Format.MimeType != encoder.MimePNG {
		t.Errorf("cached format = %q, want %q", second[0].Format.MimeType, encoder.MimePNG)
	}
	if second[0].Format.Quality != 0 {
		t.Errorf("cached format quality = %v, want it omitted", second[0].Format.Quality)
	}
}

func TestExtractPartialCacheHitOpensOnce(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	ctx := context.Background()

	if _, err := te.Extract(ctx, Options{Time: floatPtr(0.5), Size: 64, Cache: true}.Resolve(testURL, "")); err != nil {
		t.Fatalf("warm-up Extract failed: %v", err)
	}

	results, err := te.Extract(ctx, Options{Timestamps: []float64{0.5, 0.6, 0.7}, Size: 64, Cache: true}.Resolve(testURL, ""))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(results) != 3 || !results[0].Cached || results[1].Cached {
		t.Fatalf("unexpected results %+v", results)
	}
	if te.factory.Created() != 2 {
		t.Errorf("loads = %d, want 2 (warm-up plus one shared session)", te.factory.Created())
	}
	if seeks := countCalls(te.factory.Last().Calls(), "seek:"); seeks != 2 {
		t.Errorf("seeks = %d, want 2 for the misses", seeks)
	}
}

func TestExtractLoadTimeout(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{NeverReady: true}, fullSupport, 0)
	req := Options{Timeout: 10}.Resolve(testURL, "")

	results, err := te.Extract(context.Background(), req)
	if !errors.Is(err, media.ErrLoadTimeout) {
		t.Fatalf("Extract error = %v, want ErrLoadTimeout", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if te.factory.Last().Clears() != 1 {
		t.Error("source should be cleared when the timeout is reported")
	}
}

func TestExtractLoadError(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{LoadErr: errors.New("unsupported codec")}, fullSupport, 0)

	results, err := te.Extract(context.Background(), Options{}.Resolve(testURL, ""))
	if !errors.Is(err, media.ErrLoad) {
		t.Fatalf("Extract error = %v, want ErrLoad", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestExtractUnsupportedRuntime(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, capability.Support{CanCache: true}, 0)

	results, err := te.Extract(context.Background(), Options{}.Resolve(testURL, ""))
	if !errors.Is(err, capability.ErrUnsupportedRuntime) {
		t.Fatalf("Extract error = %v, want ErrUnsupportedRuntime", err)
	}
	if len(results) != 0 || te.factory.Created() != 0 {
		t.Error("unsupported runtime should short-circuit before any media work")
	}
}

func TestExtractCacheUnavailable(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, capability.Support{CanCapture: true}, 0)
	req := Options{Size: 64, Cache: true}.Resolve(testURL, "")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := te.Extract(ctx, req); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
	}
	if te.factory.Created() != 2 {
		t.Errorf("loads = %d, want 2 with caching disabled", te.factory.Created())
	}
	if stats, _ := te.backend.Stats(ctx); stats.Entries != 0 {
		t.Errorf("backend has %d entries, want none", stats.Entries)
	}
}

func TestExtractCacheWriteFailureKeepsResult(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 16)

	results, err := te.Extract(context.Background(), Options{Size: 64, Cache: true}.Resolve(testURL, ""))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 despite the failed cache write", len(results))
	}
}

func TestExtractHandleReference(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	ctx := context.Background()

	handleReq := Options{Size: 64, Cache: true, Type: "objectURL"}.Resolve(testURL, "")
	results, err := te.Extract(ctx, handleReq)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(results) != 1 || !strings.HasPrefix(results[0].Payload, "/api/handles/") {
		t.Fatalf("unexpected results %+v", results)
	}
	if stats, _ := te.backend.Stats(ctx); stats.Entries != 0 {
		t.Error("handle references must not be cached")
	}

	// Populate the cache with an embedded payload, then ask for a handle.
	if _, err := te.Extract(ctx, Options{Size: 64, Cache: true}.Resolve(testURL, "")); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	loads := te.factory.Created()

	results, err = te.Extract(ctx, handleReq)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if te.factory.Created() != loads {
		t.Error("cached entry should be served without loading media")
	}
	if !results[0].Cached {
		t.Error("result should be marked cached")
	}
	h, ok := te.handles.Resolve(results[0].Payload)
	if !ok || h.MimeType != encoder.MimePNG || len(h.Data) == 0 {
		t.Errorf("cached handle did not resolve: %+v", h)
	}
}

func TestExtractAllOffsetsFailReturnsEmpty(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	te.Engine.encoder = encoder.New(nil, nil)

	results, err := te.Extract(context.Background(), Options{Timestamps: []float64{0.1, 0.2}, Type: "objectURL"}.Resolve(testURL, ""))
	if err != nil {
		t.Fatalf("Extract error = %v, want nil for per-offset failures", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if te.factory.Last().Clears() != 1 {
		t.Error("session should be released once")
	}
}

func TestExtractCanceledDuringCapture(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{StallSeeks: true}, fullSupport, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := te.Extract(ctx, Options{}.Resolve(testURL, ""))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Extract error = %v, want context.DeadlineExceeded", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
	if te.factory.Last().Clears() != 1 {
		t.Error("session should be released on cancellation")
	}
}

func TestClearCacheNamespaces(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	ctx := context.Background()

	reqA := Options{Size: 64, Cache: true, CacheKeyPrefix: "alpha"}.Resolve(testURL, "")
	reqB := Options{Size: 64, Cache: true, CacheKeyPrefix: "beta"}.Resolve(testURL, "")

	for _, req := range []Request{reqA, reqB} {
		if _, err := te.Extract(ctx, req); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
	}
	if te.factory.Created() != 2 {
		t.Fatalf("namespaces should not share entries, loads = %d", te.factory.Created())
	}

	if n := te.ClearCache(ctx, "alpha"); n != 1 {
		t.Errorf("ClearCache(alpha) = %d, want 1", n)
	}

	results, _ := te.Extract(ctx, reqB)
	if len(results) != 1 || !results[0].Cached {
		t.Error("beta should still be cached")
	}
	results, _ = te.Extract(ctx, reqA)
	if len(results) != 1 || results[0].Cached {
		t.Error("alpha should have been cleared")
	}

	if n := te.ClearCache(ctx, ""); n != 0 {
		t.Errorf("ClearCache(default) = %d, want 0", n)
	}
}

func TestClearCacheLeavesNestedNamespace(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	ctx := context.Background()

	reqA := Options{Size: 64, Cache: true, CacheKeyPrefix: "a"}.Resolve(testURL, "")
	reqNested := Options{Size: 64, Cache: true, CacheKeyPrefix: "a-cache-b"}.Resolve(testURL, "")
	for _, req := range []Request{reqA, reqNested} {
		if _, err := te.Extract(ctx, req); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
	}

	if n := te.ClearCache(ctx, "a"); n != 1 {
		t.Errorf("ClearCache(a) = %d, want 1", n)
	}
	if _, err := te.backend.Get(ctx, cache.Key("a-cache-b", 64, DefaultTime, testURL)); err != nil {
		t.Errorf("entry of namespace a-cache-b was removed: %v", err)
	}
	results, _ := te.Extract(ctx, reqNested)
	if len(results) != 1 || !results[0].Cached {
		t.Error("a-cache-b should still be cached")
	}

	if n := te.ClearCache(ctx, "a|b"); n != 0 {
		t.Errorf("ClearCache of an invalid namespace = %d, want 0", n)
	}
}

func TestExtractHandleReferenceRespectsLimits(t *testing.T) {
	handles := encoder.NewHandleRegistry("/api/handles/", encoder.HandleLimits{MaxCount: 5})
	e := NewEngine(Config{
		Probe:   staticProbe(fullSupport),
		Cache:   cache.New(cache.NewMemoryBackend(0), true),
		Loader:  media.NewLoader(mediatest.NewFactory(mediatest.Script{Duration: 100, Width: 320, Height: 240}).New),
		Encoder: encoder.New(nil, handles),
	})
	req := Options{Size: 32, Type: "objectURL"}.Resolve(testURL, "")

	var last string
	for i := 0; i < 50; i++ {
		results, err := e.Extract(context.Background(), req)
		if err != nil || len(results) != 1 {
			t.Fatalf("Extract %d = (%d results, %v)", i, len(results), err)
		}
		last = results[0].Payload
	}

	if handles.Len() != 5 {
		t.Errorf("live handles = %d after 50 unrevoked requests, want 5", handles.Len())
	}
	if _, ok := handles.Resolve(last); !ok {
		t.Error("newest handle should resolve")
	}
}

func TestExtractHugeTimeout(t *testing.T) {
	te := newTestEngine(t, mediatest.Script{}, fullSupport, 0)
	req := Options{Timeout: 1 << 62}.Resolve(testURL, "")

	results, err := te.Extract(context.Background(), req)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestDescribe(t *testing.T) {
	got := Describe(Options{Timestamps: []float64{0.1, 2}, Size: 64}.Resolve("u", ""))
	want := "u [0.1,2] 64px image/png dataURI cache=false"
	if got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}
