package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"video-thumbnail/internal/batch"
	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/encoder"
	"video-thumbnail/internal/handlers"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/media"
	"video-thumbnail/internal/memory"
	"video-thumbnail/internal/metrics"
	"video-thumbnail/internal/middleware"
	"video-thumbnail/internal/startup"
	"video-thumbnail/internal/thumbnail"
	"video-thumbnail/internal/workers"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	startup.LogMemoryConfig(memory.Configure(config.MemoryLimit, config.MemoryRatio))
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, runtime.Version())

	// Cache backend. Caching is optional: the service runs without it.
	var backend cache.Backend
	if config.CacheDirWritable {
		cacheStart := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		backend, err = cache.Open(ctx, config.CacheConfig())
		cancel()
		startup.LogCacheInit(config.CacheBackend, time.Since(cacheStart), err)
		if err != nil {
			backend = nil
		}
	} else {
		startup.LogCacheInit(config.CacheBackend, 0, errors.New("cache directory is not writable"))
	}

	probeConfig := config.CapabilityConfig()
	probeConfig.Backend = backend
	probe := capability.NewProbe(probeConfig)
	support := probe.Support()

	resizer := encoder.NewVipsResizer(config.VipsEnabled)
	startup.LogCapabilities(support, config.FFmpegPath, resizer.Available())

	handles := encoder.NewHandleRegistry(config.HandleBaseURL, encoder.HandleLimits{
		MaxCount: config.HandleMaxCount,
		TTL:      config.HandleTTL,
	})
	stopPruning := make(chan struct{})
	if config.HandleTTL > 0 {
		go handles.PruneEvery(max(config.HandleTTL/2, time.Second), stopPruning)
	}
	thumbCache := cache.New(backend, support.CanCache)

	engine := thumbnail.NewEngine(thumbnail.Config{
		Probe: probe,
		Cache: thumbCache,
		Loader: media.NewLoader(media.NewFFmpegFactory(media.FFmpegConfig{
			FFmpegPath:  config.FFmpegPath,
			FFprobePath: config.FFprobePath,
		})),
		Encoder:   encoder.New(resizer, handles),
		Namespace: config.DefaultNamespace,
	})

	runner := batch.NewRunner(batch.Config{
		Extractor: engine,
		Workers:   workers.ForIO(batch.MaxWorkers),
		Gate:      monitor,
	})

	h := handlers.New(handlers.Config{
		Engine:  engine,
		Batch:   runner,
		Cache:   thumbCache,
		Handles: handles,
		Resizer: resizer,
	})

	router := newRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	limiter := middleware.NewRateLimiter(config.RateLimit, config.RateBurst)

	var handler http.Handler = router
	handler = limiter.Middleware(handler)
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	handler = middleware.RequestID(handler)

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(thumbCache, time.Minute)
		collector.Start()

		metricsRouter := http.NewServeMux()
		metricsRouter.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              ":" + config.MetricsPort,
			Handler:           metricsRouter,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go handleShutdown(done, shutdownTargets{
		server:        srv,
		metricsServer: metricsSrv,
		collector:     collector,
		monitor:       monitor,
		handles:       handles,
		stopPruning:   stopPruning,
		backend:       backend,
		timeout:       config.ShutdownTimeout,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		Workers:         runner.Workers(),
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("Server error: %v", err)
	}
	<-done
}

func newRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnails", h.GetThumbnails).Methods("GET")
	api.HandleFunc("/thumbnails/batch", h.PostBatch).Methods("POST")
	api.HandleFunc("/capabilities", h.GetCapabilities).Methods("GET")
	api.HandleFunc("/cache", h.ClearCache).Methods("DELETE")
	api.HandleFunc("/cache/{namespace}", h.ClearCache).Methods("DELETE")
	api.HandleFunc("/handles/{id}", h.GetHandle).Methods("GET", "HEAD")
	api.HandleFunc("/handles/{id}", h.RevokeHandle).Methods("DELETE")

	return r
}

type shutdownTargets struct {
	server        *http.Server
	metricsServer *http.Server
	collector     *metrics.Collector
	monitor       *memory.Monitor
	handles       *encoder.HandleRegistry
	stopPruning   chan struct{}
	backend       cache.Backend
	timeout       time.Duration
}

func handleShutdown(done chan<- struct{}, t shutdownTargets) {
	defer close(done)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := t.server.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if t.metricsServer != nil {
		if err := t.metricsServer.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
		t.collector.Stop()
		startup.LogShutdownStepComplete("Metrics server stopped")
	}

	startup.LogShutdownStep("Stopping memory monitor")
	t.monitor.Stop()

	close(t.stopPruning)
	n := t.handles.RevokeAll()
	startup.LogShutdownStepComplete(fmt.Sprintf("Revoked %d handles", n))

	if t.backend != nil {
		startup.LogShutdownStep("Closing cache backend")
		if err := t.backend.Close(); err != nil {
			logging.Warn("Cache close error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Cache backend closed")
		}
	}

	encoder.ShutdownVips()
	startup.LogShutdownComplete()
}
