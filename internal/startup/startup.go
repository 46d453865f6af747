package startup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"video-thumbnail/internal/cache"
	"video-thumbnail/internal/capability"
	"video-thumbnail/internal/logging"
	"video-thumbnail/internal/memory"
	"video-thumbnail/internal/workers"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Configuration keys. Each is also read from the upper-cased environment
// variable of the same name.
const (
	KeyPort             = "port"
	KeyMetricsPort      = "metrics_port"
	KeyMetricsEnabled   = "metrics_enabled"
	KeyCacheBackend     = "cache_backend"
	KeyCacheDir         = "cache_dir"
	KeyCacheMaxBytes    = "cache_max_bytes"
	KeyRedisAddr        = "redis_addr"
	KeyRedisPassword    = "redis_password"
	KeyRedisDB          = "redis_db"
	KeyFFmpegPath       = "ffmpeg_path"
	KeyFFprobePath      = "ffprobe_path"
	KeyDefaultNamespace = "default_namespace"
	KeyWorkers          = "thumbnail_workers"
	KeyRateLimit        = "rate_limit"
	KeyRateBurst        = "rate_burst"
	KeyLogLevel         = "log_level"
	KeyLogHealthChecks  = "log_health_checks"
	KeyHandleBaseURL    = "handle_base_url"
	KeyHandleMaxCount   = "handle_max_count"
	KeyHandleTTL        = "handle_ttl"
	KeyVipsEnabled      = "vips_enabled"
	KeyMemoryLimit      = "memory_limit"
	KeyMemoryRatio      = "memory_ratio"
	KeyShutdownTimeout  = "shutdown_timeout"
)

// Config holds all application configuration
type Config struct {
	Port           string
	MetricsPort    string
	MetricsEnabled bool

	CacheBackend  string
	CacheDir      string
	CacheMaxBytes int64
	Redis         cache.RedisOptions

	FFmpegPath       string
	FFprobePath      string
	DefaultNamespace string
	Workers          int
	HandleBaseURL    string
	HandleMaxCount   int
	HandleTTL        time.Duration
	VipsEnabled      bool

	RateLimit float64
	RateBurst int

	LogLevel        string
	LogHealthChecks bool

	MemoryLimit     int64
	MemoryRatio     float64
	ShutdownTimeout time.Duration

	// CacheDirWritable is false when a file-backed cache has no usable
	// directory. The service still starts with caching unavailable.
	CacheDirWritable bool
}

// CacheConfig returns the cache backend settings.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Kind:     c.CacheBackend,
		Dir:      c.CacheDir,
		MaxBytes: c.CacheMaxBytes,
		Redis:    c.Redis,
	}
}

// CapabilityConfig returns the probe settings, without a backend.
func (c *Config) CapabilityConfig() capability.Config {
	return capability.Config{FFmpegPath: c.FFmpegPath, FFprobePath: c.FFprobePath}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyMetricsPort, "9090")
	v.SetDefault(KeyMetricsEnabled, true)
	v.SetDefault(KeyCacheBackend, cache.KindSQLite)
	v.SetDefault(KeyCacheDir, "/cache")
	v.SetDefault(KeyCacheMaxBytes, 0)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyFFmpegPath, "ffmpeg")
	v.SetDefault(KeyFFprobePath, "ffprobe")
	v.SetDefault(KeyDefaultNamespace, "video-thumbnail")
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyRateLimit, 20.0)
	v.SetDefault(KeyRateBurst, 40)
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogHealthChecks, true)
	v.SetDefault(KeyHandleBaseURL, "/api/handles/")
	v.SetDefault(KeyHandleMaxCount, 1000)
	v.SetDefault(KeyHandleTTL, 10*time.Minute)
	v.SetDefault(KeyVipsEnabled, true)
	v.SetDefault(KeyMemoryLimit, 0)
	v.SetDefault(KeyMemoryRatio, memory.DefaultMemoryRatio)
	v.SetDefault(KeyShutdownTimeout, 30*time.Second)
}

// NewViper returns a viper instance with defaults, environment binding and
// the optional CONFIG_FILE loaded. A .env file in the working directory is
// applied to the environment first.
func NewViper() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		logging.Info("  Loaded config file: %s", v.ConfigFileUsed())
	}
	return v, nil
}

// LoadConfig loads and validates configuration and prints the startup
// banner.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	v, err := NewViper()
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper builds a Config from v, logging every setting.
func FromViper(v *viper.Viper) (*Config, error) {
	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg := &Config{
		Port:           v.GetString(KeyPort),
		MetricsPort:    v.GetString(KeyMetricsPort),
		MetricsEnabled: v.GetBool(KeyMetricsEnabled),
		CacheBackend:   strings.ToLower(strings.TrimSpace(v.GetString(KeyCacheBackend))),
		CacheDir:       v.GetString(KeyCacheDir),
		CacheMaxBytes:  v.GetInt64(KeyCacheMaxBytes),
		Redis: cache.RedisOptions{
			Addr:     v.GetString(KeyRedisAddr),
			Password: v.GetString(KeyRedisPassword),
			DB:       v.GetInt(KeyRedisDB),
		},
		FFmpegPath:       v.GetString(KeyFFmpegPath),
		FFprobePath:      v.GetString(KeyFFprobePath),
		DefaultNamespace: v.GetString(KeyDefaultNamespace),
		Workers:          v.GetInt(KeyWorkers),
		HandleBaseURL:    v.GetString(KeyHandleBaseURL),
		HandleMaxCount:   v.GetInt(KeyHandleMaxCount),
		HandleTTL:        v.GetDuration(KeyHandleTTL),
		VipsEnabled:      v.GetBool(KeyVipsEnabled),
		RateLimit:        v.GetFloat64(KeyRateLimit),
		RateBurst:        v.GetInt(KeyRateBurst),
		LogLevel:         v.GetString(KeyLogLevel),
		LogHealthChecks:  v.GetBool(KeyLogHealthChecks),
		MemoryLimit:      v.GetInt64(KeyMemoryLimit),
		MemoryRatio:      v.GetFloat64(KeyMemoryRatio),
		ShutdownTimeout:  v.GetDuration(KeyShutdownTimeout),
	}

	if cfg.LogLevel != "" {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			logging.SetLevel(lvl)
		} else {
			logging.Warn("  Invalid LOG_LEVEL %q, keeping %s", cfg.LogLevel, logging.GetLevel())
		}
	}

	logging.Info("  PORT:                %s", cfg.Port)
	logging.Info("  METRICS_PORT:        %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", cfg.MetricsEnabled)
	logging.Info("  CACHE_BACKEND:       %s", cfg.CacheBackend)
	logging.Info("  CACHE_DIR:           %s", cfg.CacheDir)
	logging.Info("  CACHE_MAX_BYTES:     %d", cfg.CacheMaxBytes)
	if cfg.CacheBackend == cache.KindRedis {
		logging.Info("  REDIS_ADDR:          %s", cfg.Redis.Addr)
		logging.Info("  REDIS_DB:            %d", cfg.Redis.DB)
	}
	logging.Info("  FFMPEG_PATH:         %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", cfg.FFprobePath)
	logging.Info("  DEFAULT_NAMESPACE:   %s", cfg.DefaultNamespace)
	logging.Info("  THUMBNAIL_WORKERS:   %d", cfg.Workers)
	logging.Info("  HANDLE_BASE_URL:     %s", cfg.HandleBaseURL)
	logging.Info("  HANDLE_MAX_COUNT:    %d", cfg.HandleMaxCount)
	logging.Info("  HANDLE_TTL:          %v", cfg.HandleTTL)
	logging.Info("  VIPS_ENABLED:        %v", cfg.VipsEnabled)
	logging.Info("  RATE_LIMIT:          %.1f/s (burst %d)", cfg.RateLimit, cfg.RateBurst)
	logging.Info("  LOG_HEALTH_CHECKS:   %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
	logging.Info("  SHUTDOWN_TIMEOUT:    %v", cfg.ShutdownTimeout)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	workers.SetOverride(cfg.Workers)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	switch cfg.CacheBackend {
	case cache.KindSQLite, cache.KindBolt:
		dir, err := filepath.Abs(cfg.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
		}
		cfg.CacheDir = dir
		logging.Info("  Cache directory (absolute): %s", dir)
		cfg.CacheDirWritable = setupOptionalDir(dir, "cache")
	default:
		logging.Info("  %s cache backend needs no directory", cfg.CacheBackend)
		cfg.CacheDirWritable = true
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Cache:   %s", enabledString(cfg.CacheDirWritable))
	logging.Info("    Metrics: %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.CacheBackend {
	case cache.KindSQLite, cache.KindBolt, cache.KindRedis, cache.KindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend))
	}
	if c.CacheBackend == cache.KindRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required for the redis cache backend"))
	}
	if c.CacheMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("CACHE_MAX_BYTES must not be negative, got %d", c.CacheMaxBytes))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT and RATE_BURST must not be negative"))
	}
	if !cache.ValidNamespace(c.DefaultNamespace) {
		errs = append(errs, fmt.Errorf("DEFAULT_NAMESPACE must be non-empty and must not contain '|', got %q", c.DefaultNamespace))
	}
	if c.HandleMaxCount < 0 || c.HandleTTL < 0 {
		errs = append(errs, errors.New("HANDLE_MAX_COUNT and HANDLE_TTL must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return errors.Join(errs...)
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	testFile := filepath.Join(path, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("    failed to remove test file %s: %v", testFile, err)
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryConfig logs how GOMEMLIMIT was set up.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  GOMEMLIMIT: not configured (source: %s)", result.Source)
		return
	}
	logging.Info("  GOMEMLIMIT: %d bytes (source: %s)", result.GoMemLimit, result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Container limit: %d bytes, ratio %.2f", result.ContainerLimit, result.Ratio)
	}
}

// LogCacheInit logs cache backend initialization.
func LogCacheInit(backend string, duration time.Duration, err error) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CACHE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	if err != nil {
		logging.Warn("  Cache backend %s unavailable: %v", backend, err)
		logging.Warn("  Thumbnails will be generated without caching")
		return
	}
	logging.Info("  [OK] %s cache ready in %v", backend, duration)
}

// LogCapabilities logs the probed runtime capabilities and the ffmpeg
// version when capture is available.
func LogCapabilities(support capability.Support, ffmpegPath string, directResize bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("CAPABILITIES")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Frame capture:  %s", enabledString(support.CanCapture))
	logging.Info("  Cache:          %s", enabledString(support.CanCache))
	logging.Info("  Direct resize:  %s", enabledString(directResize))

	if !support.CanCapture {
		logging.Warn("  ffmpeg/ffprobe not found, thumbnail extraction is unavailable")
		return
	}
	if version, err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
	} else {
		logging.Info("  [OK] %s", version)
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			label := group
			if label == "" {
				label = "root"
			}
			logging.Debug("  [%s]", label)
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	Workers         int
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Batch workers:   %d (GOMAXPROCS=%d)", config.Workers, runtime.GOMAXPROCS(0))
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/api/thumbnails", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
        _     _                _   _                     _
 __   _(_) __| | ___  ___     | |_| |__  _   _ _ __ ___ | |__
 \ \ / / |/ _' |/ _ \/ _ \    | __| '_ \| | | | '_ ' _ \| '_ \
  \ V /| | (_| |  __/ (_) |   | |_| | | | |_| | | | | | | |_) |
   \_/ |_|\__,_|\___|\___/     \__|_| |_|\__,_|_| |_| |_|_.__/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

// checkFFmpeg runs "ffmpeg -version" and returns its first line.
func checkFFmpeg(ffmpegPath string) (string, error) {
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", ffmpegPath)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first), nil
}
