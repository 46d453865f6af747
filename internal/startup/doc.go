// Package startup loads configuration and logs the service lifecycle.
//
// # Configuration
//
// [LoadConfig] reads settings through viper. Every key can be set as an
// upper-cased environment variable, in an optional .env file (loaded with
// godotenv), or in a config file named by CONFIG_FILE (yaml, json or toml):
//
//   - PORT, METRICS_PORT, METRICS_ENABLED: listeners (8080, 9090, true)
//   - CACHE_BACKEND: sqlite, bolt, redis or memory (sqlite)
//   - CACHE_DIR: directory for the sqlite and bolt files (/cache)
//   - CACHE_MAX_BYTES: payload byte budget, 0 for unlimited
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: redis backend
//   - FFMPEG_PATH, FFPROBE_PATH: capture binaries (ffmpeg, ffprobe)
//   - DEFAULT_NAMESPACE: cache namespace when a request names none
//   - THUMBNAIL_WORKERS: batch fan-out width, 0 to size from GOMAXPROCS
//   - RATE_LIMIT, RATE_BURST: API token bucket (20/s, 40)
//   - HANDLE_BASE_URL: prefix of handle references (/api/handles/)
//   - HANDLE_MAX_COUNT, HANDLE_TTL: handle limits, 0 for none (1000, 10m)
//   - VIPS_ENABLED: allow the libvips resize-and-encode path (true)
//   - LOG_LEVEL, LOG_HEALTH_CHECKS: logging (info, true)
//   - MEMORY_LIMIT, MEMORY_RATIO: container limit for GOMEMLIMIT (0.85)
//   - SHUTDOWN_TIMEOUT: graceful shutdown budget (30s)
//
// An unwritable cache directory is not fatal: the service starts and the
// capability probe reports caching as unavailable.
//
// # Lifecycle logging
//
// The Log* functions print the sectioned startup and shutdown output.
// Route listings are only printed at debug level.
package startup
