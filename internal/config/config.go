// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	Normalize NormalizeConfig
	Results   ResultsConfig
	History   HistoryConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// UploadConfig holds limits for incoming files.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel cleaning runs (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single run (default: 2m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"2m"`
}

// NormalizeConfig tunes the cleaning pipeline.
type NormalizeConfig struct {
	// ConvertToUTF8 is the default target when a request does not say (default: true)
	ConvertToUTF8 bool `env:"NORMALIZE_CONVERT_TO_UTF8" default:"true"`

	// SampleSize is the number of leading bytes used for detection (default: 1024)
	SampleSize int `env:"NORMALIZE_SAMPLE_SIZE" default:"1024"`

	// MinConfidence rejects detections below this confidence, 0-100 (default: 0)
	MinConfidence int `env:"NORMALIZE_MIN_CONFIDENCE" default:"0"`

	// FallbackEncoding is assumed when detection fails. Empty means fail.
	FallbackEncoding string `env:"NORMALIZE_FALLBACK_ENCODING"`

	// Placeholder replaces non-ASCII characters in ASCII mode (default: ?)
	Placeholder string `env:"NORMALIZE_PLACEHOLDER" default:"?"`

	// LazyQuotes relaxes CSV quote handling (default: false)
	LazyQuotes bool `env:"NORMALIZE_LAZY_QUOTES" default:"false"`
}

// ResultsConfig controls how long cleaned files stay downloadable.
type ResultsConfig struct {
	// TTL is how long a finished run is kept in memory (default: 15m)
	TTL time.Duration `env:"RESULTS_TTL" default:"15m"`

	// MaxEntries caps the number of cached runs; the oldest is evicted (default: 200)
	MaxEntries int `env:"RESULTS_MAX_ENTRIES" default:"200"`
}

// HistoryConfig selects and tunes the run history store.
type HistoryConfig struct {
	// Driver is one of memory, postgres, sqlite (default: memory)
	Driver string `env:"HISTORY_DRIVER" default:"memory"`

	// DatabaseURL is the PostgreSQL connection string, required for the postgres driver
	DatabaseURL string `env:"HISTORY_DATABASE_URL" envAlt:"DATABASE_URL"`

	// SQLitePath is the database file for the sqlite driver (default: $XDG_DATA_HOME/csvclean/history.db)
	SQLitePath string `env:"HISTORY_SQLITE_PATH"`

	// MaxConns is the maximum number of pooled connections (default: 10)
	MaxConns int `env:"HISTORY_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"HISTORY_MIN_CONNS" default:"1"`

	// MemoryLimit caps the in-memory store (default: 500)
	MemoryLimit int `env:"HISTORY_MEMORY_LIMIT" default:"500"`

	// RetentionDays is how long entries are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// PurgeInterval is how often expired runs and old entries are removed (default: 1h)
	PurgeInterval time.Duration `env:"HISTORY_PURGE_INTERVAL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for cleaning endpoints (default: 20)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects /api routes with an X-API-Key header (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// History drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// PlaceholderRune returns the placeholder as a rune, or 0 when unset.
func (c *NormalizeConfig) PlaceholderRune() rune {
	for _, r := range c.Placeholder {
		return r
	}
	return 0
}

// RetentionWindow returns the history retention as a duration.
func (c *HistoryConfig) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
