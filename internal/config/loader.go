package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/adrg/xdg"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup, for callers that merge
// flags or files into the environment.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if cfg.History.SQLitePath == "" {
		cfg.History.SQLitePath = DefaultSQLitePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// DefaultSQLitePath returns the history database location under the XDG
// data directory.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, "csvclean", "history.db")
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := getenv(envName)
		if value == "" && envAlt != "" {
			value = getenv(envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Upload validation
	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWaitTime <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT_TIME must be positive")
	}
	if c.Upload.Timeout <= 0 {
		errs = append(errs, "UPLOAD_TIMEOUT must be positive")
	}

	// Normalizer validation
	if c.Normalize.SampleSize <= 0 {
		errs = append(errs, "NORMALIZE_SAMPLE_SIZE must be positive")
	}
	if c.Normalize.MinConfidence < 0 || c.Normalize.MinConfidence > 100 {
		errs = append(errs, fmt.Sprintf("NORMALIZE_MIN_CONFIDENCE (%d) must be 0-100", c.Normalize.MinConfidence))
	}
	if p := c.Normalize.Placeholder; utf8.RuneCountInString(p) != 1 || p[0] < 0x20 || p[0] > 0x7E {
		errs = append(errs, fmt.Sprintf("NORMALIZE_PLACEHOLDER (%q) must be a single printable ascii character", p))
	}

	// Results validation
	if c.Results.TTL <= 0 {
		errs = append(errs, "RESULTS_TTL must be positive")
	}
	if c.Results.MaxEntries <= 0 {
		errs = append(errs, "RESULTS_MAX_ENTRIES must be positive")
	}

	// History validation
	switch strings.ToLower(c.History.Driver) {
	case DriverMemory:
		if c.History.MemoryLimit <= 0 {
			errs = append(errs, "HISTORY_MEMORY_LIMIT must be positive")
		}
	case DriverPostgres:
		if c.History.DatabaseURL == "" {
			errs = append(errs, "HISTORY_DATABASE_URL is required when HISTORY_DRIVER=postgres")
		}
		if c.History.MaxConns <= 0 {
			errs = append(errs, "HISTORY_MAX_CONNS must be positive")
		}
		if c.History.MinConns < 0 {
			errs = append(errs, "HISTORY_MIN_CONNS must be non-negative")
		}
		if c.History.MaxConns < c.History.MinConns {
			errs = append(errs, fmt.Sprintf("HISTORY_MAX_CONNS (%d) must be >= HISTORY_MIN_CONNS (%d)",
				c.History.MaxConns, c.History.MinConns))
		}
	case DriverSQLite:
		if c.History.SQLitePath == "" {
			errs = append(errs, "HISTORY_SQLITE_PATH is required when HISTORY_DRIVER=sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("HISTORY_DRIVER (%q) must be one of: memory, postgres, sqlite", c.History.Driver))
	}
	if c.History.RetentionDays <= 0 {
		errs = append(errs, "HISTORY_RETENTION_DAYS must be positive")
	}
	if c.History.PurgeInterval <= 0 {
		errs = append(errs, "HISTORY_PURGE_INTERVAL must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.UploadLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs and API keys are masked.
func (c *Config) String() string {
	dbURL := ""
	if c.History.DatabaseURL != "" {
		dbURL = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Upload: {MaxFileSize: %d, MaxConcurrent: %d, Timeout: %s}, ",
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.Timeout))
	b.WriteString(fmt.Sprintf("Normalize: {ConvertToUTF8: %v, SampleSize: %d, MinConfidence: %d, Fallback: %q}, ",
		c.Normalize.ConvertToUTF8, c.Normalize.SampleSize, c.Normalize.MinConfidence, c.Normalize.FallbackEncoding))
	b.WriteString(fmt.Sprintf("Results: {TTL: %s, MaxEntries: %d}, ", c.Results.TTL, c.Results.MaxEntries))
	b.WriteString(fmt.Sprintf("History: {Driver: %q, URL: %s, SQLitePath: %q, RetentionDays: %d}, ",
		c.History.Driver, dbURL, c.History.SQLitePath, c.History.RetentionDays))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
