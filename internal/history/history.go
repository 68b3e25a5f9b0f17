// Package history records cleaning runs so users can look back at what was
// uploaded, what encoding it turned out to be and whether anything had to
// be escaped.
//
// Three stores implement [Store]: an in-memory ring for single-process
// deployments, PostgreSQL through pgxpool, and a SQLite file used by the
// CLI. [Open] picks one from configuration.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/csvclean/internal/config"
)

// Run outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DefaultLimit is used by Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("history store closed")

// Entry is one recorded cleaning run.
type Entry struct {
	RunID             string    `json:"run_id"`
	FileName          string    `json:"file_name"`
	Status            string    `json:"status"`
	Encoding          string    `json:"encoding,omitempty"`
	Confidence        int       `json:"confidence"`
	Target            string    `json:"target"`
	FoundNonPrintable bool      `json:"found_non_printable"`
	Rows              int       `json:"rows"`
	Columns           int       `json:"columns"`
	Escaped           int       `json:"escaped"`
	InputBytes        int64     `json:"input_bytes"`
	OutputBytes       int64     `json:"output_bytes"`
	DurationMs        int64     `json:"duration_ms"`
	ErrorCode         string    `json:"error_code,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ClientIP          string    `json:"client_ip,omitempty"`
	UserAgent         string    `json:"user_agent,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store persists run entries.
type Store interface {
	// Record saves e. CreatedAt is set to now when zero.
	Record(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Purge deletes entries created before cutoff and returns how many
	// were removed.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases the store's resources.
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", config.DriverMemory:
		return NewMemoryStore(cfg.MemoryLimit), nil
	case config.DriverPostgres:
		s, err := OpenPostgres(ctx, PostgresOptions{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.MaxConns,
			MinConns: cfg.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = config.DefaultSQLitePath()
		}
		s, err := OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history driver: %s", cfg.Driver)
	}
}

// normalizeLimit applies DefaultLimit.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// stamp fills CreatedAt and truncates it so that every store round-trips
// the same value.
func stamp(e *Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
}
