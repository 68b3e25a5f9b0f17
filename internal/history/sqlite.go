package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cleaning_runs (
	run_id              TEXT PRIMARY KEY,
	file_name           TEXT NOT NULL,
	status              TEXT NOT NULL,
	encoding            TEXT NOT NULL DEFAULT '',
	confidence          INTEGER NOT NULL DEFAULT 0,
	target              TEXT NOT NULL DEFAULT '',
	found_non_printable INTEGER NOT NULL DEFAULT 0,
	row_count           INTEGER NOT NULL DEFAULT 0,
	column_count        INTEGER NOT NULL DEFAULT 0,
	escaped_count       INTEGER NOT NULL DEFAULT 0,
	input_bytes         INTEGER NOT NULL DEFAULT 0,
	output_bytes        INTEGER NOT NULL DEFAULT 0,
	duration_ms         INTEGER NOT NULL DEFAULT 0,
	error_code          TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	client_ip           TEXT NOT NULL DEFAULT '',
	user_agent          TEXT NOT NULL DEFAULT '',
	created_at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cleaning_runs_created_at_idx ON cleaning_runs (created_at DESC);
`

// SQLiteStore keeps history in a single database file. Timestamps are
// stored as Unix microseconds.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path, creating parent
// directories as needed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cleaning_runs: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Record(ctx context.Context, e Entry) error {
	stamp(&e)
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cleaning_runs (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.FileName, e.Status, e.Encoding, e.Confidence, e.Target, e.FoundNonPrintable,
		e.Rows, e.Columns, e.Escaped, e.InputBytes, e.OutputBytes, e.DurationMs,
		e.ErrorCode, e.ErrorMessage, e.ClientIP, e.UserAgent, e.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM cleaning_runs ORDER BY created_at DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(
			&e.RunID, &e.FileName, &e.Status, &e.Encoding, &e.Confidence, &e.Target, &e.FoundNonPrintable,
			&e.Rows, &e.Columns, &e.Escaped, &e.InputBytes, &e.OutputBytes, &e.DurationMs,
			&e.ErrorCode, &e.ErrorMessage, &e.ClientIP, &e.UserAgent, &created,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.CreatedAt = time.UnixMicro(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cleaning_runs WHERE created_at < ?`, cutoff.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
