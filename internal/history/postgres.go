package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cleaning_runs (
	run_id              TEXT PRIMARY KEY,
	file_name           TEXT NOT NULL,
	status              TEXT NOT NULL,
	encoding            TEXT NOT NULL DEFAULT '',
	confidence          INTEGER NOT NULL DEFAULT 0,
	target              TEXT NOT NULL DEFAULT '',
	found_non_printable BOOLEAN NOT NULL DEFAULT FALSE,
	row_count           INTEGER NOT NULL DEFAULT 0,
	column_count        INTEGER NOT NULL DEFAULT 0,
	escaped_count       INTEGER NOT NULL DEFAULT 0,
	input_bytes         BIGINT NOT NULL DEFAULT 0,
	output_bytes        BIGINT NOT NULL DEFAULT 0,
	duration_ms         BIGINT NOT NULL DEFAULT 0,
	error_code          TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	client_ip           TEXT NOT NULL DEFAULT '',
	user_agent          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cleaning_runs_created_at_idx ON cleaning_runs (created_at DESC);
`

const entryColumns = `run_id, file_name, status, encoding, confidence, target, found_non_printable,
	row_count, column_count, escaped_count, input_bytes, output_bytes, duration_ms,
	error_code, error_message, client_ip, user_agent, created_at`

// PostgresOptions configure the connection pool.
type PostgresOptions struct {
	URL      string
	MaxConns int
	MinConns int
}

// PostgresStore keeps history in the cleaning_runs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, verifies the connection and creates the schema.
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStore(ctx, pool)
}

// NewPostgresStore wraps an existing pool and creates the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create cleaning_runs: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	stamp(&e)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cleaning_runs (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (run_id) DO NOTHING`,
		e.RunID, e.FileName, e.Status, e.Encoding, e.Confidence, e.Target, e.FoundNonPrintable,
		e.Rows, e.Columns, e.Escaped, e.InputBytes, e.OutputBytes, e.DurationMs,
		e.ErrorCode, e.ErrorMessage, e.ClientIP, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.RunID, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM cleaning_runs ORDER BY created_at DESC LIMIT $1`,
		normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(
			&e.RunID, &e.FileName, &e.Status, &e.Encoding, &e.Confidence, &e.Target, &e.FoundNonPrintable,
			&e.Rows, &e.Columns, &e.Escaped, &e.InputBytes, &e.OutputBytes, &e.DurationMs,
			&e.ErrorCode, &e.ErrorMessage, &e.ClientIP, &e.UserAgent, &e.CreatedAt,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cleaning_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
