// Package db records coverage runs in PostgreSQL so results can be compared
// across invocations.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to the database at url and verifies the connection.
func Open(ctx context.Context, url string) (*DB, error) {
	if url == "" {
		return nil, errors.New("open database: empty database URL")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the pool.
func (d *DB) Close() {
	d.pool.Close()
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS coverage_runs (
    run_id          TEXT PRIMARY KEY,
    phase           TEXT NOT NULL CHECK (phase IN ('baseline','generated')),
    generated_at    TIMESTAMPTZ NOT NULL,
    artifacts_root  TEXT NOT NULL,
    repos_root      TEXT NOT NULL,
    isolation_image TEXT NOT NULL,
    cache_dir       TEXT,
    repo_count      INTEGER NOT NULL,
    completed_count INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_generated ON coverage_runs(generated_at DESC);

CREATE TABLE IF NOT EXISTS repo_results (
    id              BIGSERIAL PRIMARY KEY,
    run_id          TEXT NOT NULL REFERENCES coverage_runs(run_id) ON DELETE CASCADE,
    repository      TEXT NOT NULL,
    status          TEXT NOT NULL,
    covered_lines   INTEGER,
    num_statements  INTEGER,
    percent_covered DOUBLE PRECISION,
    command_count   INTEGER NOT NULL,
    started_at      TIMESTAMPTZ,
    finished_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_results_run ON repo_results(run_id, repository);
`

// Migrate applies the database schema.
func (d *DB) Migrate(ctx context.Context) error {
	var count int
	err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, schemaV1); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING"); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	})
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset(ctx context.Context) error {
	tables := []string{"repo_results", "coverage_runs", "schema_version"}
	for _, t := range tables {
		if _, err := d.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate(ctx)
}
