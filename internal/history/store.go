// Package history persists summaries of completed import runs in Postgres.
// Row data itself is never stored locally; only counts and metadata survive
// the session.
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartloom/bulkimport/internal/pipeline"
)

// Store records and lists import runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS import_runs (
	id            UUID PRIMARY KEY,
	import_type   TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	total_rows    INT NOT NULL,
	valid_count   INT NOT NULL,
	error_count   INT NOT NULL,
	success_count INT NOT NULL,
	failed_count  INT NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_runs_completed_at ON import_runs (completed_at DESC);
`

// EnsureSchema creates the import_runs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure import_runs schema: %w", err)
	}
	return nil
}

// RecordRun inserts one completed run.
func (s *Store) RecordRun(ctx context.Context, run pipeline.Run) error {
	const q = `
		INSERT INTO import_runs
			(id, import_type, file_name, total_rows, valid_count, error_count, success_count, failed_count, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		run.ID, string(run.Type), run.FileName,
		run.TotalRows, run.ValidCount, run.ErrorCount,
		run.SuccessCount, run.FailedCount, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `
		SELECT id, import_type, file_name, total_rows, valid_count, error_count, success_count, failed_count, completed_at
		FROM import_runs
		ORDER BY completed_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	defer rows.Close()

	var runs []pipeline.Run
	for rows.Next() {
		var r pipeline.Run
		var typ string
		if err := rows.Scan(&r.ID, &typ, &r.FileName, &r.TotalRows, &r.ValidCount, &r.ErrorCount, &r.SuccessCount, &r.FailedCount, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan import run: %w", err)
		}
		r.Type = pipeline.ImportType(typ)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

var _ pipeline.RunRecorder = (*Store)(nil)
