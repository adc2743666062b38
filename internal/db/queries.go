package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mir/fiddle-test-cov/internal/pipeline"
)

// Run represents a row in the coverage_runs table.
type Run struct {
	RunID          string
	Phase          string
	GeneratedAt    time.Time
	ArtifactsRoot  string
	ReposRoot      string
	IsolationImage string
	CacheDir       *string
	RepoCount      int
	CompletedCount int
}

// RepoRow represents a row in the repo_results table.
type RepoRow struct {
	RunID          string
	Repository     string
	Status         string
	CoveredLines   *int
	NumStatements  *int
	PercentCovered *float64
	CommandCount   int
	StartedAt      *time.Time
	FinishedAt     *time.Time
}

// runFromSummary derives the coverage_runs row for a phase summary.
func runFromSummary(sum *pipeline.Summary) (Run, error) {
	at, err := time.Parse(time.RFC3339, sum.GeneratedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse generated_at %q: %w", sum.GeneratedAt, err)
	}
	r := Run{
		RunID:          sum.RunID,
		Phase:          string(sum.Phase),
		GeneratedAt:    at,
		ArtifactsRoot:  sum.ArtifactsRoot,
		ReposRoot:      sum.ReposRoot,
		IsolationImage: sum.IsolationImage,
		RepoCount:      len(sum.Results),
	}
	if sum.CacheDir != "" {
		dir := sum.CacheDir
		r.CacheDir = &dir
	}
	for _, res := range sum.Results {
		if res.Status.OK() {
			r.CompletedCount++
		}
	}
	return r, nil
}

// repoRowFromResult derives the repo_results row for one repository.
func repoRowFromResult(runID string, res pipeline.RepoResult) RepoRow {
	row := RepoRow{
		RunID:        runID,
		Repository:   res.Name,
		Status:       string(res.Status),
		CommandCount: len(res.Commands),
		StartedAt:    parseTime(res.StartedAt),
		FinishedAt:   parseTime(res.FinishedAt),
	}
	if t := res.CoverageTotals; t != nil {
		row.CoveredLines = t.CoveredLines
		row.NumStatements = t.NumStatements
		row.PercentCovered = t.PercentCovered
	}
	return row
}

func parseTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// RecordRun stores a phase summary and its repository results in one
// transaction.
func (d *DB) RecordRun(ctx context.Context, sum *pipeline.Summary) error {
	run, err := runFromSummary(sum)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO coverage_runs
			   (run_id, phase, generated_at, artifacts_root, repos_root, isolation_image, cache_dir, repo_count, completed_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			run.RunID, run.Phase, run.GeneratedAt, run.ArtifactsRoot, run.ReposRoot,
			run.IsolationImage, run.CacheDir, run.RepoCount, run.CompletedCount,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, res := range sum.Results {
			row := repoRowFromResult(run.RunID, res)
			batch.Queue(
				`INSERT INTO repo_results
				   (run_id, repository, status, covered_lines, num_statements, percent_covered, command_count, started_at, finished_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				row.RunID, row.Repository, row.Status, row.CoveredLines, row.NumStatements,
				row.PercentCovered, row.CommandCount, row.StartedAt, row.FinishedAt,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert repo results: %w", err)
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first. A phase of "" lists
// both phases.
func (d *DB) ListRuns(ctx context.Context, phase string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.pool.Query(ctx,
		`SELECT run_id, phase, generated_at, artifacts_root, repos_root, isolation_image, cache_dir, repo_count, completed_count
		 FROM coverage_runs
		 WHERE $1 = '' OR phase = $1
		 ORDER BY generated_at DESC, run_id
		 LIMIT $2`,
		phase, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Phase, &r.GeneratedAt, &r.ArtifactsRoot, &r.ReposRoot,
			&r.IsolationImage, &r.CacheDir, &r.RepoCount, &r.CompletedCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults returns the per-repository rows of one run, ordered by name.
func (d *DB) RunResults(ctx context.Context, runID string) ([]RepoRow, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT run_id, repository, status, covered_lines, num_statements, percent_covered, command_count, started_at, finished_at
		 FROM repo_results WHERE run_id = $1 ORDER BY repository`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("run results: %w", err)
	}
	defer rows.Close()

	var out []RepoRow
	for rows.Next() {
		var r RepoRow
		if err := rows.Scan(&r.RunID, &r.Repository, &r.Status, &r.CoveredLines, &r.NumStatements,
			&r.PercentCovered, &r.CommandCount, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan repo result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
