// database/import_run_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/petshop/backend/models"
)

// StartImportRun records the beginning of a reconciliation run and sets run.ID.
func (s *Store) StartImportRun(ctx context.Context, run *models.ImportRun) error {
	id, err := s.insert(ctx, s.db, `
		INSERT INTO import_runs (source, month, started_at, status, processed, created, updated, not_found)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		run.Source, run.Month.UTC(), run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to record import run for %s: %w", run.Month.Format("2006-01"), err)
	}
	run.ID = id
	return nil
}

// FinishImportRun stores the outcome of a run started with StartImportRun.
func (s *Store) FinishImportRun(ctx context.Context, run *models.ImportRun) error {
	var finishedAt sqlTime
	if run.FinishedAt != nil {
		finishedAt = sqlTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	var runErr sql.NullString
	if run.Error != "" {
		runErr = sql.NullString{String: run.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE import_runs
		SET finished_at = ?, status = ?, processed = ?, created = ?, updated = ?, not_found = ?, error = ?
		WHERE id = ?
	`), finishedAt, run.Status, run.Processed, run.Created, run.Updated, run.NotFound, runErr, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update import run %d: %w", run.ID, err)
	}
	return nil
}

// ListImportRuns returns the most recent runs first. A limit <= 0 returns all.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error) {
	query := `
		SELECT id, source, month, started_at, finished_at, status,
		       processed, created, updated, not_found, error
		FROM import_runs
		ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query import_runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ImportRun
	for rows.Next() {
		var (
			r                        models.ImportRun
			month, started, finished sqlTime
			runErr                   sql.NullString
		)
		err := rows.Scan(
			&r.ID, &r.Source, &month, &started, &finished, &r.Status,
			&r.Processed, &r.Created, &r.Updated, &r.NotFound, &runErr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import_run row: %w", err)
		}
		r.Month = month.Time
		r.StartedAt = started.Time
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		if runErr.Valid {
			r.Error = runErr.String
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import_run rows: %w", err)
	}
	return runs, nil
}
