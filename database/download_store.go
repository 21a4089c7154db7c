// database/download_store.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/petshop/backend/models"
)

// DownloadsForMonth returns every ledger row of the month, ordered by package id.
func (s *Store) DownloadsForMonth(ctx context.Context, month time.Time) ([]*models.Download, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, package_id, month, imported_at, downloads
		FROM download
		WHERE month = ?
		ORDER BY package_id, id
	`), month.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads for %s: %w", month.Format("2006-01"), err)
	}
	defer rows.Close()

	var downloads []*models.Download
	for rows.Next() {
		var (
			d                 models.Download
			rowMonth, started sqlTime
		)
		if err := rows.Scan(&d.ID, &d.PackageID, &rowMonth, &started, &d.Downloads); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		d.Month = rowMonth.Time
		d.ImportedAt = started.Time
		downloads = append(downloads, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating download rows: %w", err)
	}
	return downloads, nil
}

// UpsertDownloads writes one batch of ledger rows inside a single transaction.
// Rows with an id are updated in place; rows without one are inserted and get
// their generated id assigned.
func (s *Store) UpsertDownloads(ctx context.Context, rows []*models.Download) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for downloads: %w", err)
	}
	defer tx.Rollback()

	update, err := tx.PrepareContext(ctx, s.rebind(`UPDATE download SET imported_at = ?, downloads = ? WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("failed to prepare download update statement: %w", err)
	}
	defer update.Close()

	updated, inserted := 0, 0
	for _, d := range rows {
		if d.ID != 0 {
			if _, err := update.ExecContext(ctx, d.ImportedAt.UTC(), d.Downloads, d.ID); err != nil {
				return fmt.Errorf("failed to update download %d (package %d): %w", d.ID, d.PackageID, err)
			}
			updated++
			continue
		}
		id, err := s.insert(ctx, tx,
			`INSERT INTO download (package_id, month, imported_at, downloads) VALUES (?, ?, ?, ?)`,
			d.PackageID, d.Month.UTC(), d.ImportedAt.UTC(), d.Downloads,
		)
		if err != nil {
			return fmt.Errorf("failed to insert download for package %d: %w", d.PackageID, err)
		}
		d.ID = id
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for downloads: %w", err)
	}

	s.logger.Debug("committed downloads", "updated", updated, "inserted", inserted)
	return nil
}

// EarliestImportByMonth returns, for every month present in the ledger, the
// oldest imported_at among its rows. Months are ascending.
func (s *Store) EarliestImportByMonth(ctx context.Context) ([]models.MonthImport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT month, MIN(imported_at)
		FROM download
		GROUP BY month
		ORDER BY month
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query import times: %w", err)
	}
	defer rows.Close()

	var imports []models.MonthImport
	for rows.Next() {
		var month, earliest sqlTime
		if err := rows.Scan(&month, &earliest); err != nil {
			return nil, fmt.Errorf("failed to scan import time row: %w", err)
		}
		imports = append(imports, models.MonthImport{Month: month.Time, EarliestImportedAt: earliest.Time})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import time rows: %w", err)
	}
	return imports, nil
}

// MonthTotal sums the downloads recorded for a month.
func (s *Store) MonthTotal(ctx context.Context, month time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COALESCE(SUM(downloads), 0) FROM download WHERE month = ?`), month.UTC()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum downloads for %s: %w", month.Format("2006-01"), err)
	}
	return total, nil
}
