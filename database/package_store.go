// database/package_store.go
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/petshop/backend/models"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insert runs an INSERT and returns the generated id. Postgres has no
// LastInsertId, so the statement gets a RETURNING clause there.
func (s *Store) insert(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	if s.dialect == DialectPostgres {
		var id int64
		if err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListAll returns every (name, id) pair of the package directory.
func (s *Store) ListAll(ctx context.Context) ([]models.DirectoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, id FROM package ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query package directory: %w", err)
	}
	defer rows.Close()

	var entries []models.DirectoryEntry
	for rows.Next() {
		var e models.DirectoryEntry
		if err := rows.Scan(&e.Name, &e.ID); err != nil {
			return nil, fmt.Errorf("failed to scan package row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating package rows: %w", err)
	}
	return entries, nil
}

// PackageIDsByName snapshots the directory as name -> id. Should a name occur
// twice, the row with the highest id wins.
func (s *Store) PackageIDsByName(ctx context.Context) (map[string]int64, error) {
	entries, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(entries))
	for _, e := range entries {
		ids[e.Name] = e.ID
	}
	s.logger.Debug("loaded package directory", "packages", len(ids))
	return ids, nil
}

// CreatePackage inserts a directory row and sets p.ID. The directory is owned
// by the metadata importer; this exists for seeding local databases.
func (s *Store) CreatePackage(ctx context.Context, p *models.Package) error {
	id, err := s.insert(ctx, s.db,
		`INSERT INTO package (name, version, summary, home_page, upload_time) VALUES (?, ?, ?, ?, ?)`,
		p.Name, p.Version, p.Summary, p.HomePage, p.UploadTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert package %s: %w", p.Name, err)
	}
	p.ID = id
	return nil
}
