// database/schema.go
package database

import (
	"context"
	"database/sql/driver"
	"fmt"
	"time"
)

var schemas = map[Dialect][]string{
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS package (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			version VARCHAR(255) NOT NULL DEFAULT '',
			summary TEXT NULL,
			home_page TEXT NULL,
			upload_time DATETIME NOT NULL,
			INDEX ix_package_name (name)
		)`,
		`CREATE TABLE IF NOT EXISTS download (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			package_id BIGINT NOT NULL,
			month DATETIME NOT NULL,
			imported_at DATETIME NOT NULL,
			downloads BIGINT NOT NULL DEFAULT 0,
			UNIQUE KEY ux_download_package_month (package_id, month),
			INDEX ix_download_month (month),
			FOREIGN KEY (package_id) REFERENCES package(id)
		)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			source VARCHAR(32) NOT NULL,
			month DATETIME NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NULL,
			status VARCHAR(16) NOT NULL,
			processed INT NOT NULL DEFAULT 0,
			created INT NOT NULL DEFAULT 0,
			updated INT NOT NULL DEFAULT 0,
			not_found INT NOT NULL DEFAULT 0,
			error TEXT NULL,
			INDEX ix_import_runs_month (month)
		)`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS package (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			version VARCHAR(255) NOT NULL DEFAULT '',
			summary TEXT NULL,
			home_page TEXT NULL,
			upload_time TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_package_name ON package (name)`,
		`CREATE TABLE IF NOT EXISTS download (
			id BIGSERIAL PRIMARY KEY,
			package_id BIGINT NOT NULL REFERENCES package(id),
			month TIMESTAMPTZ NOT NULL,
			imported_at TIMESTAMPTZ NOT NULL,
			downloads BIGINT NOT NULL DEFAULT 0,
			UNIQUE (package_id, month)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_download_month ON download (month)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			id BIGSERIAL PRIMARY KEY,
			source VARCHAR(32) NOT NULL,
			month TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NULL,
			status VARCHAR(16) NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			created INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			not_found INTEGER NOT NULL DEFAULT 0,
			error TEXT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_import_runs_month ON import_runs (month)`,
	},
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS package (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			summary TEXT,
			home_page TEXT,
			upload_time DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_package_name ON package (name)`,
		`CREATE TABLE IF NOT EXISTS download (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			package_id INTEGER NOT NULL REFERENCES package(id),
			month DATETIME NOT NULL,
			imported_at DATETIME NOT NULL,
			downloads INTEGER NOT NULL DEFAULT 0,
			UNIQUE (package_id, month)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_download_month ON download (month)`,
		`CREATE TABLE IF NOT EXISTS import_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			month DATETIME NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME,
			status TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			created INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			not_found INTEGER NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS ix_import_runs_month ON import_runs (month)`,
	},
}

// Migrate creates the tables and indexes the importer needs when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemas[s.dialect] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	s.logger.Info("schema up to date", "dialect", s.dialect)
	return nil
}

// sqlTime scans timestamps from every supported driver. Aggregates such as
// MIN(imported_at) come back from SQLite as text, so strings are parsed too.
type sqlTime struct {
	Time  time.Time
	Valid bool
}

var sqlTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	time.DateTime,
	time.DateOnly,
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into a timestamp", src)
	}
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range sqlTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// Value lets sqlTime be used as a nullable argument.
func (t sqlTime) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}
