// models/download.go
package models

import "time"

// Download is the ledger row holding the total downloads of one package in
// one month. There is at most one logical row per (PackageID, Month).
type Download struct {
	ID         int64     `db:"id" json:"id"` // 0 until the row has been inserted
	PackageID  int64     `db:"package_id" json:"package_id"`
	Month      time.Time `db:"month" json:"month"` // first instant of the month, UTC
	ImportedAt time.Time `db:"imported_at" json:"imported_at"`
	Downloads  int64     `db:"downloads" json:"downloads"`
}

// CountRecord is one row of the external bulk count source: the number of
// downloads of a package name inside a single sub-window.
type CountRecord struct {
	PackageName string `bigquery:"package_name" csv:"package_name"`
	Downloads   int64  `bigquery:"downloads" csv:"downloads"`
}

// ReconcileResult holds the counters reported after a reconciliation run.
type ReconcileResult struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	NotFound  int `json:"not_found"`
}

// MonthImport is the earliest import timestamp observed for a ledger month.
type MonthImport struct {
	Month              time.Time
	EarliestImportedAt time.Time
}
