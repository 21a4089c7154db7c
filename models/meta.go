// models/meta.go
package models

import "time"

// Import run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ImportRun records one reconciliation run of a month, so operators can see
// when each month was last imported and with which outcome.
type ImportRun struct {
	ID         int64      `db:"id" json:"id"`
	Source     string     `db:"source" json:"source"` // e.g., "bigquery", "csv"
	Month      time.Time  `db:"month" json:"month"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"` // Nullable while running
	Status     string     `db:"status" json:"status"`
	Processed  int        `db:"processed" json:"processed"`
	Created    int        `db:"created" json:"created"`
	Updated    int        `db:"updated" json:"updated"`
	NotFound   int        `db:"not_found" json:"not_found"`
	Error      string     `db:"error" json:"error,omitempty"`
}
