// models/api_models.go
package models

import "time"

// IncompleteMonthsResponse is returned by GET /api/admin/incomplete-months.
type IncompleteMonthsResponse struct {
	Complete bool        `json:"complete"`
	Months   []time.Time `json:"months"`
}

// ImportMonthResponse is returned by POST /api/admin/import-downloads/{month}.
type ImportMonthResponse struct {
	Month  time.Time       `json:"month"`
	Result ReconcileResult `json:"result"`
}
