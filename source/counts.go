// Package source produces per-package download counts for a month, one
// sub-window at a time, from BigQuery or from a CSV dump.
package source

import (
	"context"
	"iter"
	"time"

	"github.com/petshop/backend/models"
)

// CountSource runs one aggregation over [start, end) and returns its rows as
// a lazy, forward-only sequence. The sequence can be ranged over once. A
// non-nil error yielded by the sequence ends it.
type CountSource interface {
	Name() string
	CountByName(ctx context.Context, start, end time.Time) (iter.Seq2[models.CountRecord, error], error)
}

// Records adapts a slice to the sequence shape used by CountSource.
func Records(records []models.CountRecord) iter.Seq2[models.CountRecord, error] {
	return func(yield func(models.CountRecord, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
	}
}
