// source/bigquery.go
package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/petshop/backend/config"
	"github.com/petshop/backend/models"
)

// BigQuerySource counts downloads per project in the public PyPI downloads
// table, one query job per window.
type BigQuerySource struct {
	client         *bigquery.Client
	table          string
	maxBytesBilled int64
	jobIDPrefix    string
	logger         *log.Logger
}

// NewBigQuerySource creates a client billed to cfg.Project. Credentials come
// from the environment (GOOGLE_APPLICATION_CREDENTIALS or gcloud).
func NewBigQuerySource(ctx context.Context, cfg config.BigQueryConfig, logger *log.Logger) (*BigQuerySource, error) {
	if cfg.Project == "" {
		return nil, errors.New("bigquery project is not configured (set GOOGLE_CLOUD_PROJECT)")
	}
	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQuerySource{
		client:         client,
		table:          cfg.DownloadsTable,
		maxBytesBilled: cfg.MaximumBytesBilled,
		jobIDPrefix:    cfg.JobIDPrefix,
		logger:         logger.WithPrefix("bigquery"),
	}, nil
}

func (s *BigQuerySource) Name() string { return "bigquery" }

// Close releases the client.
func (s *BigQuerySource) Close() error { return s.client.Close() }

// CountByName runs the aggregation for [start, end) and waits for the job.
// Rows are paged in lazily while the sequence is ranged over.
func (s *BigQuerySource) CountByName(ctx context.Context, start, end time.Time) (iter.Seq2[models.CountRecord, error], error) {
	q := s.client.Query(countQuery(s.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "timestamp_start", Value: start.UTC()},
		{Name: "timestamp_end", Value: end.UTC()},
	}
	q.MaxBytesBilled = s.maxBytesBilled
	q.JobID = newJobID(s.jobIDPrefix)

	s.logger.Debug("submitting job", "job", q.JobID, "start", start, "end", end)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery job %s: %w", q.JobID, err)
	}
	s.logger.Debug("job finished", "job", q.JobID, "rows", it.TotalRows)

	return func(yield func(models.CountRecord, error) bool) {
		for {
			var rec models.CountRecord
			err := it.Next(&rec)
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield(models.CountRecord{}, fmt.Errorf("bigquery job %s: %w", q.JobID, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

func countQuery(table string) string {
	return fmt.Sprintf(`SELECT
  project AS package_name,
  COUNT(project) AS downloads
FROM `+"`%s`"+`
WHERE timestamp >= @timestamp_start
  AND timestamp < @timestamp_end
GROUP BY project`, table)
}

func newJobID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
