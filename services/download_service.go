// services/download_service.go
package services

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/utils"
)

// PackageDirectory resolves package names to directory ids.
type PackageDirectory interface {
	PackageIDsByName(ctx context.Context) (map[string]int64, error)
}

// DownloadLedger reads and writes per-package monthly download totals.
// UpsertDownloads commits its rows in one transaction.
type DownloadLedger interface {
	DownloadsForMonth(ctx context.Context, month time.Time) ([]*models.Download, error)
	UpsertDownloads(ctx context.Context, rows []*models.Download) error
	EarliestImportByMonth(ctx context.Context) ([]models.MonthImport, error)
}

// Store is everything the download pipeline needs from the database.
type Store interface {
	PackageDirectory
	DownloadLedger
	ImportRunStore
}

// MonthFetcher streams a month's count records.
type MonthFetcher interface {
	SourceName() string
	FetchMonth(ctx context.Context, year int, month time.Month) (iter.Seq2[models.CountRecord, error], error)
}

// DownloadService imports monthly download counts into the ledger and checks
// which months need a re-import.
type DownloadService struct {
	store             Store
	fetcher           MonthFetcher
	commitEveryNthRow int
	now               func() time.Time
	logger            *log.Logger
}

func NewDownloadService(store Store, fetcher MonthFetcher, commitEveryNthRow int, logger *log.Logger) *DownloadService {
	return &DownloadService{
		store:             store,
		fetcher:           fetcher,
		commitEveryNthRow: max(commitEveryNthRow, 1),
		now:               time.Now,
		logger:            logger.WithPrefix("downloads"),
	}
}

// Reconcile folds the records into the ledger rows of month. Every existing
// row starts the run at zero, so re-running a month with the same records
// gives the same totals. Names missing from the directory are skipped and
// counted as NotFound. Rows are written in batches of commitEveryNthRow, each
// batch in its own transaction; on error the batches already written stay.
func (s *DownloadService) Reconcile(ctx context.Context, month time.Time, records iter.Seq2[models.CountRecord, error]) (models.ReconcileResult, error) {
	var result models.ReconcileResult
	month = utils.StartOfMonth(month)
	runStart := s.now().UTC().Truncate(time.Second)

	ids, err := s.store.PackageIDsByName(ctx)
	if err != nil {
		return result, apperrors.Wrap(apperrors.ErrCodeStorage, err, "load package directory")
	}
	existing, err := s.store.DownloadsForMonth(ctx, month)
	if err != nil {
		return result, apperrors.Wrap(apperrors.ErrCodeStorage, err, "load downloads for %s", month.Format("2006-01"))
	}

	byPackage := make(map[int64][]*models.Download, len(existing))
	for _, d := range existing {
		d.Downloads = 0
		byPackage[d.PackageID] = append(byPackage[d.PackageID], d)
	}
	s.logger.Info("reconciling", "month", month.Format("2006-01"), "packages", len(ids), "existing", len(existing))

	touched := make(map[int64]bool)
	for rec, err := range records {
		if err != nil {
			if apperrors.GetCode(err) == "" {
				err = apperrors.Wrap(apperrors.ErrCodeSourceQuery, err, "read counts for %s", month.Format("2006-01"))
			}
			return result, err
		}
		result.Processed++
		if result.Processed%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			s.logger.Debug("progress", "processed", result.Processed)
		}

		id, ok := ids[rec.PackageName]
		if !ok {
			result.NotFound++
			s.logger.Debug("unknown package", "name", rec.PackageName)
			continue
		}

		rows := byPackage[id]
		if len(rows) == 0 {
			byPackage[id] = []*models.Download{{
				PackageID:  id,
				Month:      month,
				ImportedAt: runStart,
				Downloads:  rec.Downloads,
			}}
			touched[id] = true
			result.Created++
			continue
		}

		if !touched[id] {
			touched[id] = true
			result.Updated++
			for _, d := range rows {
				d.ImportedAt = runStart
			}
		}
		rows[0].Downloads += rec.Downloads
	}

	if err := s.persist(ctx, byPackage); err != nil {
		return result, err
	}
	return result, nil
}

// persist writes every loaded or created row ordered by package id, one
// transaction per batch. At least one batch is always written.
func (s *DownloadService) persist(ctx context.Context, byPackage map[int64][]*models.Download) error {
	rows := make([]*models.Download, 0, len(byPackage))
	for _, group := range byPackage {
		rows = append(rows, group...)
	}
	slices.SortFunc(rows, func(a, b *models.Download) int {
		return cmp.Or(cmp.Compare(a.PackageID, b.PackageID), cmp.Compare(a.ID, b.ID))
	})

	for start := 0; ; start += s.commitEveryNthRow {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+s.commitEveryNthRow, len(rows))
		if err := s.store.UpsertDownloads(ctx, rows[start:end]); err != nil {
			return apperrors.Wrap(apperrors.ErrCodeStorage, err, "commit rows %d-%d", start, end)
		}
		s.logger.Debug("committed batch", "rows", end-start, "done", end, "total", len(rows))
		if end == len(rows) {
			return nil
		}
	}
}

// ImportMonth fetches one month from the count source, reconciles it and
// records the run in the import history.
func (s *DownloadService) ImportMonth(ctx context.Context, month time.Time) (models.ReconcileResult, error) {
	month = utils.StartOfMonth(month)
	run, err := s.startRun(ctx, month)
	if err != nil {
		return models.ReconcileResult{}, err
	}

	var result models.ReconcileResult
	records, err := s.fetcher.FetchMonth(ctx, month.Year(), month.Month())
	if err == nil {
		result, err = s.Reconcile(ctx, month, records)
	}
	s.finishRun(ctx, run, result, err)
	if err != nil {
		return result, err
	}

	s.logger.Info("imported month",
		"month", month.Format("2006-01"),
		"processed", result.Processed,
		"created", result.Created,
		"updated", result.Updated,
		"not_found", result.NotFound,
	)
	return result, nil
}

// ImportRange imports every month from the month of start up to end
// (exclusive), oldest first, and calls report after each one. It stops at the
// first failing month.
func (s *DownloadService) ImportRange(ctx context.Context, start, end time.Time, report func(month time.Time, result models.ReconcileResult)) error {
	months := utils.MonthList(start, end)
	if len(months) == 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "no months between %s and %s", start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	for _, month := range months {
		result, err := s.ImportMonth(ctx, month)
		if err != nil {
			return err
		}
		if report != nil {
			report(month, result)
		}
	}
	return nil
}

// IncompleteMonths returns the months holding at least one row imported
// before the month was over, ascending. Such months were read while the
// source was still filling in and need a re-import.
func (s *DownloadService) IncompleteMonths(ctx context.Context) ([]time.Time, error) {
	imports, err := s.store.EarliestImportByMonth(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStorage, err, "load import times")
	}

	var months []time.Time
	for _, mi := range imports {
		month := utils.StartOfMonth(mi.Month)
		if mi.EarliestImportedAt.Before(month.AddDate(0, 1, 0)) {
			months = append(months, month)
		}
	}
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(months, func(a, b time.Time) bool { return a.Equal(b) }), nil
}
