// services/run_service.go
package services

import (
	"context"
	"time"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
)

// ImportRunStore keeps the history of import runs.
type ImportRunStore interface {
	StartImportRun(ctx context.Context, run *models.ImportRun) error
	FinishImportRun(ctx context.Context, run *models.ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error)
}

func (s *DownloadService) startRun(ctx context.Context, month time.Time) (*models.ImportRun, error) {
	run := &models.ImportRun{
		Source:    s.fetcher.SourceName(),
		Month:     month,
		StartedAt: s.now().UTC().Truncate(time.Second),
		Status:    models.RunStatusRunning,
	}
	if err := s.store.StartImportRun(ctx, run); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStorage, err, "record import run")
	}
	return run, nil
}

// finishRun stores the outcome even when ctx has been cancelled.
func (s *DownloadService) finishRun(ctx context.Context, run *models.ImportRun, result models.ReconcileResult, runErr error) {
	finished := s.now().UTC().Truncate(time.Second)
	run.FinishedAt = &finished
	run.Processed = result.Processed
	run.Created = result.Created
	run.Updated = result.Updated
	run.NotFound = result.NotFound
	run.Status = models.RunStatusSucceeded
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	}

	if err := s.store.FinishImportRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("failed to record import run outcome", "run", run.ID, "err", err)
	}
}

// ImportHistory returns the most recent import runs first.
func (s *DownloadService) ImportHistory(ctx context.Context, limit int) ([]models.ImportRun, error) {
	runs, err := s.store.ListImportRuns(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStorage, err, "load import runs")
	}
	return runs, nil
}
