package services

import (
	"context"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petshop/backend/database"
	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/source"
)

var march2024 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// recordingStore wraps the real store to observe or break batch commits.
type recordingStore struct {
	*database.Store
	batches    [][]int64
	failUpsert error
}

func (r *recordingStore) UpsertDownloads(ctx context.Context, rows []*models.Download) error {
	if r.failUpsert != nil {
		return r.failUpsert
	}
	ids := make([]int64, len(rows))
	for i, d := range rows {
		ids[i] = d.PackageID
	}
	r.batches = append(r.batches, ids)
	return r.Store.UpsertDownloads(ctx, rows)
}

type fakeFetcher struct {
	records []models.CountRecord
	err     error
	months  []time.Time
}

func (f *fakeFetcher) SourceName() string { return "fake" }

func (f *fakeFetcher) FetchMonth(_ context.Context, year int, month time.Month) (iter.Seq2[models.CountRecord, error], error) {
	f.months = append(f.months, time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	if f.err != nil {
		return func(yield func(models.CountRecord, error) bool) {
			if len(f.records) > 0 && !yield(f.records[0], nil) {
				return
			}
			yield(models.CountRecord{}, f.err)
		}, nil
	}
	return source.Records(f.records), nil
}

type fixture struct {
	store   *recordingStore
	fetcher *fakeFetcher
	service *DownloadService
	ids     map[string]int64
}

func newFixture(t *testing.T, commitEvery int, names ...string) *fixture {
	t.Helper()
	store := &recordingStore{Store: database.OpenMemory(t)}
	ids := make(map[string]int64, len(names))
	for _, name := range names {
		p := &models.Package{Name: name, Version: "1.0", UploadTime: march2024}
		require.NoError(t, store.CreatePackage(context.Background(), p))
		ids[name] = p.ID
	}
	fetcher := &fakeFetcher{}
	service := NewDownloadService(store, fetcher, commitEvery, log.New(io.Discard))
	service.now = func() time.Time { return time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC) }
	return &fixture{store: store, fetcher: fetcher, service: service, ids: ids}
}

func (f *fixture) ledger(t *testing.T, month time.Time) map[int64]int64 {
	t.Helper()
	rows, err := f.store.DownloadsForMonth(context.Background(), month)
	require.NoError(t, err)
	got := make(map[int64]int64, len(rows))
	for _, d := range rows {
		got[d.PackageID] = d.Downloads
	}
	return got
}

func marchRecords() []models.CountRecord {
	return []models.CountRecord{
		{PackageName: "A", Downloads: 100},
		{PackageName: "B", Downloads: 50},
		{PackageName: "A", Downloads: 25},
		{PackageName: "C", Downloads: 9},
	}
}

func TestReconcileEndToEnd(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")

	result, err := f.service.Reconcile(context.Background(), march2024, source.Records(marchRecords()))
	require.NoError(t, err)

	assert.Equal(t, models.ReconcileResult{Processed: 4, Created: 2, Updated: 0, NotFound: 1}, result)
	assert.Equal(t, map[int64]int64{f.ids["A"]: 125, f.ids["B"]: 50}, f.ledger(t, march2024))
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, march2024, source.Records(marchRecords()))
	require.NoError(t, err)
	first := f.ledger(t, march2024)

	f.service.now = func() time.Time { return time.Date(2024, time.April, 9, 0, 0, 0, 0, time.UTC) }
	result, err := f.service.Reconcile(ctx, march2024, source.Records(marchRecords()))
	require.NoError(t, err)

	assert.Equal(t, first, f.ledger(t, march2024))
	assert.Equal(t, models.ReconcileResult{Processed: 4, Created: 0, Updated: 2, NotFound: 1}, result)

	rows, err := f.store.DownloadsForMonth(ctx, march2024)
	require.NoError(t, err)
	for _, d := range rows {
		assert.True(t, d.ImportedAt.Equal(time.Date(2024, time.April, 9, 0, 0, 0, 0, time.UTC)))
	}
}

func TestReconcileDecaysStaleRows(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, march2024, source.Records(marchRecords()))
	require.NoError(t, err)

	result, err := f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 7}}))
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{f.ids["A"]: 7, f.ids["B"]: 0}, f.ledger(t, march2024))
	assert.Equal(t, 1, result.Updated)
}

func TestReconcileKeepsMonthsApart(t *testing.T) {
	f := newFixture(t, 5000, "A")
	ctx := context.Background()
	april := march2024.AddDate(0, 1, 0)

	_, err := f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 3}}))
	require.NoError(t, err)
	_, err = f.service.Reconcile(ctx, april, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 4}}))
	require.NoError(t, err)

	assert.Equal(t, map[int64]int64{f.ids["A"]: 3}, f.ledger(t, march2024))
	assert.Equal(t, map[int64]int64{f.ids["A"]: 4}, f.ledger(t, april))
}

func TestReconcileUnknownNamesOnly(t *testing.T) {
	f := newFixture(t, 5000, "A")

	result, err := f.service.Reconcile(context.Background(), march2024, source.Records([]models.CountRecord{{PackageName: "ghost", Downloads: 1}}))
	require.NoError(t, err)

	assert.Equal(t, models.ReconcileResult{Processed: 1, NotFound: 1}, result)
	assert.Empty(t, f.ledger(t, march2024))
}

func TestReconcileCommitsInOrderedBatches(t *testing.T) {
	f := newFixture(t, 2, "A", "B", "C", "D", "E")
	records := []models.CountRecord{
		{PackageName: "E", Downloads: 1},
		{PackageName: "C", Downloads: 1},
		{PackageName: "A", Downloads: 1},
		{PackageName: "D", Downloads: 1},
		{PackageName: "B", Downloads: 1},
	}

	_, err := f.service.Reconcile(context.Background(), march2024, source.Records(records))
	require.NoError(t, err)

	assert.Equal(t, [][]int64{
		{f.ids["A"], f.ids["B"]},
		{f.ids["C"], f.ids["D"]},
		{f.ids["E"]},
	}, f.store.batches)
}

func TestReconcileEmptyMonthStillCommits(t *testing.T) {
	f := newFixture(t, 5000, "A")

	result, err := f.service.Reconcile(context.Background(), march2024, source.Records(nil))
	require.NoError(t, err)

	assert.Equal(t, models.ReconcileResult{}, result)
	assert.Len(t, f.store.batches, 1)
}

func TestReconcileStorageFailure(t *testing.T) {
	f := newFixture(t, 5000, "A")
	f.store.failUpsert = errors.New("deadlock")

	_, err := f.service.Reconcile(context.Background(), march2024, source.Records(marchRecords()))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeStorage))
}

func TestImportMonthRecordsRun(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	f.fetcher.records = marchRecords()

	result, err := f.service.ImportMonth(context.Background(), march2024.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, []time.Time{march2024}, f.fetcher.months)

	runs, err := f.service.ImportHistory(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, "fake", runs[0].Source)
	assert.Equal(t, 2, runs[0].Created)
	assert.Equal(t, 1, runs[0].NotFound)
	assert.True(t, march2024.Equal(runs[0].Month))
	require.NotNil(t, runs[0].FinishedAt)
}

func TestImportMonthSourceFailure(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	f.fetcher.records = marchRecords()
	f.fetcher.err = apperrors.Wrap(apperrors.ErrCodeSourceQuery, errors.New("quota exceeded"), "fake window")

	_, err := f.service.ImportMonth(context.Background(), march2024)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeSourceQuery))
	assert.Empty(t, f.store.batches)
	assert.Empty(t, f.ledger(t, march2024))

	runs, err := f.service.ImportHistory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "quota exceeded")
}

func TestImportRange(t *testing.T) {
	f := newFixture(t, 5000, "A")
	f.fetcher.records = []models.CountRecord{{PackageName: "A", Downloads: 2}}

	var reported []time.Time
	err := f.service.ImportRange(context.Background(), march2024, march2024.AddDate(0, 3, 0), func(month time.Time, result models.ReconcileResult) {
		reported = append(reported, month)
		assert.Equal(t, 1, result.Processed)
	})
	require.NoError(t, err)

	want := []time.Time{march2024, march2024.AddDate(0, 1, 0), march2024.AddDate(0, 2, 0)}
	assert.Equal(t, want, reported)
	assert.Equal(t, want, f.fetcher.months)
}

func TestImportRangeRejectsEmptyRange(t *testing.T) {
	f := newFixture(t, 5000, "A")

	err := f.service.ImportRange(context.Background(), march2024, march2024, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeInvalidInput))
	assert.Empty(t, f.fetcher.months)
}

func TestIncompleteMonths(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	ctx := context.Background()
	feb := march2024.AddDate(0, -1, 0)

	// February imported after it ended, March imported while still running.
	f.service.now = func() time.Time { return time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC) }
	_, err := f.service.Reconcile(ctx, feb, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 1}}))
	require.NoError(t, err)
	_, err = f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 1}}))
	require.NoError(t, err)

	months, err := f.service.IncompleteMonths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{march2024}, months)

	// a later complete re-import of March clears it
	f.service.now = func() time.Time { return time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC) }
	_, err = f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 1}}))
	require.NoError(t, err)

	months, err = f.service.IncompleteMonths(ctx)
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestIncompleteMonthsStaleUntouchedRow(t *testing.T) {
	f := newFixture(t, 5000, "A", "B")
	ctx := context.Background()

	f.service.now = func() time.Time { return time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC) }
	_, err := f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 1}, {PackageName: "B", Downloads: 1}}))
	require.NoError(t, err)

	// B gets no records in the re-run and keeps its early imported_at
	f.service.now = func() time.Time { return time.Date(2024, time.April, 5, 0, 0, 0, 0, time.UTC) }
	_, err = f.service.Reconcile(ctx, march2024, source.Records([]models.CountRecord{{PackageName: "A", Downloads: 1}}))
	require.NoError(t, err)

	months, err := f.service.IncompleteMonths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{march2024}, months)
}
