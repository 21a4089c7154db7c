package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
)

var march2024 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

type fakeDownloads struct {
	incomplete []time.Time
	runs       []models.ImportRun
	result     models.ReconcileResult
	err        error
	imported   []time.Time
	limit      int
	started    chan struct{}
	block      chan struct{}
}

func (f *fakeDownloads) IncompleteMonths(context.Context) ([]time.Time, error) {
	return f.incomplete, f.err
}

func (f *fakeDownloads) ImportHistory(_ context.Context, limit int) ([]models.ImportRun, error) {
	f.limit = limit
	return f.runs, f.err
}

func (f *fakeDownloads) ImportMonth(_ context.Context, month time.Time) (models.ReconcileResult, error) {
	if f.block != nil {
		close(f.started)
		<-f.block
	}
	f.imported = append(f.imported, month)
	return f.result, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, downloads *fakeDownloads, db Pinger) *httptest.Server {
	t.Helper()
	h := NewAdminHandler(downloads, db, log.New(io.Discard))
	srv := httptest.NewServer(NewRouter(h, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeDownloads{}, fakePinger{})
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	down := newTestServer(t, &fakeDownloads{}, fakePinger{err: errors.New("refused")})
	resp, err = http.Get(down.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIncompleteMonths(t *testing.T) {
	srv := newTestServer(t, &fakeDownloads{incomplete: []time.Time{march2024}}, fakePinger{})
	resp, err := http.Get(srv.URL + "/api/admin/incomplete-months")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[models.IncompleteMonthsResponse](t, resp)
	assert.False(t, body.Complete)
	require.Len(t, body.Months, 1)
	assert.True(t, march2024.Equal(body.Months[0]))
}

func TestIncompleteMonthsAllComplete(t *testing.T) {
	srv := newTestServer(t, &fakeDownloads{}, fakePinger{})
	resp, err := http.Get(srv.URL + "/api/admin/incomplete-months")
	require.NoError(t, err)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["complete"])
	assert.Equal(t, []any{}, body["months"])
}

func TestImportRunsLimit(t *testing.T) {
	downloads := &fakeDownloads{runs: []models.ImportRun{{ID: 7, Source: "bigquery", Status: models.RunStatusSucceeded}}}
	srv := newTestServer(t, downloads, fakePinger{})

	resp, err := http.Get(srv.URL + "/api/admin/import-runs?limit=5")
	require.NoError(t, err)
	runs := decode[[]models.ImportRun](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(7), runs[0].ID)
	assert.Equal(t, 5, downloads.limit)

	resp, err = http.Get(srv.URL + "/api/admin/import-runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, defaultRunsLimit, downloads.limit)

	resp, err = http.Get(srv.URL + "/api/admin/import-runs?limit=zero")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportMonth(t *testing.T) {
	downloads := &fakeDownloads{result: models.ReconcileResult{Processed: 4, Created: 2, NotFound: 1}}
	srv := newTestServer(t, downloads, fakePinger{})

	resp, err := http.Post(srv.URL+"/api/admin/import-downloads/2024-03", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[models.ImportMonthResponse](t, resp)
	assert.Equal(t, 4, body.Result.Processed)
	assert.True(t, march2024.Equal(body.Month))
	assert.Equal(t, []time.Time{march2024}, downloads.imported)
}

func TestImportMonthErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
		code   string
	}{
		{"bad month", "/api/admin/import-downloads/march", nil, http.StatusBadRequest, "INVALID_MONTH"},
		{"source failure", "/api/admin/import-downloads/2024-03", apperrors.Wrap(apperrors.ErrCodeSourceQuery, errors.New("quota"), "window"), http.StatusBadGateway, "SOURCE_QUERY_FAILURE"},
		{"storage failure", "/api/admin/import-downloads/2024-03", apperrors.Wrap(apperrors.ErrCodeStorage, errors.New("deadlock"), "commit"), http.StatusInternalServerError, "STORAGE_FAILURE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeDownloads{err: tt.err}, fakePinger{})
			resp, err := http.Post(srv.URL+tt.path, "application/json", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[map[string]string](t, resp)["code"])
		})
	}
}

func TestImportMonthRejectsConcurrentImport(t *testing.T) {
	downloads := &fakeDownloads{started: make(chan struct{}), block: make(chan struct{})}
	srv := newTestServer(t, downloads, fakePinger{})

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/api/admin/import-downloads/2024-03", "application/json", nil)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()
	<-downloads.started

	resp, err := http.Post(srv.URL+"/api/admin/import-downloads/2024-04", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(downloads.block)
	assert.Equal(t, http.StatusOK, <-first)
}
