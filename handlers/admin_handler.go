// handlers/admin_handler.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/utils"
)

const defaultRunsLimit = 50

// DownloadAdmin is the part of the download service the admin API drives.
type DownloadAdmin interface {
	IncompleteMonths(ctx context.Context) ([]time.Time, error)
	ImportHistory(ctx context.Context, limit int) ([]models.ImportRun, error)
	ImportMonth(ctx context.Context, month time.Time) (models.ReconcileResult, error)
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdminHandler serves health and import administration endpoints.
type AdminHandler struct {
	downloads DownloadAdmin
	db        Pinger
	logger    *log.Logger

	importing sync.Mutex // one import at a time
}

func NewAdminHandler(downloads DownloadAdmin, db Pinger, logger *log.Logger) *AdminHandler {
	return &AdminHandler{downloads: downloads, db: db, logger: logger.WithPrefix("http")}
}

// Health handles GET /api/health.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "err", err)
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database connection error"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IncompleteMonths handles GET /api/admin/incomplete-months.
func (h *AdminHandler) IncompleteMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.downloads.IncompleteMonths(r.Context())
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if months == nil {
		months = []time.Time{}
	}
	respondWithJSON(w, http.StatusOK, models.IncompleteMonthsResponse{Complete: len(months) == 0, Months: months})
}

// ImportRuns handles GET /api/admin/import-runs?limit=N.
func (h *AdminHandler) ImportRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondWithError(w, h.logger, apperrors.New(apperrors.ErrCodeInvalidInput, "limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}

	runs, err := h.downloads.ImportHistory(r.Context(), limit)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	if runs == nil {
		runs = []models.ImportRun{}
	}
	respondWithJSON(w, http.StatusOK, runs)
}

// ImportMonth handles POST /api/admin/import-downloads/{month}. The month is
// imported synchronously; a second request while one runs gets 409.
func (h *AdminHandler) ImportMonth(w http.ResponseWriter, r *http.Request) {
	month, err := utils.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}

	if !h.importing.TryLock() {
		respondWithJSON(w, http.StatusConflict, map[string]string{"error": "an import is already running"})
		return
	}
	defer h.importing.Unlock()

	h.logger.Info("import requested", "month", month.Format("2006-01"))
	result, err := h.downloads.ImportMonth(r.Context(), month)
	if err != nil {
		respondWithError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ImportMonthResponse{Month: month, Result: result})
}
