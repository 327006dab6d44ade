package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/pkg/logger"
)

// ReportsHandler serves final reports of finished engagements
type ReportsHandler struct {
	repo    ReportReader
	archive ReportArchiveReader
	logger  *logger.Logger
}

// NewReportsHandler creates a new reports handler. Either source may be nil.
func NewReportsHandler(repo ReportReader, archive ReportArchiveReader, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{
		repo:    repo,
		archive: archive,
		logger:  log.WithComponent("reports-handler"),
	}
}

// ReportListResponse wraps a page of reports
type ReportListResponse struct {
	Reports []*models.ReportRecord `json:"reports"`
	Count   int                    `json:"count"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
	Source  string                 `json:"source"`
}

// Get handles GET /api/v1/reports/{id}. Postgres is authoritative; the
// Redis archive answers when the database is absent or lags behind.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report ID")
		return
	}

	if h.repo == nil && h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "Report storage not configured")
		return
	}

	if h.repo != nil {
		rec, err := h.repo.GetByID(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec)
			return
		case !errors.Is(err, repository.ErrReportNotFound):
			h.logger.Warn().Err(err).Str("report_id", id.String()).Msg("report lookup failed, trying archive")
		}
	}

	if h.archive != nil {
		rec, err := h.archive.GetArchivedReport(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, rec)
			return
		case !errors.Is(err, cache.ErrNotFound):
			h.logger.Error().Err(err).Str("report_id", id.String()).Msg("archive lookup failed")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	writeError(w, http.StatusNotFound, "Report not found")
}

// List handles GET /api/v1/reports, optionally filtered by ?session_id=
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	var (
		reports []*models.ReportRecord
		source  string
		err     error
	)
	switch {
	case h.repo != nil && sessionID != "":
		source = "postgres"
		offset = 0
		reports, err = h.repo.ListBySession(r.Context(), sessionID)
	case h.repo != nil:
		source = "postgres"
		reports, err = h.repo.List(r.Context(), limit, offset)
	case h.archive != nil:
		// the archive is newest-first without paging
		source = "redis"
		offset = 0
		reports, err = h.archive.ListArchivedReports(r.Context(), limit)
		if err == nil && sessionID != "" {
			reports = slices.DeleteFunc(reports, func(rec *models.ReportRecord) bool {
				return rec.Report.SessionID != sessionID
			})
		}
	default:
		writeError(w, http.StatusServiceUnavailable, "Report storage not configured")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("source", source).Msg("failed to list reports")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, ReportListResponse{
		Reports: reports,
		Count:   len(reports),
		Limit:   limit,
		Offset:  offset,
		Source:  source,
	})
}
