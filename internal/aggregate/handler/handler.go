// Package handler wires the aggregation endpoints to the orchestrator. Thin
// transport layer; all policy lives in the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"konkurs/internal/aggregate/models"
	"konkurs/internal/archive"
	"konkurs/internal/ingest"
	dErrors "konkurs/pkg/domain-errors"
	"konkurs/pkg/platform/httputil"
	"konkurs/pkg/requestcontext"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Service defines the orchestrator operations the handler depends on.
type Service interface {
	LookupEntity(ctx context.Context, registryNumber string) (*models.AggregatedProfile, error)
	ListByDate(ctx context.Context, date string) ([]*models.AggregatedProfile, error)
	LookupLawyer(ctx context.Context, name string) (models.Lawyer, error)
}

// Archive defines the archived-case queries the handler depends on.
type Archive interface {
	Recent(ctx context.Context, limit int) ([]archive.Case, error)
	ByLawyer(ctx context.Context, name string) ([]archive.Case, error)
}

// Ingestor triggers a manual ingestion run.
type Ingestor interface {
	Run(ctx context.Context, date string) (ingest.Result, error)
}

// Handler exposes the public aggregation API.
type Handler struct {
	service Service
	archive Archive
	ingest  Ingestor
	logger  *slog.Logger
}

// New constructs the handler with its dependencies.
func New(service Service, arch Archive, ingestor Ingestor, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		archive: arch,
		ingest:  ingestor,
		logger:  logger,
	}
}

// Register mounts the public endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/entity/{id}", h.HandleEntity)
	r.Get("/insolvencies", h.HandleInsolvencies)
	r.Get("/insolvencies/recent", h.HandleRecent)
	r.Get("/lawyers/{name}", h.HandleLawyer)
}

// RegisterAdmin mounts the admin endpoints; the router guards them with the
// admin-token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/ingest", h.HandleIngest)
}

// HandleEntity handles GET /entity/{id}.
func (h *Handler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryNumber := chi.URLParam(r, "id")

	profile, err := h.service.LookupEntity(ctx, registryNumber)
	if err != nil {
		h.logError(ctx, "entity lookup failed", err, "cvr", registryNumber)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

// HandleInsolvencies handles GET /insolvencies?date=YYYY-MM-DD.
func (h *Handler) HandleInsolvencies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := r.URL.Query().Get("date")
	if date == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "date query parameter is required"))
		return
	}

	profiles, err := h.service.ListByDate(ctx, date)
	if err != nil {
		h.logError(ctx, "date listing failed", err, "date", date)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"date":         date,
		"insolvencies": profiles,
		"entity_count": len(profiles),
	})
}

// HandleRecent handles GET /insolvencies/recent?limit=N from the archive.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "limit must be between 1 and %d", maxRecentLimit))
			return
		}
		limit = n
	}

	cases, err := h.archive.Recent(ctx, limit)
	if err != nil {
		h.logError(ctx, "recent cases query failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "archive query failed"))
		return
	}
	if cases == nil {
		cases = []archive.Case{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"insolvencies": cases})
}

// lawyerResponse pairs lawyer details with the archived cases they appear on.
type lawyerResponse struct {
	Lawyer models.Lawyer  `json:"lawyer"`
	Cases  []archive.Case `json:"insolvencies"`
}

// HandleLawyer handles GET /lawyers/{name}. The lookup service provides the
// details; the archive provides the case list. A degraded lookup still
// returns archived cases under a name-only lawyer.
func (h *Handler) HandleLawyer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	cases, err := h.archive.ByLawyer(ctx, name)
	if err != nil {
		h.logError(ctx, "lawyer cases query failed", err, "name", name)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "archive query failed"))
		return
	}

	lawyer, err := h.service.LookupLawyer(ctx, name)
	if err != nil {
		if len(cases) == 0 {
			h.logError(ctx, "lawyer lookup failed", err, "name", name)
			httputil.WriteError(w, err)
			return
		}
		// Archive knows the lawyer even though the lookup is unavailable.
		lawyer = models.Lawyer{Name: name}
	}
	if cases == nil {
		cases = []archive.Case{}
	}
	httputil.WriteJSON(w, http.StatusOK, lawyerResponse{Lawyer: lawyer, Cases: cases})
}

// HandleIngest handles POST /admin/ingest?date=D; date defaults to today.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date := r.URL.Query().Get("date")
	if date == "" {
		date = requestcontext.Now(ctx).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "date must be YYYY-MM-DD"))
		return
	}

	res, err := h.ingest.Run(ctx, date)
	if err != nil {
		h.logError(ctx, "manual ingestion failed", err, "date", date)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	if dErrors.CodeOf(err) == dErrors.CodeNotFound || dErrors.CodeOf(err) == dErrors.CodeBadRequest {
		return
	}
	all := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	}, args...)
	h.logger.ErrorContext(ctx, msg, all...)
}
