package rateshttp

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soratidus999/taxtools/internal/platform/httpx"
	"github.com/soratidus999/taxtools/internal/rates"
	"github.com/soratidus999/taxtools/jobs"
)

// Handler wires tax rate timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service *rates.Service
	jobs    *jobs.Client
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *rates.Service, jobsClient *jobs.Client) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, jobs: jobsClient}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/corporations", func(r chi.Router) {
		r.Get("/{corporationID}/timeline", h.timeline)
		r.Post("/{corporationID}/sync", h.sync)
	})
	r.Post("/sync", h.syncAll)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	corpID, err := strconv.ParseInt(chi.URLParam(r, "corporationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid corporation id")
		return
	}
	timeline, err := h.service.Timeline(r.Context(), corpID)
	if err != nil {
		h.logger.Error("load timeline", slog.Int64("corporation_id", corpID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"corporation_id": corpID,
		"points":         timeline.Points(),
	})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	corpID, err := strconv.ParseInt(chi.URLParam(r, "corporationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid corporation id")
		return
	}
	created, err := h.service.Sync(r.Context(), corpID)
	if err != nil {
		h.logger.Error("sync timeline", slog.Int64("corporation_id", corpID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"corporation_id": corpID,
		"created":        created,
	})
}

// syncAll enqueues a background sync across all audited corporations rather
// than blocking the request on every corp's notification feed.
func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Jobs Unavailable", "job queue not configured")
		return
	}
	info, err := h.jobs.EnqueueTaxSync(r.Context(), jobs.TaxSyncPayload{})
	if err != nil {
		h.logger.Error("enqueue tax sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"task_id": info.ID})
}
