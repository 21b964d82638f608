package payoutshttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/soratidus999/taxtools/internal/jobs"
	"github.com/soratidus999/taxtools/internal/payouts"
	"github.com/soratidus999/taxtools/internal/platform/httpx"
)

// Handler wires payout aggregation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *payouts.Service
	validate *validator.Validate
	metrics  *jobmetrics.Metrics
}

// NewHandler constructs handler.
func NewHandler(logger *slog.Logger, service *payouts.Service, metrics *jobmetrics.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		metrics:  metrics,
	}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/payouts", func(r chi.Router) {
		r.Get("/configs", h.listConfigs)
		r.Post("/configs", h.createConfig)
		r.Patch("/configs/{configID}", h.updateTax)
		r.Get("/configs/{configID}/aggregates", h.aggregates)
		r.Get("/configs/{configID}/aggregates/corporations", h.corpAggregates)
		r.Post("/configs/{configID}/commit", h.commit)
	})
}

func (h *Handler) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.Configs(r.Context())
	if err != nil {
		h.logger.Error("list payout configs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, configs)
}

type createConfigRequest struct {
	CorporationID   int64   `json:"corporation_id" validate:"required,gt=0"`
	CorporationName string  `json:"corporation_name" validate:"required"`
	RefType         string  `json:"ref_type" validate:"required"`
	Tax             float64 `json:"tax" validate:"gte=0,lte=100"`
	Scope           string  `json:"scope" validate:"omitempty,oneof=character corporation"`
}

func (h *Handler) createConfig(w http.ResponseWriter, r *http.Request) {
	var req createConfigRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cfg, err := h.service.CreateConfig(r.Context(), payouts.TaxConfiguration{
		CorporationID:   req.CorporationID,
		CorporationName: req.CorporationName,
		RefType:         req.RefType,
		Tax:             decimal.NewFromFloat(req.Tax),
		Scope:           payouts.ConfigScope(req.Scope),
	})
	if err != nil {
		if errors.Is(err, payouts.ErrConfigExists) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
			return
		}
		h.logger.Error("create payout config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cfg)
}

type updateTaxRequest struct {
	Tax float64 `json:"tax" validate:"gte=0,lte=100"`
}

func (h *Handler) updateTax(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.configID(w, r)
	if !ok {
		return
	}
	var req updateTaxRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cfg, err := h.service.UpdateTax(r.Context(), configID, decimal.NewFromFloat(req.Tax))
	if err != nil {
		if errors.Is(err, payouts.ErrConfigNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("update payout config", slog.Int64("config_id", configID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *Handler) aggregates(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.runAggregation(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) corpAggregates(w http.ResponseWriter, r *http.Request) {
	result, _, ok := h.runAggregation(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"buckets":            payouts.Rollup(result.Buckets, payouts.ByCorporation),
		"duplicates_skipped": result.DuplicatesSkipped,
	})
}

type commitRequest struct {
	StartDate   string  `json:"start_date" validate:"required"`
	EndDate     string  `json:"end_date" validate:"required"`
	EntryIDs    []int64 `json:"entry_ids" validate:"required,min=1"`
	BucketCount int     `json:"bucket_count" validate:"gte=0"`
}

// commit marks the listed entries processed. Kept separate from aggregation so
// operators can inspect a run before making it non-reprocessable.
func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.configID(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid start_date")
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid end_date")
		return
	}

	cfg, err := h.service.Config(r.Context(), configID)
	if err != nil {
		if errors.Is(err, payouts.ErrConfigNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}

	rec, err := h.service.Commit(r.Context(), cfg, start, end, req.BucketCount, req.EntryIDs)
	if err != nil {
		h.logger.Error("commit payout run", slog.Int64("config_id", configID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.metrics.AddMarkedEntries(rec.MarkedCount)
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) runAggregation(w http.ResponseWriter, r *http.Request) (*payouts.Result, payouts.TaxConfiguration, bool) {
	configID, ok := h.configID(w, r)
	if !ok {
		return nil, payouts.TaxConfiguration{}, false
	}
	cfg, err := h.service.Config(r.Context(), configID)
	if err != nil {
		if errors.Is(err, payouts.ErrConfigNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return nil, payouts.TaxConfiguration{}, false
		}
		httpx.RespondError(w, err)
		return nil, payouts.TaxConfiguration{}, false
	}

	start, end, err := windowParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return nil, payouts.TaxConfiguration{}, false
	}

	result, err := h.service.Aggregate(r.Context(), cfg, start, end, payouts.Options{})
	if err != nil {
		h.logger.Error("aggregate payouts", slog.Int64("config_id", configID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return nil, payouts.TaxConfiguration{}, false
	}
	return result, cfg, true
}

func (h *Handler) configID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "configID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid config id")
		return 0, false
	}
	return id, true
}

func windowParams(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	var start time.Time
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start parameter")
		}
		start = parsed
	}
	if v := r.URL.Query().Get("end"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end parameter")
		}
		end = parsed
	}
	return start, end, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
