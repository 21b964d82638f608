package membertax

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soratidus999/taxtools/internal/platform/httpx"
)

// Handler wires head tax endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/membertax", func(r chi.Router) {
		r.Get("/configs", h.listConfigs)
		r.Get("/configs/{configID}/invoices", h.invoices)
		r.Get("/configs/{configID}/stats", h.stats)
	})
}

func (h *Handler) listConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.service.Configs(r.Context())
	if err != nil {
		h.logger.Error("list member tax configs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, configs)
}

func (h *Handler) invoices(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.configID(w, r)
	if !ok {
		return
	}
	invoices, err := h.service.InvoiceData(r.Context(), configID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("member tax invoices", slog.Int64("config_id", configID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	configID, ok := h.configID(w, r)
	if !ok {
		return
	}
	stats, err := h.service.InvoiceStats(r.Context(), configID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("member tax stats", slog.Int64("config_id", configID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) configID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "configID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid config id")
		return 0, false
	}
	return id, true
}
