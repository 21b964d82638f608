package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/soratidus999/taxtools/internal/membertax"
	"github.com/soratidus999/taxtools/internal/observability"
	payoutshttp "github.com/soratidus999/taxtools/internal/payouts/http"
	rateshttp "github.com/soratidus999/taxtools/internal/rates/http"
	"github.com/soratidus999/taxtools/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	RatesHandler     *rateshttp.Handler
	PayoutsHandler   *payoutshttp.Handler
	MemberTaxHandler *membertax.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with taxtools defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.RatesHandler != nil {
		r.Route("/rates", func(r chi.Router) {
			params.RatesHandler.MountRoutes(r)
		})
	}
	if params.PayoutsHandler != nil {
		params.PayoutsHandler.MountRoutes(r)
	}
	if params.MemberTaxHandler != nil {
		params.MemberTaxHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
