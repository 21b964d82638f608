package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/soratidus999/taxtools/internal/app"
	"github.com/soratidus999/taxtools/internal/esi"
	jobmetrics "github.com/soratidus999/taxtools/internal/jobs"
	"github.com/soratidus999/taxtools/internal/membertax"
	"github.com/soratidus999/taxtools/internal/observability"
	"github.com/soratidus999/taxtools/internal/payouts"
	payoutshttp "github.com/soratidus999/taxtools/internal/payouts/http"
	"github.com/soratidus999/taxtools/internal/platform/cache"
	"github.com/soratidus999/taxtools/internal/platform/db"
	"github.com/soratidus999/taxtools/internal/rates"
	rateshttp "github.com/soratidus999/taxtools/internal/rates/http"
	"github.com/soratidus999/taxtools/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := db.RunMigrations(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	esiClient := esi.NewClient(cfg.ESIBaseURL, cfg.ESITimeout, redisClient, cfg.ESICacheTTL, logger)

	ratesRepo := rates.NewPgRepository(pool)
	ratesService := rates.NewService(ratesRepo, logger)

	payoutsRepo := payouts.NewPgRepository(pool)
	payoutsService := payouts.NewService(payoutsRepo, ratesService, esiClient, logger)

	memberRepo := membertax.NewPgRepository(pool)
	memberService := membertax.NewService(memberRepo, esiClient, logger)

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		RatesHandler:     rateshttp.NewHandler(logger, ratesService, jobsClient),
		PayoutsHandler:   payoutshttp.NewHandler(logger, payoutsService, jobMetrics),
		MemberTaxHandler: membertax.NewHandler(logger, memberService),
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
