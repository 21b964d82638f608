package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soratidus999/taxtools/internal/app"
	"github.com/soratidus999/taxtools/internal/esi"
	jobmetrics "github.com/soratidus999/taxtools/internal/jobs"
	"github.com/soratidus999/taxtools/internal/payouts"
	"github.com/soratidus999/taxtools/internal/platform/cache"
	"github.com/soratidus999/taxtools/internal/platform/db"
	"github.com/soratidus999/taxtools/internal/rates"
	"github.com/soratidus999/taxtools/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	jobMetrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)

	taxSyncJob := jobs.NewTaxSyncJob(ratesService, logger, jobMetrics)
	taxSyncJob.Redis = redisClient
	payoutRunJob := jobs.NewPayoutRunJob(payoutsService, logger, jobMetrics)

	taxSyncTask, err := jobs.NewTaxSyncTask(jobs.TaxSyncPayload{})
	if err != nil {
		logger.Error("build tax sync task", slog.Any("error", err))
		os.Exit(1)
	}
	payoutRunTask, err := jobs.NewPayoutRunTask(jobs.PayoutRunPayload{})
	if err != nil {
		logger.Error("build payout run task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTaxSync, Handler: taxSyncJob.Handle},
			{Type: jobs.TaskPayoutRun, Handler: payoutRunJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.TaxSyncCron, Task: taxSyncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.PayoutRunCron, Task: payoutRunTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
