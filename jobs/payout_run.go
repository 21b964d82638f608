package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/soratidus999/taxtools/internal/jobs"
	"github.com/soratidus999/taxtools/internal/payouts"
)

// PayoutRunJob aggregates payout configurations over a trailing window. The
// run is read-only: it warms reports and metrics but never marks entries
// processed, so operators can inspect totals before committing through the
// API.
type PayoutRunJob struct {
	Payouts *payouts.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	clock func() time.Time
}

// NewPayoutRunJob wires dependencies for the payout run handler.
func NewPayoutRunJob(payoutsSvc *payouts.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *PayoutRunJob {
	return &PayoutRunJob{
		Payouts: payoutsSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskPayoutRun tasks.
func (j *PayoutRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Payouts == nil {
		return errors.New("payout run: handler not configured")
	}
	var payload PayoutRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 30
	}

	tracker := j.metrics().Track(TaskPayoutRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	end := j.clock()
	start := end.AddDate(0, 0, -payload.WindowDays)

	configs, err := j.loadConfigs(ctx, payload.ConfigID)
	if err != nil {
		resultErr = err
		j.logger().Error("payout run: load configs", slog.Any("error", err))
		return resultErr
	}

	for _, cfg := range configs {
		logger := j.logger().With(
			slog.Int64("config_id", cfg.ID),
			slog.String("corporation", cfg.CorporationName),
			slog.String("scope", string(cfg.Scope)))

		result, err := j.Payouts.Aggregate(ctx, cfg, start, end, payouts.Options{})
		if err != nil {
			// One config's upstream failure must not abort the others.
			resultErr = errors.Join(resultErr, err)
			logger.Error("payout aggregation failed", slog.Any("error", err))
			continue
		}
		logger.Info("payout aggregation complete",
			slog.Int("buckets", len(result.Buckets)),
			slog.Int("duplicates_skipped", result.DuplicatesSkipped))
	}
	return resultErr
}

func (j *PayoutRunJob) loadConfigs(ctx context.Context, configID int64) ([]payouts.TaxConfiguration, error) {
	if configID != 0 {
		cfg, err := j.Payouts.Config(ctx, configID)
		if err != nil {
			return nil, err
		}
		return []payouts.TaxConfiguration{cfg}, nil
	}
	return j.Payouts.Configs(ctx)
}

func (j *PayoutRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PayoutRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
