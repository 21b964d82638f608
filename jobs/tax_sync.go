package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/soratidus999/taxtools/internal/jobs"
	"github.com/soratidus999/taxtools/internal/rates"
	"github.com/soratidus999/taxtools/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const syncLockTTL = 10 * time.Minute

// TaxSyncJob refreshes corp tax rate timelines from the notification feed.
// When a Redis client is supplied, overlapping runs for the same scope are
// skipped via a best-effort lock; without it the single worker queue is the
// only serialization.
type TaxSyncJob struct {
	Rates   *rates.Service
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTaxSyncJob wires dependencies for the sync handler.
func NewTaxSyncJob(ratesSvc *rates.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *TaxSyncJob {
	return &TaxSyncJob{Rates: ratesSvc, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTaxSync tasks.
func (j *TaxSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Rates == nil {
		return errors.New("tax sync: handler not configured")
	}
	var payload TaxSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	if j.Redis != nil {
		// Corp id zero locks the fleet-wide run.
		key := shared.CorpSyncLockKey(payload.CorporationID)
		ok, err := j.Redis.SetNX(ctx, key, "1", syncLockTTL).Result()
		if err != nil {
			j.logger().Warn("sync lock unavailable, proceeding unlocked", slog.Any("error", err))
		} else if !ok {
			j.logger().Info("sync already in progress, skipping",
				slog.Int64("corporation_id", payload.CorporationID))
			return nil
		} else {
			defer j.Redis.Del(context.WithoutCancel(ctx), key)
		}
	}

	tracker := j.metrics().Track(TaskTaxSync)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	if payload.CorporationID != 0 {
		created, err := j.Rates.Sync(ctx, payload.CorporationID)
		if err != nil {
			resultErr = err
			logger.Error("tax sync", slog.Int64("corporation_id", payload.CorporationID), slog.Any("error", err))
			return resultErr
		}
		j.metrics().AddTimelinePoints(created)
		logger.Info("tax sync complete",
			slog.Int64("corporation_id", payload.CorporationID), slog.Int("created", created))
		return nil
	}

	results, err := j.Rates.SyncAll(ctx)
	total := 0
	for name, created := range results {
		total += created
		if created > 0 {
			logger.Info("tax history updated", slog.String("corporation", name), slog.Int("created", created))
		}
	}
	j.metrics().AddTimelinePoints(total)
	if err != nil {
		// Partial failure: some corps synced, others did not. The successes
		// stay persisted; surface the failures so asynq retries.
		resultErr = err
		logger.Error("tax sync finished with failures", slog.Int("created", total), slog.Any("error", err))
		return resultErr
	}
	logger.Info("tax sync complete", slog.Int("corporations", len(results)), slog.Int("created", total))
	return nil
}

func (j *TaxSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TaxSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
