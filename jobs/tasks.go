package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTaxSync refreshes every audited corp's tax rate timeline.
	TaskTaxSync = "rates:sync_all"
	// TaskPayoutRun aggregates a payout configuration over a trailing window.
	TaskPayoutRun = "payouts:run"
)

// TaxSyncPayload describes a timeline sync task. CorporationID zero means all
// audited corporations.
type TaxSyncPayload struct {
	CorporationID int64 `json:"corporation_id"`
}

// NewTaxSyncTask constructs an Asynq task for timeline sync.
func NewTaxSyncTask(payload TaxSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTaxSync, data), nil
}

// PayoutRunPayload describes a scheduled aggregation over a trailing window.
// ConfigID zero runs every configuration.
type PayoutRunPayload struct {
	ConfigID   int64 `json:"config_id"`
	WindowDays int   `json:"window_days"`
}

// NewPayoutRunTask constructs an Asynq task for a payout aggregation run.
func NewPayoutRunTask(payload PayoutRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPayoutRun, data), nil
}
