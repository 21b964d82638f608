package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimelinePoint is a single persisted fact asserting that a corporation's tax
// rate took effect at a moment in time. Rates are percentages on a 0-100 scale
// with two decimal places. Points are never updated once stored; re-syncing
// the same history is a no-op.
type TimelinePoint struct {
	CorporationID int64           `json:"corporation_id"`
	EffectiveAt   time.Time       `json:"effective_at"`
	Rate          decimal.Decimal `json:"rate"`
}

// RateChange is one collapsed CorpTaxChangeMsg notification for a corporation.
type RateChange struct {
	NotificationID int64
	EffectiveAt    time.Time
	Rate           decimal.Decimal
}

// NotificationRow is a raw notification as captured by the corp audit ingest.
// Timestamps are minute-accurate; NotificationID is monotonically increasing
// and breaks ties between notifications reported for the same minute.
type NotificationRow struct {
	NotificationID int64
	CorporationID  int64
	Timestamp      time.Time
	Text           string
}

// Corporation identifies an audited corporation eligible for timeline sync.
type Corporation struct {
	ID   int64
	Name string
}
