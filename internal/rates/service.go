package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Repository abstracts persistence for notifications and timeline points.
type Repository interface {
	// ListTaxChangeNotifications returns CorpTaxChangeMsg rows for the corp
	// ordered by (timestamp, notification_id) ascending.
	ListTaxChangeNotifications(ctx context.Context, corpID int64) ([]NotificationRow, error)
	// ListPoints returns all persisted timeline points for the corp.
	ListPoints(ctx context.Context, corpID int64) ([]TimelinePoint, error)
	// InsertPoints persists points, silently skipping any whose
	// (corporation_id, effective_at) already exists. Returns rows inserted.
	InsertPoints(ctx context.Context, points []TimelinePoint) (int, error)
	// ListAuditedCorporations returns every corporation with audit coverage.
	ListAuditedCorporations(ctx context.Context) ([]Corporation, error)
}

// Service reconstructs corp tax rate history from the notification feed.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs the timeline service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// FindRateChanges reads the raw notification feed for the corp and collapses
// it into one change per effective timestamp. Notifications sharing a
// minute-accurate timestamp are duplicates from upstream clock imprecision;
// the feed is ordered by (timestamp, notification_id), so keeping the last
// entry per timestamp means the highest notification id wins. Rate values are
// never compared to break ties.
func (s *Service) FindRateChanges(ctx context.Context, corpID int64) ([]RateChange, error) {
	rows, err := s.repo.ListTaxChangeNotifications(ctx, corpID)
	if err != nil {
		return nil, fmt.Errorf("rates: list notifications for corp %d: %w", corpID, err)
	}

	changes := make(map[int64]RateChange)
	for _, row := range rows {
		payload, err := parseTaxChange(row.Text)
		if err != nil {
			s.logger.Warn("skipping malformed tax change notification",
				slog.Int64("notification_id", row.NotificationID), slog.Any("error", err))
			continue
		}
		if payload.CorpID != corpID {
			continue
		}
		changes[row.Timestamp.Unix()] = RateChange{
			NotificationID: row.NotificationID,
			EffectiveAt:    row.Timestamp,
			Rate:           payload.rate(),
		}
	}

	out := make([]RateChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EffectiveAt.Equal(out[j].EffectiveAt) {
			return out[i].NotificationID < out[j].NotificationID
		}
		return out[i].EffectiveAt.Before(out[j].EffectiveAt)
	})
	return out, nil
}

// Timeline loads the persisted rate history for the corp.
func (s *Service) Timeline(ctx context.Context, corpID int64) (Timeline, error) {
	points, err := s.repo.ListPoints(ctx, corpID)
	if err != nil {
		return Timeline{}, fmt.Errorf("rates: load timeline for corp %d: %w", corpID, err)
	}
	return NewTimeline(points), nil
}

// Sync computes the corp's rate changes and persists any not yet known.
// Existing points are never overwritten, so re-running with unchanged
// upstream data inserts zero rows.
func (s *Service) Sync(ctx context.Context, corpID int64) (int, error) {
	changes, err := s.FindRateChanges(ctx, corpID)
	if err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}

	points := make([]TimelinePoint, len(changes))
	for i, c := range changes {
		points[i] = TimelinePoint{
			CorporationID: corpID,
			EffectiveAt:   c.EffectiveAt,
			Rate:          c.Rate,
		}
	}
	created, err := s.repo.InsertPoints(ctx, points)
	if err != nil {
		return 0, fmt.Errorf("rates: persist timeline for corp %d: %w", corpID, err)
	}
	return created, nil
}

// SyncAll syncs every audited corporation. A failure on one corp never aborts
// the others; partial results are returned together with the joined errors.
func (s *Service) SyncAll(ctx context.Context) (map[string]int, error) {
	corps, err := s.repo.ListAuditedCorporations(ctx)
	if err != nil {
		return nil, fmt.Errorf("rates: list audited corporations: %w", err)
	}

	out := make(map[string]int, len(corps))
	var errs []error
	for _, corp := range corps {
		created, err := s.Sync(ctx, corp.ID)
		if err != nil {
			s.logger.Error("tax history sync failed",
				slog.Int64("corporation_id", corp.ID),
				slog.String("corporation", corp.Name),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("corp %s: %w", corp.Name, err))
			continue
		}
		out[corp.Name] = created
	}
	return out, errors.Join(errs...)
}
