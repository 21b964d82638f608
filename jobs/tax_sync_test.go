package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/soratidus999/taxtools/internal/rates"
	"github.com/soratidus999/taxtools/internal/shared"
)

type fakeRatesRepo struct {
	notifications map[int64][]rates.NotificationRow
	points        map[int64][]rates.TimelinePoint
	corps         []rates.Corporation
}

func newFakeRatesRepo() *fakeRatesRepo {
	return &fakeRatesRepo{
		notifications: make(map[int64][]rates.NotificationRow),
		points:        make(map[int64][]rates.TimelinePoint),
	}
}

func (r *fakeRatesRepo) ListTaxChangeNotifications(ctx context.Context, corpID int64) ([]rates.NotificationRow, error) {
	return append([]rates.NotificationRow(nil), r.notifications[corpID]...), nil
}

func (r *fakeRatesRepo) ListPoints(ctx context.Context, corpID int64) ([]rates.TimelinePoint, error) {
	return append([]rates.TimelinePoint(nil), r.points[corpID]...), nil
}

func (r *fakeRatesRepo) InsertPoints(ctx context.Context, points []rates.TimelinePoint) (int, error) {
	created := 0
	for _, p := range points {
		exists := false
		for _, have := range r.points[p.CorporationID] {
			if have.EffectiveAt.Equal(p.EffectiveAt) {
				exists = true
				break
			}
		}
		if !exists {
			r.points[p.CorporationID] = append(r.points[p.CorporationID], p)
			created++
		}
	}
	return created, nil
}

func (r *fakeRatesRepo) ListAuditedCorporations(ctx context.Context) ([]rates.Corporation, error) {
	return append([]rates.Corporation(nil), r.corps...), nil
}

func TestTaxSyncJobSingleCorp(t *testing.T) {
	repo := newFakeRatesRepo()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.notifications[42] = []rates.NotificationRow{
		{NotificationID: 1, CorporationID: 42, Timestamp: at, Text: "corpID: 42\nnewTaxRate: 7.5\noldTaxRate: 5.0\n"},
	}

	job := NewTaxSyncJob(rates.NewService(repo, nil), nil, nil)
	task, err := NewTaxSyncTask(TaxSyncPayload{CorporationID: 42})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.points[42], 1)
	require.True(t, repo.points[42][0].Rate.Equal(decimal.RequireFromString("7.5")))

	// Re-running the same feed is a no-op.
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.points[42], 1)
}

func TestTaxSyncJobAllCorps(t *testing.T) {
	repo := newFakeRatesRepo()
	repo.corps = []rates.Corporation{{ID: 1, Name: "Alpha Holdings"}, {ID: 2, Name: "Beta Mining"}}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.notifications[1] = []rates.NotificationRow{
		{NotificationID: 1, CorporationID: 1, Timestamp: at, Text: "corpID: 1\nnewTaxRate: 5.0\noldTaxRate: 0.0\n"},
	}
	repo.notifications[2] = []rates.NotificationRow{
		{NotificationID: 2, CorporationID: 2, Timestamp: at, Text: "corpID: 2\nnewTaxRate: 10.0\noldTaxRate: 0.0\n"},
	}

	job := NewTaxSyncJob(rates.NewService(repo, nil), nil, nil)
	task, err := NewTaxSyncTask(TaxSyncPayload{})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.points[1], 1)
	require.Len(t, repo.points[2], 1)
}

func TestTaxSyncJobSkipsWhenLockHeld(t *testing.T) {
	repo := newFakeRatesRepo()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.notifications[42] = []rates.NotificationRow{
		{NotificationID: 1, CorporationID: 42, Timestamp: at, Text: "corpID: 42\nnewTaxRate: 7.5\noldTaxRate: 5.0\n"},
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	job := NewTaxSyncJob(rates.NewService(repo, nil), nil, nil)
	job.Redis = redisClient

	// Another worker holds the lock: the run is skipped without error.
	require.NoError(t, mr.Set(shared.CorpSyncLockKey(42), "1"))
	task, err := NewTaxSyncTask(TaxSyncPayload{CorporationID: 42})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, repo.points[42])

	// Once released the sync proceeds and the lock is dropped afterwards.
	mr.Del(shared.CorpSyncLockKey(42))
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, repo.points[42], 1)
	require.False(t, mr.Exists(shared.CorpSyncLockKey(42)))
}

func TestTaxSyncJobBadPayloadSkipsRetry(t *testing.T) {
	job := NewTaxSyncJob(rates.NewService(newFakeRatesRepo(), nil), nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskTaxSync, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
