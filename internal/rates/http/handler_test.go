package rateshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/soratidus999/taxtools/internal/rates"
)

type fakeRatesRepo struct {
	notifications map[int64][]rates.NotificationRow
	points        map[int64][]rates.TimelinePoint
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
	return nil, nil
}

func newTestRouter(repo rates.Repository) http.Handler {
	h := NewHandler(nil, rates.NewService(repo, nil), nil)
	r := chi.NewRouter()
	r.Route("/rates", func(r chi.Router) { h.MountRoutes(r) })
	return r
}

func TestTimelineEndpoint(t *testing.T) {
	repo := newFakeRatesRepo()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.points[42] = []rates.TimelinePoint{
		{CorporationID: 42, EffectiveAt: jan, Rate: decimal.RequireFromString("5")},
	}

	router := newTestRouter(repo)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rates/corporations/42/timeline", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		CorporationID int64                 `json:"corporation_id"`
		Points        []rates.TimelinePoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(42), body.CorporationID)
	require.Len(t, body.Points, 1)
}

func TestTimelineEndpointRejectsBadID(t *testing.T) {
	router := newTestRouter(newFakeRatesRepo())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rates/corporations/abc/timeline", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncEndpointReportsCreated(t *testing.T) {
	repo := newFakeRatesRepo()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.notifications[42] = []rates.NotificationRow{
		{
			NotificationID: 1,
			CorporationID:  42,
			Timestamp:      at,
			Text:           fmt.Sprintf("corpID: %d\nnewTaxRate: 7.5\noldTaxRate: 5.0\n", 42),
		},
	}

	router := newTestRouter(repo)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rates/corporations/42/sync", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Created int `json:"created"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Created)

	// Second sync over the same feed creates nothing new.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rates/corporations/42/sync", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 0, body.Created)
}

func TestSyncAllWithoutQueue(t *testing.T) {
	router := newTestRouter(newFakeRatesRepo())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rates/sync", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
