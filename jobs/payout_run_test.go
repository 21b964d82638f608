package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/soratidus999/taxtools/internal/payouts"
	"github.com/soratidus999/taxtools/internal/rates"
)

type fakePayoutRepo struct {
	configs map[int64]payouts.TaxConfiguration
	entries []payouts.JournalEntry
	marked  map[int64]bool
}

func newFakePayoutRepo() *fakePayoutRepo {
	return &fakePayoutRepo{
		configs: make(map[int64]payouts.TaxConfiguration),
		marked:  make(map[int64]bool),
	}
}

func (r *fakePayoutRepo) GetConfig(ctx context.Context, id int64) (payouts.TaxConfiguration, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return payouts.TaxConfiguration{}, payouts.ErrConfigNotFound
	}
	return cfg, nil
}

func (r *fakePayoutRepo) ListConfigs(ctx context.Context) ([]payouts.TaxConfiguration, error) {
	out := make([]payouts.TaxConfiguration, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (r *fakePayoutRepo) CreateConfig(ctx context.Context, cfg payouts.TaxConfiguration) (payouts.TaxConfiguration, error) {
	r.configs[cfg.ID] = cfg
	return cfg, nil
}

func (r *fakePayoutRepo) UpdateConfigTax(ctx context.Context, id int64, tax decimal.Decimal) (payouts.TaxConfiguration, error) {
	cfg := r.configs[id]
	cfg.Tax = tax
	r.configs[id] = cfg
	return cfg, nil
}

func (r *fakePayoutRepo) ListUnprocessedEntries(ctx context.Context, cfg payouts.TaxConfiguration, start, end time.Time) ([]payouts.JournalEntry, error) {
	var out []payouts.JournalEntry
	for _, e := range r.entries {
		if e.CorporationID == cfg.CorporationID && !e.Date.Before(start) && !e.Date.After(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakePayoutRepo) MarkProcessed(ctx context.Context, scope payouts.ConfigScope, entryIDs []int64) (int, error) {
	for _, id := range entryIDs {
		r.marked[id] = true
	}
	return len(entryIDs), nil
}

func (r *fakePayoutRepo) InsertRunRecord(ctx context.Context, rec payouts.RunRecord) error {
	return nil
}

type emptyTimelines struct{}

func (emptyTimelines) Timeline(ctx context.Context, corpID int64) (rates.Timeline, error) {
	return rates.Timeline{}, nil
}

type flakyRateSource struct {
	failCorps map[int64]bool
}

func (f *flakyRateSource) CurrentTaxRate(ctx context.Context, corpID int64) (decimal.Decimal, error) {
	if f.failCorps[corpID] {
		return decimal.Decimal{}, errors.New("upstream down")
	}
	return decimal.RequireFromString("0.1"), nil
}

func TestPayoutRunJobIsReadOnly(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.configs[1] = payouts.TaxConfiguration{
		ID: 1, CorporationID: 2000, CorporationName: "Alpha Holdings",
		RefType: "bounty_prizes", Tax: decimal.RequireFromString("10"),
		Scope: payouts.ScopeCharacter,
	}
	repo.entries = []payouts.JournalEntry{
		{
			EntryID:       1,
			Amount:        decimal.RequireFromString("100"),
			Date:          time.Now().UTC().AddDate(0, 0, -5),
			CharacterID:   501,
			CharacterName: "Pilot One",
			CorporationID: 2000,
		},
	}

	svc := payouts.NewService(repo, emptyTimelines{}, &flakyRateSource{}, nil)
	job := NewPayoutRunJob(svc, nil, nil)

	task, err := NewPayoutRunTask(PayoutRunPayload{ConfigID: 1})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	// A scheduled run warms aggregates without marking anything processed.
	require.Empty(t, repo.marked)
}

func TestPayoutRunJobIsolatesConfigFailures(t *testing.T) {
	repo := newFakePayoutRepo()
	repo.configs[1] = payouts.TaxConfiguration{
		ID: 1, CorporationID: 2000, CorporationName: "Alpha Holdings",
		RefType: "bounty_prizes", Tax: decimal.RequireFromString("10"),
		Scope: payouts.ScopeCharacter,
	}
	repo.configs[2] = payouts.TaxConfiguration{
		ID: 2, CorporationID: 3000, CorporationName: "Beta Mining",
		RefType: "bounty_prizes", Tax: decimal.RequireFromString("10"),
		Scope: payouts.ScopeCharacter,
	}
	repo.entries = []payouts.JournalEntry{
		{
			EntryID:       1,
			Amount:        decimal.RequireFromString("100"),
			Date:          time.Now().UTC().AddDate(0, 0, -5),
			CharacterID:   501,
			CharacterName: "Pilot One",
			CorporationID: 2000,
		},
		{
			EntryID:       2,
			Amount:        decimal.RequireFromString("200"),
			Date:          time.Now().UTC().AddDate(0, 0, -5),
			CharacterID:   601,
			CharacterName: "Pilot Two",
			CorporationID: 3000,
		},
	}

	// Corp 3000's live rate lookup fails. The job visits every config anyway
	// and surfaces the joined failure for retry.
	svc := payouts.NewService(repo, emptyTimelines{}, &flakyRateSource{failCorps: map[int64]bool{3000: true}}, nil)
	job := NewPayoutRunJob(svc, nil, nil)

	task, err := NewPayoutRunTask(PayoutRunPayload{})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.Empty(t, repo.marked)
}

func TestPayoutRunJobBadPayloadSkipsRetry(t *testing.T) {
	svc := payouts.NewService(newFakePayoutRepo(), emptyTimelines{}, &flakyRateSource{}, nil)
	job := NewPayoutRunJob(svc, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskPayoutRun, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
