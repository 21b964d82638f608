package membertax

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryMemberRepo struct {
	configs map[int64]Configuration
	counts  map[string][]CorpMainCount
}

func (r *memoryMemberRepo) GetConfig(ctx context.Context, id int64) (Configuration, error) {
	cfg, ok := r.configs[id]
	if !ok {
		return Configuration{}, ErrConfigNotFound
	}
	return cfg, nil
}

func (r *memoryMemberRepo) ListConfigs(ctx context.Context) ([]Configuration, error) {
	out := make([]Configuration, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (r *memoryMemberRepo) MainCounts(ctx context.Context, state string) ([]CorpMainCount, error) {
	return append([]CorpMainCount(nil), r.counts[state]...), nil
}

type fakeCorpSource struct {
	ceos    map[int64]int64
	members map[int64]int
	err     error
}

func (f *fakeCorpSource) CorporationCEO(ctx context.Context, corpID int64) (int64, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.ceos[corpID], f.members[corpID], nil
}

func TestInvoiceDataPerCorp(t *testing.T) {
	repo := &memoryMemberRepo{
		configs: map[int64]Configuration{1: {ID: 1, State: "Member", IskPerMain: 1_000_000}},
		counts: map[string][]CorpMainCount{
			"Member": {
				{CorporationID: 2000, CorporationName: "Alpha Holdings", MainCount: 3},
				{CorporationID: 3000, CorporationName: "Beta Mining", MainCount: 1},
			},
		},
	}
	corps := &fakeCorpSource{
		ceos:    map[int64]int64{2000: 901, 3000: 902},
		members: map[int64]int{2000: 42, 3000: 7},
	}

	svc := NewService(repo, corps, nil)
	invoices, err := svc.InvoiceData(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, invoices, 2)

	alpha := invoices[2000]
	require.Equal(t, "Alpha Holdings", alpha.CorporationName)
	require.Equal(t, int64(901), alpha.CEOID)
	require.Equal(t, 42, alpha.MemberCount)
	require.Equal(t, 3, alpha.MainCount)
	require.Equal(t, int64(3_000_000), alpha.Tax)

	require.Equal(t, int64(1_000_000), invoices[3000].Tax)
}

func TestInvoiceDataUnknownConfig(t *testing.T) {
	repo := &memoryMemberRepo{configs: map[int64]Configuration{}}
	svc := NewService(repo, &fakeCorpSource{}, nil)
	_, err := svc.InvoiceData(context.Background(), 99)
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInvoiceDataUpstreamFailureFailsRun(t *testing.T) {
	repo := &memoryMemberRepo{
		configs: map[int64]Configuration{1: {ID: 1, State: "Member", IskPerMain: 100}},
		counts: map[string][]CorpMainCount{
			"Member": {{CorporationID: 2000, CorporationName: "Alpha Holdings", MainCount: 3}},
		},
	}
	corps := &fakeCorpSource{err: errors.New("esi unavailable")}

	svc := NewService(repo, corps, nil)
	_, err := svc.InvoiceData(context.Background(), 1)
	require.Error(t, err)
	require.Contains(t, err.Error(), "corporation 2000")
}

func TestInvoiceStatsTotals(t *testing.T) {
	repo := &memoryMemberRepo{
		configs: map[int64]Configuration{1: {ID: 1, State: "Member", IskPerMain: 500}},
		counts: map[string][]CorpMainCount{
			"Member": {
				{CorporationID: 2000, CorporationName: "Alpha Holdings", MainCount: 4},
				{CorporationID: 3000, CorporationName: "Beta Mining", MainCount: 6},
			},
		},
	}
	corps := &fakeCorpSource{ceos: map[int64]int64{}, members: map[int64]int{}}

	svc := NewService(repo, corps, nil)
	stats, err := svc.InvoiceStats(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"Alpha Holdings": 4, "Beta Mining": 6}, stats.Corps)
	require.Equal(t, int64(5000), stats.Total)
}
