package payouts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stretchr/testify/require"
)

func testBucket(corpID int64, ids []int64, sum, gross, tax string, start, end time.Time) *Bucket {
	b := newBucket()
	b.CorporationID = corpID
	b.TransactionIDs = ids
	b.SumEarned = dec(sum)
	b.PreTaxTotal = dec(gross)
	b.TaxToPay = dec(tax)
	b.Count = len(ids)
	b.Start = start
	b.End = end
	return b
}

func TestRollupByCorporation(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	fine := map[int64]*Bucket{
		501: testBucket(2000, []int64{1, 2}, "300", "315.78", "31.57", jan, feb),
		502: testBucket(2000, []int64{3}, "100", "105.26", "10.52", feb, mar),
		601: testBucket(3000, []int64{4}, "50", "50", "5", jan, jan),
	}

	coarse := Rollup(fine, ByCorporation)
	require.Len(t, coarse, 2)

	corp := coarse[2000]
	require.NotNil(t, corp)
	require.True(t, corp.SumEarned.Equal(dec("400")))
	require.True(t, corp.PreTaxTotal.Equal(dec("421.04")))
	require.True(t, corp.TaxToPay.Equal(dec("42.09")))
	require.Equal(t, 3, corp.Count)
	require.ElementsMatch(t, []int64{1, 2, 3}, corp.TransactionIDs)
	// The merged window spans min start to max end.
	require.True(t, corp.Start.Equal(jan))
	require.True(t, corp.End.Equal(mar))

	other := coarse[3000]
	require.True(t, other.SumEarned.Equal(dec("50")))
	require.Equal(t, 1, other.Count)
}

func TestRollupIsAssociative(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	fine := map[int64]*Bucket{
		501: testBucket(2000, []int64{1}, "100", "110", "11", jan, jan),
		502: testBucket(2000, []int64{2}, "200", "220", "22", feb, feb),
		503: testBucket(2000, []int64{3}, "300", "330", "33", jan, feb),
	}

	direct := Rollup(fine, ByCorporation)
	twice := Rollup(Rollup(fine, ByCorporation), ByCorporation)

	require.Len(t, twice, 1)
	a, b := direct[2000], twice[2000]
	require.True(t, a.SumEarned.Equal(b.SumEarned))
	require.True(t, a.PreTaxTotal.Equal(b.PreTaxTotal))
	require.True(t, a.TaxToPay.Equal(b.TaxToPay))
	require.Equal(t, a.Count, b.Count)
	require.ElementsMatch(t, a.TransactionIDs, b.TransactionIDs)
	require.True(t, a.Start.Equal(b.Start))
	require.True(t, a.End.Equal(b.End))
}

func TestRollupUnionsDistinctSets(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	a := testBucket(2000, []int64{1, 2}, "100", "100", "10", jan, jan)
	a.RatesUsed = []decimal.Decimal{dec("5"), dec("10")}
	a.Characters = []string{"Pilot One"}
	b := testBucket(2000, []int64{2, 3}, "100", "100", "10", jan, jan)
	b.RatesUsed = []decimal.Decimal{dec("10")}
	b.Characters = []string{"Pilot One", "Pilot Two"}

	coarse := Rollup(map[int64]*Bucket{501: a, 502: b}, ByCorporation)
	merged := coarse[2000]
	// Ids, rates and characters stay distinct across the merge.
	require.ElementsMatch(t, []int64{1, 2, 3}, merged.TransactionIDs)
	require.Len(t, merged.RatesUsed, 2)
	require.ElementsMatch(t, []string{"Pilot One", "Pilot Two"}, merged.Characters)
}
