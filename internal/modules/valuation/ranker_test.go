package valuation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwpark/krquant/internal/domain"
)

func newTestRanker() *Ranker {
	return NewRanker(zerolog.Nop())
}

func TestRankOrdersByTotalRankAscending(t *testing.T) {
	ranker := newTestRanker()

	// "cheap" is best on every factor, "rich" worst on every factor.
	records := []domain.FundamentalRecord{
		{Ticker: "cheap", PER: 5, PBR: 0.5, DIV: 5, EPS: 2000, BPS: 10000}, // ROE 20
		{Ticker: "mid", PER: 10, PBR: 1.0, DIV: 3, EPS: 1000, BPS: 10000},  // ROE 10
		{Ticker: "rich", PER: 30, PBR: 3.0, DIV: 1, EPS: 100, BPS: 10000},  // ROE 1
	}

	ranked, excluded := ranker.Rank(records)
	require.Len(t, ranked, 3)
	assert.Empty(t, excluded)

	assert.Equal(t, "cheap", ranked[0].Ticker)
	assert.Equal(t, "mid", ranked[1].Ticker)
	assert.Equal(t, "rich", ranked[2].Ticker)

	assert.Equal(t, 4.0, ranked[0].TotalRank)
	assert.Equal(t, 8.0, ranked[1].TotalRank)
	assert.Equal(t, 12.0, ranked[2].TotalRank)

	// Sorted output must be monotonically non-decreasing in total rank.
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i].TotalRank, ranked[i-1].TotalRank)
	}
}

func TestRankConservationPerFactor(t *testing.T) {
	ranker := newTestRanker()

	// Distinct values on every factor: each factor's ranks must sum to 1+2+3.
	records := []domain.FundamentalRecord{
		{Ticker: "a", PER: 5, PBR: 0.7, DIV: 4, EPS: 900, BPS: 10000},
		{Ticker: "b", PER: 8, PBR: 1.2, DIV: 2, EPS: 1500, BPS: 10000},
		{Ticker: "c", PER: 12, PBR: 0.9, DIV: 3, EPS: 400, BPS: 10000},
	}

	ranked, _ := ranker.Rank(records)
	require.Len(t, ranked, 3)

	var perSum, pbrSum, divSum, roeSum float64
	for _, rv := range ranked {
		perSum += rv.PERRank
		pbrSum += rv.PBRRank
		divSum += rv.DIVRank
		roeSum += rv.ROERank
	}
	assert.Equal(t, 6.0, perSum)
	assert.Equal(t, 6.0, pbrSum)
	assert.Equal(t, 6.0, divSum)
	assert.Equal(t, 6.0, roeSum)
}

func TestRankFactorDirections(t *testing.T) {
	ranker := newTestRanker()

	records := []domain.FundamentalRecord{
		{Ticker: "lowper", PER: 4, PBR: 2, DIV: 1, EPS: 100, BPS: 10000},
		{Ticker: "highdiv", PER: 20, PBR: 2, DIV: 6, EPS: 100, BPS: 10000},
	}

	ranked, _ := ranker.Rank(records)
	require.Len(t, ranked, 2)

	byTicker := map[string]RankedValuation{}
	for _, rv := range ranked {
		byTicker[rv.Ticker] = rv
	}

	// Lower PER is better (ascending), higher DIV is better (descending).
	assert.Equal(t, 1.0, byTicker["lowper"].PERRank)
	assert.Equal(t, 2.0, byTicker["highdiv"].PERRank)
	assert.Equal(t, 1.0, byTicker["highdiv"].DIVRank)
	assert.Equal(t, 2.0, byTicker["lowper"].DIVRank)

	// Tied PBR and tied ROE share the fractional average rank.
	assert.Equal(t, 1.5, byTicker["lowper"].PBRRank)
	assert.Equal(t, 1.5, byTicker["highdiv"].PBRRank)
	assert.Equal(t, 1.5, byTicker["lowper"].ROERank)
	assert.Equal(t, 1.5, byTicker["highdiv"].ROERank)
}

func TestRankExcludesUnusableRecords(t *testing.T) {
	ranker := newTestRanker()

	records := []domain.FundamentalRecord{
		{Ticker: "ok", PER: 10, PBR: 1, DIV: 2, EPS: 500, BPS: 5000},
		{Ticker: "nobps", PER: 10, PBR: 1, DIV: 2, EPS: 500, BPS: 0},
		{Ticker: "negper", PER: -3, PBR: 1, DIV: 2, EPS: 500, BPS: 5000},
		{Ticker: "nopbr", PER: 10, PBR: 0, DIV: 2, EPS: 500, BPS: 5000},
	}

	ranked, excluded := ranker.Rank(records)
	require.Len(t, ranked, 1)
	assert.Equal(t, "ok", ranked[0].Ticker)

	require.Len(t, excluded, 3)
	reasons := map[string]string{}
	for _, e := range excluded {
		reasons[e.Ticker] = e.Reason
	}
	assert.Contains(t, reasons["nobps"], "bps")
	assert.Contains(t, reasons["negper"], "per")
	assert.Contains(t, reasons["nopbr"], "pbr")
}

func TestRankNoEligibleTickersIsEmptyNotError(t *testing.T) {
	ranker := newTestRanker()

	ranked, excluded := ranker.Rank([]domain.FundamentalRecord{
		{Ticker: "bad", PER: 0, PBR: 0, BPS: 0},
	})

	assert.Empty(t, ranked)
	assert.Len(t, excluded, 1)
}

func TestAverageRanksTies(t *testing.T) {
	// Two-way tie for first: both occupy positions 1 and 2 -> 1.5 each.
	ranks := averageRanks([]float64{1, 1, 2}, true)
	assert.Equal(t, []float64{1.5, 1.5, 3}, ranks)

	// Three-way tie occupies positions 2,3,4 -> 3.0 each.
	ranks = averageRanks([]float64{5, 7, 7, 7, 9}, true)
	assert.Equal(t, []float64{1, 3, 3, 3, 5}, ranks)
}
