// Package valuation implements the multi-factor valuation ranking stage:
// PER, PBR, dividend yield and ROE ranks combined into a single total rank,
// lower is better.
package valuation

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/domain"
)

// RankedValuation is the scored output for one eligible ticker. Per-factor
// ranks use average-tie (fractional) ranking, so a two-way tie for first
// yields 1.5 for both. TotalRank is the sum of the four factor ranks.
type RankedValuation struct {
	Ticker  string  `json:"ticker"`
	PER     float64 `json:"per"`
	PBR     float64 `json:"pbr"`
	DIV     float64 `json:"div"`
	ROE     float64 `json:"roe"`
	PERRank float64 `json:"per_rank"`
	PBRRank float64 `json:"pbr_rank"`
	DIVRank float64 `json:"div_rank"`
	ROERank float64 `json:"roe_rank"`

	TotalRank float64 `json:"total_rank"`
}

// Exclusion explains why a record was left out of the ranking.
type Exclusion struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Ranker scores and orders a fundamentals snapshot. It is stateless; Rank is
// a pure function over its input.
type Ranker struct {
	log zerolog.Logger
}

// NewRanker creates a valuation ranker.
func NewRanker(log zerolog.Logger) *Ranker {
	return &Ranker{log: log.With().Str("component", "valuation").Logger()}
}

// Rank filters and ranks the given fundamentals. Records with bps <= 0,
// per <= 0 or pbr <= 0 are excluded: ROE and the value ranks are meaningless
// for them. An empty result is a valid, trade-free outcome, not an error.
// The returned sequence is ordered ascending by total rank (best first).
func (r *Ranker) Rank(records []domain.FundamentalRecord) ([]RankedValuation, []Exclusion) {
	eligible := make([]RankedValuation, 0, len(records))
	var excluded []Exclusion

	for _, rec := range records {
		roe, ok := rec.ROE()
		switch {
		case !ok:
			excluded = append(excluded, Exclusion{Ticker: rec.Ticker, Reason: "bps not positive, roe undefined"})
		case rec.PER <= 0:
			excluded = append(excluded, Exclusion{Ticker: rec.Ticker, Reason: "per not positive"})
		case rec.PBR <= 0:
			excluded = append(excluded, Exclusion{Ticker: rec.Ticker, Reason: "pbr not positive"})
		default:
			eligible = append(eligible, RankedValuation{
				Ticker: rec.Ticker,
				PER:    rec.PER,
				PBR:    rec.PBR,
				DIV:    rec.DIV,
				ROE:    roe,
			})
		}
	}

	if len(eligible) == 0 {
		r.log.Warn().Int("records", len(records)).Msg("No eligible tickers after fundamentals filter")
		return nil, excluded
	}

	perRanks := averageRanks(factor(eligible, func(v RankedValuation) float64 { return v.PER }), true)
	pbrRanks := averageRanks(factor(eligible, func(v RankedValuation) float64 { return v.PBR }), true)
	divRanks := averageRanks(factor(eligible, func(v RankedValuation) float64 { return v.DIV }), false)
	roeRanks := averageRanks(factor(eligible, func(v RankedValuation) float64 { return v.ROE }), false)

	for i := range eligible {
		eligible[i].PERRank = perRanks[i]
		eligible[i].PBRRank = pbrRanks[i]
		eligible[i].DIVRank = divRanks[i]
		eligible[i].ROERank = roeRanks[i]
		eligible[i].TotalRank = perRanks[i] + pbrRanks[i] + divRanks[i] + roeRanks[i]
	}

	// Ascending total rank; ticker as tiebreak so identical snapshots always
	// produce the same ordering.
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].TotalRank != eligible[j].TotalRank {
			return eligible[i].TotalRank < eligible[j].TotalRank
		}
		return eligible[i].Ticker < eligible[j].Ticker
	})

	r.log.Debug().
		Int("ranked", len(eligible)).
		Int("excluded", len(excluded)).
		Msg("Valuation ranking complete")

	return eligible, excluded
}

func factor(vals []RankedValuation, pick func(RankedValuation) float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = pick(v)
	}
	return out
}

// averageRanks assigns 1-based ranks where tied values receive the average of
// the positions they occupy. ascending=true gives rank 1 to the lowest value;
// ascending=false gives rank 1 to the highest.
func averageRanks(values []float64, ascending bool) []float64 {
	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if ascending {
			return values[order[a]] < values[order[b]]
		}
		return values[order[a]] > values[order[b]]
	})

	ranks := make([]float64, len(values))
	for start := 0; start < len(order); {
		end := start
		for end+1 < len(order) && values[order[end+1]] == values[order[start]] {
			end++
		}
		// Positions start+1 .. end+1 share the average rank.
		avg := float64(start+end+2) / 2
		for k := start; k <= end; k++ {
			ranks[order[k]] = avg
		}
		start = end + 1
	}
	return ranks
}
