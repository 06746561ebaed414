// Package allocation implements inverse-volatility capital allocation:
// weight_i = (1/sigma_i) / sum_j(1/sigma_j) over tickers with positive
// daily-return volatility in the lookback window.
package allocation

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/pkg/formulas"
)

// DefaultLookbackDays is the volatility window in calendar days.
const DefaultLookbackDays = 90

// ErrNoAllocatableAssets is returned when every ticker has zero or undefined
// volatility, so no weights can be produced without dividing by zero.
var ErrNoAllocatableAssets = errors.New("no allocatable assets")

// Weights maps ticker to its target weight fraction. Excluded tickers are
// absent from the map, never present with weight 0, so callers can tell
// "excluded" apart from "allocated 0%".
type Weights map[string]float64

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	vals := make([]float64, 0, len(w))
	for _, v := range w {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	return formulas.PairwiseSum(vals)
}

// Exclusion explains why a ticker received no weight.
type Exclusion struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Result is the output of one allocation run.
type Result struct {
	Weights      Weights     `json:"weights"`
	Volatilities Weights     `json:"volatilities"` // daily-return sigma per allocated ticker
	Excluded     []Exclusion `json:"excluded"`
}

// Allocator computes inverse-volatility weights. Stateless apart from the
// configured lookback.
type Allocator struct {
	lookbackDays int
	log          zerolog.Logger
}

// NewAllocator creates an allocator. A non-positive lookback falls back to
// DefaultLookbackDays.
func NewAllocator(lookbackDays int, log zerolog.Logger) *Allocator {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &Allocator{
		lookbackDays: lookbackDays,
		log:          log.With().Str("component", "allocation").Logger(),
	}
}

// Allocate computes weights over tickers with positive daily-return
// volatility within the lookback window. Tickers with zero or undefined
// volatility are excluded from both the weights and the normalization
// denominator. When nothing is allocatable it returns ErrNoAllocatableAssets
// instead of NaN weights. Returned weights are non-negative and sum to 1
// within floating tolerance.
func (a *Allocator) Allocate(series map[string]domain.PriceSeries) (Result, error) {
	result := Result{
		Weights:      make(Weights),
		Volatilities: make(Weights),
	}

	windowStart := a.windowStart(series)

	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	sigmas := make(map[string]float64, len(tickers))
	var allocatable []string
	for _, ticker := range tickers {
		s := series[ticker]
		s.Sort()
		if windowStart != "" {
			s = s.Since(windowStart)
		}

		returns := formulas.DailyReturns(s.Closes())
		if len(returns) < 2 {
			result.Excluded = append(result.Excluded, Exclusion{Ticker: ticker, Reason: "insufficient history for volatility"})
			continue
		}

		sigma := formulas.StdDev(returns)
		if sigma <= 0 || math.IsNaN(sigma) || math.IsInf(sigma, 0) {
			result.Excluded = append(result.Excluded, Exclusion{Ticker: ticker, Reason: "zero or undefined volatility"})
			continue
		}

		sigmas[ticker] = sigma
		allocatable = append(allocatable, ticker)
	}

	if len(allocatable) == 0 {
		a.log.Warn().Int("tickers", len(series)).Msg("No allocatable assets")
		return result, ErrNoAllocatableAssets
	}

	inverses := make([]float64, len(allocatable))
	for i, ticker := range allocatable {
		inverses[i] = 1 / sigmas[ticker]
	}
	denominator := formulas.PairwiseSum(inverses)

	for i, ticker := range allocatable {
		result.Weights[ticker] = inverses[i] / denominator
		result.Volatilities[ticker] = sigmas[ticker]
	}

	a.log.Debug().
		Int("allocated", len(allocatable)).
		Int("excluded", len(result.Excluded)).
		Msg("Inverse-volatility allocation complete")

	return result, nil
}

// windowStart derives the lookback cutoff date from the most recent
// observation across all series. Empty when no series has data; the caller
// then gets per-ticker "insufficient history" exclusions anyway.
func (a *Allocator) windowStart(series map[string]domain.PriceSeries) string {
	var latest string
	for _, s := range series {
		s.Sort()
		if p, ok := s.Last(); ok && p.Date > latest {
			latest = p.Date
		}
	}
	if latest == "" {
		return ""
	}

	end, err := time.Parse("2006-01-02", latest)
	if err != nil {
		return ""
	}
	return end.AddDate(0, 0, -a.lookbackDays).Format("2006-01-02")
}
