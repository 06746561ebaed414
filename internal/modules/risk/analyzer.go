// Package risk implements the return-correlation stage: pairwise Pearson
// correlation of daily simple returns over date-aligned close series.
package risk

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/pkg/formulas"
)

// CorrelationMatrix is a symmetric ticker x ticker coefficient matrix with a
// diagonal of exactly 1.0. Coefficients are NaN when the correlation is
// undefined for a pair (zero return variance); At reports those as not-ok.
type CorrelationMatrix struct {
	Tickers []string
	coeffs  [][]float64
}

// At returns the coefficient for a pair of included tickers. ok is false when
// either ticker is not in the matrix or the coefficient is undefined.
func (m *CorrelationMatrix) At(a, b string) (float64, bool) {
	ia, ib := m.index(a), m.index(b)
	if ia < 0 || ib < 0 {
		return 0, false
	}
	v := m.coeffs[ia][ib]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Size returns the number of included tickers.
func (m *CorrelationMatrix) Size() int {
	return len(m.Tickers)
}

// Rows renders the matrix as nested maps for reporting, omitting undefined
// coefficients.
func (m *CorrelationMatrix) Rows() map[string]map[string]float64 {
	rows := make(map[string]map[string]float64, len(m.Tickers))
	for i, a := range m.Tickers {
		row := make(map[string]float64, len(m.Tickers))
		for j, b := range m.Tickers {
			if v := m.coeffs[i][j]; !math.IsNaN(v) {
				row[b] = v
			}
		}
		rows[a] = row
	}
	return rows
}

func (m *CorrelationMatrix) index(ticker string) int {
	for i, t := range m.Tickers {
		if t == ticker {
			return i
		}
	}
	return -1
}

// Exclusion explains why a ticker was dropped from the matrix.
type Exclusion struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Result is the output of one correlation run.
type Result struct {
	Matrix   *CorrelationMatrix
	Excluded []Exclusion
}

// Analyzer builds correlation matrices from price history. Stateless.
type Analyzer struct {
	log zerolog.Logger
}

// NewAnalyzer creates a risk analyzer.
func NewAnalyzer(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "risk").Logger()}
}

// Correlate aligns the series on their common dates (inner join), computes
// daily simple returns per ticker over the aligned closes, and fills a
// symmetric Pearson correlation matrix. Tickers with fewer than two aligned
// price points are dropped entirely and reported as excluded; they never
// appear NaN-filled in the matrix. Ticker order is sorted, so identical
// input always produces the identical matrix.
func (a *Analyzer) Correlate(series map[string]domain.PriceSeries) Result {
	var result Result

	// Tickers with fewer than two observations of their own can never have
	// two aligned points, drop them before computing the date intersection
	// so one halted ticker does not empty the join for everyone else.
	included := make([]string, 0, len(series))
	for _, ticker := range sortedTickers(series) {
		if len(series[ticker]) < 2 {
			result.Excluded = append(result.Excluded, Exclusion{Ticker: ticker, Reason: "excluded for insufficient history"})
			continue
		}
		included = append(included, ticker)
	}

	commonDates := alignDates(series, included)
	if len(commonDates) < 2 {
		// Fewer than two shared dates means every ticker has fewer than two
		// aligned points.
		for _, ticker := range included {
			result.Excluded = append(result.Excluded, Exclusion{Ticker: ticker, Reason: "excluded for insufficient history"})
		}
		result.Matrix = &CorrelationMatrix{}
		a.log.Warn().Int("tickers", len(series)).Msg("No overlapping price history, correlation matrix is empty")
		return result
	}

	// Aligned close vectors -> daily returns. The first return of each
	// aligned series is undefined and dropped by DailyReturns.
	returns := make([][]float64, len(included))
	for i, ticker := range included {
		byDate := make(map[string]float64, len(series[ticker]))
		for _, p := range series[ticker] {
			byDate[p.Date] = p.Close
		}
		closes := make([]float64, len(commonDates))
		for j, d := range commonDates {
			closes[j] = byDate[d]
		}
		returns[i] = formulas.DailyReturns(closes)
	}

	n := len(included)
	coeffs := make([][]float64, n)
	for i := range coeffs {
		coeffs[i] = make([]float64, n)
		coeffs[i][i] = 1.0
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := formulas.Correlation(returns[i], returns[j])
			coeffs[i][j] = c
			coeffs[j][i] = c
		}
	}

	result.Matrix = &CorrelationMatrix{Tickers: included, coeffs: coeffs}

	a.log.Debug().
		Int("tickers", n).
		Int("aligned_dates", len(commonDates)).
		Int("excluded", len(result.Excluded)).
		Msg("Correlation matrix computed")

	return result
}

func sortedTickers(series map[string]domain.PriceSeries) []string {
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// alignDates returns the sorted intersection of observation dates across the
// given tickers.
func alignDates(series map[string]domain.PriceSeries, tickers []string) []string {
	if len(tickers) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, ticker := range tickers {
		seen := make(map[string]bool, len(series[ticker]))
		for _, p := range series[ticker] {
			if !seen[p.Date] {
				seen[p.Date] = true
				counts[p.Date]++
			}
		}
	}

	var common []string
	for date, n := range counts {
		if n == len(tickers) {
			common = append(common, date)
		}
	}
	sort.Strings(common)
	return common
}
