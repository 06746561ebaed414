// Package domain holds the data model shared by every stage of the daily
// pipeline and the provider contract the stages consume. It is pure: no
// infrastructure dependencies, no side effects.
package domain

import "sort"

// Date values are ISO "YYYY-MM-DD" strings throughout the engine. ISO dates
// sort lexicographically in chronological order, which the alignment and
// lookback code relies on.

// FundamentalRecord is an immutable valuation snapshot for one ticker at one
// date. Per-share figures and ratios come straight from the market data
// provider.
type FundamentalRecord struct {
	Ticker string  `json:"ticker"`
	Date   string  `json:"date"`
	PER    float64 `json:"per"` // price / earnings per share
	PBR    float64 `json:"pbr"` // price / book value per share
	EPS    float64 `json:"eps"` // earnings per share
	BPS    float64 `json:"bps"` // book value per share
	DIV    float64 `json:"div"` // dividend yield, percent
	DPS    float64 `json:"dps"` // dividend per share
}

// ROE derives return on equity as eps/bps x 100. The second return value is
// false when bps is not positive, in which case ROE is undefined.
func (f FundamentalRecord) ROE() (float64, bool) {
	if f.BPS <= 0 {
		return 0, false
	}
	return f.EPS / f.BPS * 100, true
}

// PricePoint is one (date, close) observation.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// PriceSeries is the close-price history of one ticker over a date range,
// sorted ascending by date. Gaps (halted tickers) are simply absent points;
// they are never interpolated.
type PriceSeries []PricePoint

// Sort sorts the series ascending by date in place.
func (s PriceSeries) Sort() {
	sort.Slice(s, func(i, j int) bool { return s[i].Date < s[j].Date })
}

// Closes returns the close values in date order.
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Since returns the sub-series with dates >= from. The receiver must already
// be sorted.
func (s PriceSeries) Since(from string) PriceSeries {
	idx := sort.Search(len(s), func(i int) bool { return s[i].Date >= from })
	return s[idx:]
}

// Last returns the most recent point, or false for an empty series.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// FlowSummary aggregates net institutional and foreign trading value for one
// ticker over a date range.
type FlowSummary struct {
	Ticker           string  `json:"ticker"`
	InstitutionalNet float64 `json:"institutional_net"`
	ForeignNet       float64 `json:"foreign_net"`
}
