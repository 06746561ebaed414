// Package formulas contains the shared numeric building blocks of the engine:
// return series, dispersion statistics, and price indicators.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// DailyReturns converts a close-price series into simple daily returns:
// r_t = close_t/close_{t-1} - 1. The first (undefined) return is dropped,
// so the result has len(closes)-1 elements. A zero previous close yields a
// zero return rather than propagating Inf into downstream statistics.
func DailyReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// Correlation calculates the Pearson correlation coefficient between two
// equally sized return vectors. Returns NaN when either vector has zero
// variance, mirroring gonum's behaviour; callers decide how to report that.
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return math.NaN()
	}
	return stat.Correlation(x, y, nil)
}

// PairwiseSum sums data with recursive pairwise (cascade) summation. It keeps
// accumulated floating-point error independent of input order, which makes
// derived statistics reproducible for identical inputs.
func PairwiseSum(data []float64) float64 {
	switch len(data) {
	case 0:
		return 0
	case 1:
		return data[0]
	case 2:
		return data[0] + data[1]
	}
	mid := len(data) / 2
	return PairwiseSum(data[:mid]) + PairwiseSum(data[mid:])
}
