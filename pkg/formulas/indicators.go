package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// SMA calculates the Simple Moving Average over the given period and returns
// the latest value, or nil when there is not enough data for a full window.
func SMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}

	sma := talib.Sma(closes, period)
	if len(sma) == 0 {
		return nil
	}

	last := sma[len(sma)-1]
	if math.IsNaN(last) {
		return nil
	}
	return &last
}

// EMA calculates the Exponential Moving Average over the given period and
// returns the latest value. With fewer closes than the period it falls back
// to the plain mean, matching the warm-up behaviour used for regime checks.
func EMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) == 0 {
		return nil
	}

	if len(closes) < period {
		mean := Mean(closes)
		return &mean
	}

	ema := talib.Ema(closes, period)
	if len(ema) == 0 {
		return nil
	}

	last := ema[len(ema)-1]
	if math.IsNaN(last) {
		return nil
	}
	return &last
}
