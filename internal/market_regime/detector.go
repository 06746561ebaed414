// Package market_regime decides whether the market index trades above or
// below its long moving average. A risk-off regime gates new BUY execution
// for the day; analysis still runs so the report stays complete.
package market_regime

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/pkg/formulas"
)

// Regime is the detected market state.
type Regime string

const (
	// RegimeRiskOn - index at or above its moving average, buys allowed.
	RegimeRiskOn Regime = "risk_on"
	// RegimeRiskOff - index below its moving average, buys suppressed.
	RegimeRiskOff Regime = "risk_off"
	// RegimeUnknown - not enough index history to decide. Treated as
	// risk-on: a missing index feed should not silently halt trading.
	RegimeUnknown Regime = "unknown"
)

// Assessment is the detector output included in the cycle report.
type Assessment struct {
	Regime        Regime  `json:"regime"`
	IndexTicker   string  `json:"index_ticker"`
	IndexClose    float64 `json:"index_close,omitempty"`
	MovingAverage float64 `json:"moving_average,omitempty"`
	AsOf          string  `json:"as_of,omitempty"`
}

// AllowsBuys reports whether BUY orders may execute under this assessment.
func (a Assessment) AllowsBuys() bool {
	return a.Regime != RegimeRiskOff
}

// Detector compares an index close against its moving average.
type Detector struct {
	provider    domain.MarketDataProvider
	indexTicker string
	period      int // moving average window in trading days
	log         zerolog.Logger
}

// NewDetector creates a regime detector. period <= 0 defaults to 200.
func NewDetector(provider domain.MarketDataProvider, indexTicker string, period int, log zerolog.Logger) *Detector {
	if period <= 0 {
		period = 200
	}
	return &Detector{
		provider:    provider,
		indexTicker: indexTicker,
		period:      period,
		log:         log.With().Str("component", "market_regime").Logger(),
	}
}

// Assess fetches the index series and classifies the regime as of the given
// date. Missing or short history yields RegimeUnknown, never an aborted
// cycle.
func (d *Detector) Assess(ctx context.Context, asOf string) (Assessment, error) {
	assessment := Assessment{Regime: RegimeUnknown, IndexTicker: d.indexTicker}

	end, err := time.Parse("2006-01-02", asOf)
	if err != nil {
		return assessment, fmt.Errorf("parse as-of date %q: %w", asOf, err)
	}
	// Calendar window wide enough to hold `period` trading days.
	from := end.AddDate(0, 0, -d.period*2).Format("2006-01-02")

	series, err := d.provider.OHLCV(ctx, d.indexTicker, from, asOf)
	if err != nil {
		d.log.Warn().Err(err).Str("index", d.indexTicker).Msg("Index history unavailable, regime unknown")
		return assessment, nil
	}
	series.Sort()

	closes := series.Closes()
	ma := formulas.SMA(closes, d.period)
	last, ok := series.Last()
	if ma == nil || !ok {
		d.log.Warn().
			Str("index", d.indexTicker).
			Int("observations", len(closes)).
			Int("period", d.period).
			Msg("Insufficient index history, regime unknown")
		return assessment, nil
	}

	assessment.IndexClose = last.Close
	assessment.MovingAverage = *ma
	assessment.AsOf = last.Date
	if last.Close >= *ma {
		assessment.Regime = RegimeRiskOn
	} else {
		assessment.Regime = RegimeRiskOff
	}

	d.log.Info().
		Str("regime", string(assessment.Regime)).
		Float64("index_close", last.Close).
		Float64("moving_average", *ma).
		Msg("Market regime assessed")

	return assessment, nil
}
