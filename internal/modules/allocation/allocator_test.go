package allocation

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwpark/krquant/internal/domain"
)

// seriesWithSigma builds a daily series whose returns alternate +sigma/-sigma
// around a base price, giving a daily-return standard deviation close to
// sigma (exact proportionality is what inverse-vol weighting needs).
func seriesWithSigma(days int, sigma float64) domain.PriceSeries {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := make(domain.PriceSeries, 0, days)
	price := 100.0
	for i := 0; i < days; i++ {
		s = append(s, domain.PricePoint{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Close: price,
		})
		if i%2 == 0 {
			price *= 1 + sigma
		} else {
			price *= 1 - sigma
		}
	}
	return s
}

func flatSeries(days int) domain.PriceSeries {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := make(domain.PriceSeries, 0, days)
	for i := 0; i < days; i++ {
		s = append(s, domain.PricePoint{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Close: 100,
		})
	}
	return s
}

func TestAllocateInverseVolatilityProportions(t *testing.T) {
	allocator := NewAllocator(90, zerolog.Nop())

	// Sigmas 0.01 : 0.02 : 0.04 -> inverse 100 : 50 : 25 -> weights
	// ~0.571 : 0.286 : 0.143.
	result, err := allocator.Allocate(map[string]domain.PriceSeries{
		"low":  seriesWithSigma(60, 0.01),
		"mid":  seriesWithSigma(60, 0.02),
		"high": seriesWithSigma(60, 0.04),
	})
	require.NoError(t, err)
	require.Len(t, result.Weights, 3)

	assert.InDelta(t, 4.0/7.0, result.Weights["low"], 0.01)
	assert.InDelta(t, 2.0/7.0, result.Weights["mid"], 0.01)
	assert.InDelta(t, 1.0/7.0, result.Weights["high"], 0.01)
	assert.InDelta(t, 1.0, result.Weights.Sum(), 1e-6)
}

func TestAllocateWeightsSumToOne(t *testing.T) {
	allocator := NewAllocator(90, zerolog.Nop())

	series := make(map[string]domain.PriceSeries)
	for i := 0; i < 12; i++ {
		series[fmt.Sprintf("t%02d", i)] = seriesWithSigma(45, 0.005+float64(i)*0.003)
	}

	result, err := allocator.Allocate(series)
	require.NoError(t, err)
	require.Len(t, result.Weights, 12)

	assert.InDelta(t, 1.0, result.Weights.Sum(), 1e-6)
	for ticker, w := range result.Weights {
		assert.GreaterOrEqual(t, w, 0.0, "weight for %s", ticker)
		assert.LessOrEqual(t, w, 1.0, "weight for %s", ticker)
	}
}

func TestAllocateExcludesZeroVolatility(t *testing.T) {
	allocator := NewAllocator(90, zerolog.Nop())

	result, err := allocator.Allocate(map[string]domain.PriceSeries{
		"live": seriesWithSigma(60, 0.02),
		"flat": flatSeries(60),
	})
	require.NoError(t, err)

	// The flat ticker is absent from the map, not present with weight 0.
	_, present := result.Weights["flat"]
	assert.False(t, present)
	assert.InDelta(t, 1.0, result.Weights["live"], 1e-9)

	require.Len(t, result.Excluded, 1)
	assert.Equal(t, "flat", result.Excluded[0].Ticker)
	assert.Contains(t, result.Excluded[0].Reason, "volatility")
}

func TestAllocateExcludesSingleObservation(t *testing.T) {
	allocator := NewAllocator(90, zerolog.Nop())

	result, err := allocator.Allocate(map[string]domain.PriceSeries{
		"live":   seriesWithSigma(60, 0.02),
		"halted": seriesWithSigma(1, 0.02),
	})
	require.NoError(t, err)

	_, present := result.Weights["halted"]
	assert.False(t, present)
	require.Len(t, result.Excluded, 1)
	assert.Contains(t, result.Excluded[0].Reason, "insufficient history")
}

func TestAllocateNoAllocatableAssets(t *testing.T) {
	allocator := NewAllocator(90, zerolog.Nop())

	_, err := allocator.Allocate(map[string]domain.PriceSeries{
		"flat":  flatSeries(60),
		"other": flatSeries(30),
	})
	assert.ErrorIs(t, err, ErrNoAllocatableAssets)

	_, err = allocator.Allocate(map[string]domain.PriceSeries{})
	assert.ErrorIs(t, err, ErrNoAllocatableAssets)
}

func TestAllocateLookbackWindowIgnoresOldHistory(t *testing.T) {
	// Lookback 30 days: points older than 30 days before the latest
	// observation must not affect sigma.
	allocator := NewAllocator(30, zerolog.Nop())

	old := seriesWithSigma(200, 0.08) // wild history, all older than the window
	recent := seriesWithSigma(200, 0.01)
	// Same recent window for both: identical sigma -> equal weights.
	combined := append(domain.PriceSeries{}, old[:150]...)
	combined = append(combined, recent[150:]...)

	result, err := allocator.Allocate(map[string]domain.PriceSeries{
		"spliced": combined,
		"steady":  recent,
	})
	require.NoError(t, err)
	require.Len(t, result.Weights, 2)

	assert.InDelta(t, 0.5, result.Weights["spliced"], 0.02)
	assert.InDelta(t, 0.5, result.Weights["steady"], 0.02)
}
