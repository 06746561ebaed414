package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by providers when no data exists for the requested
// ticker and date range. Pipeline stages treat it as a per-ticker exclusion,
// never as a batch failure.
var ErrNotFound = errors.New("market data not found")

// MarketDataProvider supplies the upstream market data the pipeline consumes.
// All network fetching and date-fallback logic (for example supplying the
// prior trading day's close when today has no bar yet) lives behind this
// interface; the engine only ever sees resolved in-memory records.
type MarketDataProvider interface {
	// ListTickers returns every tradable ticker in the given market
	// (e.g. "KOSPI", "KOSDAQ").
	ListTickers(ctx context.Context, market string) ([]string, error)

	// Fundamentals returns the valuation snapshot for one ticker as of the
	// given date. Returns ErrNotFound when no snapshot exists.
	Fundamentals(ctx context.Context, ticker, asOf string) (FundamentalRecord, error)

	// OHLCV returns the close-price series for [from, to], sorted ascending
	// by date. An empty series is a valid result for a halted ticker.
	OHLCV(ctx context.Context, ticker, from, to string) (PriceSeries, error)

	// InstitutionalFlow returns cumulative institutional and foreign net
	// trading value over [from, to]. Returns ErrNotFound when no flow data
	// exists for the ticker.
	InstitutionalFlow(ctx context.Context, ticker, from, to string) (FlowSummary, error)
}
