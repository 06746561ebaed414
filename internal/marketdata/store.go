// Package marketdata provides the SQLite-backed MarketDataProvider used by
// the daily cycle. An out-of-scope fetcher process keeps the history
// database current; the engine itself never blocks on network I/O.
package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/domain"
)

// Store reads market data from history.db and satisfies
// domain.MarketDataProvider.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Compile-time check that Store implements the provider contract.
var _ domain.MarketDataProvider = (*Store)(nil)

// NewStore creates a market data store over an opened history database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db.Conn(),
		log: log.With().Str("component", "marketdata").Logger(),
	}
}

// ListTickers returns the active tickers of a market in deterministic
// (sorted) order.
func (s *Store) ListTickers(ctx context.Context, market string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ticker FROM securities WHERE market = ? AND active = 1 ORDER BY ticker`, market)
	if err != nil {
		return nil, fmt.Errorf("query tickers for %s: %w", market, err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickers: %w", err)
	}
	return tickers, nil
}

// Fundamentals returns the most recent snapshot at or before asOf, so a
// non-trading asOf date falls back to the latest available snapshot.
func (s *Store) Fundamentals(ctx context.Context, ticker, asOf string) (domain.FundamentalRecord, error) {
	var rec domain.FundamentalRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT ticker, date, per, pbr, eps, bps, div, dps
		 FROM fundamentals WHERE ticker = ? AND date <= ?
		 ORDER BY date DESC LIMIT 1`, ticker, asOf).
		Scan(&rec.Ticker, &rec.Date, &rec.PER, &rec.PBR, &rec.EPS, &rec.BPS, &rec.DIV, &rec.DPS)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.FundamentalRecord{}, fmt.Errorf("fundamentals for %s as of %s: %w", ticker, asOf, domain.ErrNotFound)
	}
	if err != nil {
		return domain.FundamentalRecord{}, fmt.Errorf("query fundamentals for %s: %w", ticker, err)
	}
	return rec, nil
}

// OHLCV returns the close series for [from, to], sorted ascending by date.
// An empty series is a valid result for a halted ticker.
func (s *Store) OHLCV(ctx context.Context, ticker, from, to string) (domain.PriceSeries, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, close FROM prices
		 WHERE ticker = ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	var series domain.PriceSeries
	for rows.Next() {
		var p domain.PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("scan price for %s: %w", ticker, err)
		}
		series = append(series, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prices for %s: %w", ticker, err)
	}
	return series, nil
}

// InstitutionalFlow sums net institutional and foreign trading value over
// [from, to].
func (s *Store) InstitutionalFlow(ctx context.Context, ticker, from, to string) (domain.FlowSummary, error) {
	var flow domain.FlowSummary
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(institutional_net), 0), COALESCE(SUM(foreign_net), 0)
		 FROM institutional_flows
		 WHERE ticker = ? AND date >= ? AND date <= ?`, ticker, from, to).
		Scan(&count, &flow.InstitutionalNet, &flow.ForeignNet)
	if err != nil {
		return domain.FlowSummary{}, fmt.Errorf("query flow for %s: %w", ticker, err)
	}
	if count == 0 {
		return domain.FlowSummary{}, fmt.Errorf("flow for %s in [%s, %s]: %w", ticker, from, to, domain.ErrNotFound)
	}
	flow.Ticker = ticker
	return flow, nil
}
