// Package trading keeps the durable audit log of executed orders. The JSON
// ledger holds current state; this log holds how it got there.
package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/internal/modules/ledger"
)

// Trade is one executed order as recorded in the audit log.
type Trade struct {
	ID         string          `json:"id"`
	CycleID    string          `json:"cycle_id"`
	Ticker     string          `json:"ticker"`
	Side       domain.Side     `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Notional   decimal.Decimal `json:"notional"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// tradesColumns avoids SELECT *: column order must match scanTrade.
const tradesColumns = `id, cycle_id, ticker, side, quantity, price, notional, executed_at`

// executedAtLayout is fixed-width (no trimmed fractional zeros) and always
// UTC, so lexicographic ORDER BY and >= comparisons on the stored strings
// match chronological order.
const executedAtLayout = "2006-01-02T15:04:05.000000000Z"

// TradeRepository persists trades in trades.db.
type TradeRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTradeRepository creates a trade repository.
func NewTradeRepository(db *database.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// Record writes one execution result into the audit log and returns the
// stored trade.
func (r *TradeRepository) Record(cycleID string, result *ledger.ExecutionResult) (*Trade, error) {
	trade := Trade{
		ID:         uuid.NewString(),
		CycleID:    cycleID,
		Ticker:     result.Order.Ticker,
		Side:       result.Order.Side,
		Quantity:   result.Order.Quantity,
		Price:      result.Order.ReferencePrice,
		Notional:   result.Order.Notional,
		ExecutedAt: result.ExecutedAt,
	}

	_, err := r.db.Exec(
		`INSERT INTO trades (`+tradesColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.CycleID, trade.Ticker, string(trade.Side), trade.Quantity,
		trade.Price.String(), trade.Notional.String(),
		trade.ExecutedAt.UTC().Format(executedAtLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("record trade for %s: %w", trade.Ticker, err)
	}

	r.log.Debug().Str("trade_id", trade.ID).Str("ticker", trade.Ticker).Msg("Trade recorded")
	return &trade, nil
}

// GetHistory returns the most recent trades, newest first. limit <= 0 means
// no limit.
func (r *TradeRepository) GetHistory(limit int) ([]Trade, error) {
	query := `SELECT ` + tradesColumns + ` FROM trades ORDER BY executed_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(query, args...)
}

// GetByCycle returns all trades of one cycle in execution order.
func (r *TradeRepository) GetByCycle(cycleID string) ([]Trade, error) {
	return r.queryTrades(
		`SELECT `+tradesColumns+` FROM trades WHERE cycle_id = ? ORDER BY executed_at ASC`,
		cycleID)
}

// GetByTicker returns recent trades for one ticker, newest first.
func (r *TradeRepository) GetByTicker(ticker string, limit int) ([]Trade, error) {
	query := `SELECT ` + tradesColumns + ` FROM trades WHERE ticker = ? ORDER BY executed_at DESC`
	args := []any{ticker}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryTrades(query, args...)
}

// CountSince returns the number of trades executed at or after the given
// time.
func (r *TradeRepository) CountSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM trades WHERE executed_at >= ?`,
		since.UTC().Format(executedAtLayout)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...any) ([]Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(rows *sql.Rows) (Trade, error) {
	var trade Trade
	var side, price, notional, executedAt string

	if err := rows.Scan(&trade.ID, &trade.CycleID, &trade.Ticker, &side,
		&trade.Quantity, &price, &notional, &executedAt); err != nil {
		return Trade{}, fmt.Errorf("scan trade: %w", err)
	}

	trade.Side = domain.Side(side)

	var err error
	if trade.Price, err = decimal.NewFromString(price); err != nil {
		return Trade{}, fmt.Errorf("parse trade price %q: %w", price, err)
	}
	if trade.Notional, err = decimal.NewFromString(notional); err != nil {
		return Trade{}, fmt.Errorf("parse trade notional %q: %w", notional, err)
	}
	if trade.ExecutedAt, err = time.Parse(executedAtLayout, executedAt); err != nil {
		return Trade{}, fmt.Errorf("parse trade timestamp %q: %w", executedAt, err)
	}
	return trade, nil
}
