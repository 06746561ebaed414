package marketdata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/domain"
)

// Writer is the ingest side of the history database, used by the data
// fetcher and by tests to seed the store. Upserts keep re-ingesting a day
// idempotent.
type Writer struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewWriter creates a history writer.
func NewWriter(db *database.DB, log zerolog.Logger) *Writer {
	return &Writer{
		db:  db.Conn(),
		log: log.With().Str("component", "marketdata_writer").Logger(),
	}
}

// UpsertSecurity registers (or reactivates) a ticker in a market.
func (w *Writer) UpsertSecurity(ctx context.Context, ticker, market, name string) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO securities (ticker, market, name, active) VALUES (?, ?, ?, 1)
		 ON CONFLICT(ticker) DO UPDATE SET market = excluded.market, name = excluded.name, active = 1`,
		ticker, market, name)
	if err != nil {
		return fmt.Errorf("upsert security %s: %w", ticker, err)
	}
	return nil
}

// DeactivateSecurity hides a ticker from ListTickers without deleting its
// history.
func (w *Writer) DeactivateSecurity(ctx context.Context, ticker string) error {
	_, err := w.db.ExecContext(ctx, `UPDATE securities SET active = 0 WHERE ticker = ?`, ticker)
	if err != nil {
		return fmt.Errorf("deactivate security %s: %w", ticker, err)
	}
	return nil
}

// UpsertPrices writes close prices for one ticker in a single transaction.
func (w *Writer) UpsertPrices(ctx context.Context, ticker string, series domain.PriceSeries) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price upsert for %s: %w", ticker, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO prices (ticker, date, close) VALUES (?, ?, ?)
		 ON CONFLICT(ticker, date) DO UPDATE SET close = excluded.close`)
	if err != nil {
		return fmt.Errorf("prepare price upsert for %s: %w", ticker, err)
	}
	defer stmt.Close()

	for _, p := range series {
		if _, err := stmt.ExecContext(ctx, ticker, p.Date, p.Close); err != nil {
			return fmt.Errorf("upsert price %s@%s: %w", ticker, p.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit price upsert for %s: %w", ticker, err)
	}
	return nil
}

// UpsertFundamentals writes one fundamentals snapshot.
func (w *Writer) UpsertFundamentals(ctx context.Context, rec domain.FundamentalRecord) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO fundamentals (ticker, date, per, pbr, eps, bps, div, dps)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ticker, date) DO UPDATE SET
		   per = excluded.per, pbr = excluded.pbr, eps = excluded.eps,
		   bps = excluded.bps, div = excluded.div, dps = excluded.dps`,
		rec.Ticker, rec.Date, rec.PER, rec.PBR, rec.EPS, rec.BPS, rec.DIV, rec.DPS)
	if err != nil {
		return fmt.Errorf("upsert fundamentals %s@%s: %w", rec.Ticker, rec.Date, err)
	}
	return nil
}

// UpsertFlow writes one day of institutional/foreign net trading value.
func (w *Writer) UpsertFlow(ctx context.Context, ticker, date string, institutionalNet, foreignNet float64) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO institutional_flows (ticker, date, institutional_net, foreign_net)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(ticker, date) DO UPDATE SET
		   institutional_net = excluded.institutional_net, foreign_net = excluded.foreign_net`,
		ticker, date, institutionalNet, foreignNet)
	if err != nil {
		return fmt.Errorf("upsert flow %s@%s: %w", ticker, date, err)
	}
	return nil
}
