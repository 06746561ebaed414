package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwpark/krquant/internal/cycle"
	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/domain"
	"github.com/jwpark/krquant/internal/events"
	"github.com/jwpark/krquant/internal/modules/ledger"
	"github.com/jwpark/krquant/internal/modules/trading"
)

var memCounter int

type emptyProvider struct{}

func (emptyProvider) ListTickers(ctx context.Context, market string) ([]string, error) {
	return nil, nil
}

func (emptyProvider) Fundamentals(ctx context.Context, ticker, asOf string) (domain.FundamentalRecord, error) {
	return domain.FundamentalRecord{}, domain.ErrNotFound
}

func (emptyProvider) OHLCV(ctx context.Context, ticker, from, to string) (domain.PriceSeries, error) {
	return nil, nil
}

func (emptyProvider) InstitutionalFlow(ctx context.Context, ticker, from, to string) (domain.FlowSummary, error) {
	return domain.FlowSummary{}, domain.ErrNotFound
}

type nopStore struct{}

func (nopStore) Save(l *ledger.Ledger) error { return nil }

func newTestServer(t *testing.T) (*Server, *trading.TradeRepository) {
	t.Helper()
	memCounter++
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", memCounter),
		Profile: database.ProfileAudit,
		Name:    "trades",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	trades := trading.NewTradeRepository(db, zerolog.Nop())
	svc := cycle.NewService(cycle.Deps{
		Provider: emptyProvider{},
		Executor: ledger.NewExecutor(nopStore{}, zerolog.Nop()),
		Ledger:   ledger.New(decimal.NewFromInt(1_000_000)),
		Trades:   trades,
		Bus:      events.NewBus(zerolog.Nop()),
		Market:   "KOSPI",
		TopN:     5,
		Lookback: 90,
	}, zerolog.Nop())

	srv := New(Config{
		Log:    zerolog.Nop(),
		Cycle:  svc,
		Trades: trades,
		Bus:    events.NewBus(zerolog.Nop()),
		Port:   0,
	})
	return srv, trades
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestPortfolioReturnsLedger(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/portfolio")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cash      string         `json:"cash"`
		Positions map[string]any `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1000000", body.Cash)
	assert.Empty(t, body.Positions)
}

func TestLatestCycleBeforeFirstRun(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/cycles/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrades(t *testing.T) {
	srv, trades := newTestServer(t)

	price := decimal.NewFromInt(70_000)
	_, err := trades.Record("cycle-1", &ledger.ExecutionResult{
		Order: domain.TradeOrder{
			Ticker:         "005930",
			Side:           domain.SideBuy,
			Quantity:       10,
			ReferencePrice: price,
			Notional:       price.Mul(decimal.NewFromInt(10)),
		},
		ExecutedAt: time.Now(),
	})
	require.NoError(t, err)

	rec := get(t, srv, "/api/trades")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Trades []trading.Trade `json:"trades"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Trades, 1)
	assert.Equal(t, "005930", body.Trades[0].Ticker)
}

func TestTradesRejectsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := get(t, srv, "/api/trades?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCycleAccepted(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/cycles/run", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// The empty-universe cycle completes in the background.
	require.Eventually(t, func() bool {
		return srv.cycle.LastReport() != nil
	}, time.Second, 5*time.Millisecond)
}
