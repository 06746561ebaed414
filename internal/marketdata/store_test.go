package marketdata

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/domain"
)

var memCounter int

func newTestHistoryDB(t *testing.T) *database.DB {
	t.Helper()
	memCounter++
	db, err := database.New(database.Config{
		Path: fmt.Sprintf("file:marketdata_test_%d?mode=memory&cache=shared", memCounter),
		Name: "history",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestListTickersFiltersMarketAndActive(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())
	writer := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, writer.UpsertSecurity(ctx, "005930", "KOSPI", "Samsung Electronics"))
	require.NoError(t, writer.UpsertSecurity(ctx, "000660", "KOSPI", "SK hynix"))
	require.NoError(t, writer.UpsertSecurity(ctx, "247540", "KOSDAQ", "Ecopro BM"))
	require.NoError(t, writer.UpsertSecurity(ctx, "999999", "KOSPI", "Delisted"))
	require.NoError(t, writer.DeactivateSecurity(ctx, "999999"))

	tickers, err := store.ListTickers(ctx, "KOSPI")
	require.NoError(t, err)
	assert.Equal(t, []string{"000660", "005930"}, tickers)
}

func TestFundamentalsMostRecentAtOrBefore(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())
	writer := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	older := domain.FundamentalRecord{Ticker: "005930", Date: "2026-08-25", PER: 12, PBR: 1.1, EPS: 5000, BPS: 60000, DIV: 2.1, DPS: 1444}
	newer := domain.FundamentalRecord{Ticker: "005930", Date: "2026-08-27", PER: 12.5, PBR: 1.2, EPS: 5100, BPS: 60100, DIV: 2.0, DPS: 1444}
	require.NoError(t, writer.UpsertFundamentals(ctx, older))
	require.NoError(t, writer.UpsertFundamentals(ctx, newer))

	// Weekend asOf date falls back to the latest prior snapshot.
	rec, err := store.Fundamentals(ctx, "005930", "2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-27", rec.Date)
	assert.Equal(t, 12.5, rec.PER)

	rec, err = store.Fundamentals(ctx, "005930", "2026-08-26")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-25", rec.Date)
}

func TestFundamentalsNotFound(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())

	_, err := store.Fundamentals(context.Background(), "005930", "2026-08-28")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOHLCVRangeSortedAscending(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())
	writer := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	series := domain.PriceSeries{
		{Date: "2026-08-24", Close: 70000},
		{Date: "2026-08-25", Close: 71000},
		{Date: "2026-08-26", Close: 70500},
		{Date: "2026-08-27", Close: 71500},
	}
	require.NoError(t, writer.UpsertPrices(ctx, "005930", series))

	got, err := store.OHLCV(ctx, "005930", "2026-08-25", "2026-08-26")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-08-25", got[0].Date)
	assert.Equal(t, 71000.0, got[0].Close)
	assert.Equal(t, "2026-08-26", got[1].Date)

	// Empty range is a valid empty series, not an error.
	empty, err := store.OHLCV(ctx, "005930", "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpsertPricesIdempotent(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())
	writer := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, writer.UpsertPrices(ctx, "005930", domain.PriceSeries{{Date: "2026-08-27", Close: 71000}}))
	require.NoError(t, writer.UpsertPrices(ctx, "005930", domain.PriceSeries{{Date: "2026-08-27", Close: 71500}}))

	got, err := store.OHLCV(ctx, "005930", "2026-08-27", "2026-08-27")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 71500.0, got[0].Close)
}

func TestInstitutionalFlowSumsRange(t *testing.T) {
	db := newTestHistoryDB(t)
	store := NewStore(db, zerolog.Nop())
	writer := NewWriter(db, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, writer.UpsertFlow(ctx, "005930", "2026-08-25", 1_000_000, -500_000))
	require.NoError(t, writer.UpsertFlow(ctx, "005930", "2026-08-26", 2_000_000, 700_000))

	flow, err := store.InstitutionalFlow(ctx, "005930", "2026-08-01", "2026-08-31")
	require.NoError(t, err)
	assert.Equal(t, "005930", flow.Ticker)
	assert.Equal(t, 3_000_000.0, flow.InstitutionalNet)
	assert.Equal(t, 200_000.0, flow.ForeignNet)

	_, err = store.InstitutionalFlow(ctx, "000660", "2026-08-01", "2026-08-31")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
