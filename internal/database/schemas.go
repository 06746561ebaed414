package database

// schemas maps database names to their DDL. CREATE TABLE IF NOT EXISTS keeps
// Migrate idempotent across restarts.
var schemas = map[string]string{
	"history": historySchema,
	"trades":  tradesSchema,
}

const historySchema = `
CREATE TABLE IF NOT EXISTS securities (
    ticker   TEXT PRIMARY KEY,
    market   TEXT NOT NULL,
    name     TEXT NOT NULL DEFAULT '',
    active   INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_securities_market ON securities(market, active);

CREATE TABLE IF NOT EXISTS prices (
    ticker TEXT NOT NULL,
    date   TEXT NOT NULL,             -- YYYY-MM-DD
    close  REAL NOT NULL,
    PRIMARY KEY (ticker, date)
);

CREATE INDEX IF NOT EXISTS idx_prices_ticker_date ON prices(ticker, date);

CREATE TABLE IF NOT EXISTS fundamentals (
    ticker TEXT NOT NULL,
    date   TEXT NOT NULL,             -- snapshot date, YYYY-MM-DD
    per    REAL NOT NULL DEFAULT 0,
    pbr    REAL NOT NULL DEFAULT 0,
    eps    REAL NOT NULL DEFAULT 0,
    bps    REAL NOT NULL DEFAULT 0,
    div    REAL NOT NULL DEFAULT 0,
    dps    REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (ticker, date)
);

CREATE TABLE IF NOT EXISTS institutional_flows (
    ticker            TEXT NOT NULL,
    date              TEXT NOT NULL,  -- YYYY-MM-DD
    institutional_net REAL NOT NULL DEFAULT 0,
    foreign_net       REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (ticker, date)
);
`

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,     -- uuid
    cycle_id    TEXT NOT NULL,
    ticker      TEXT NOT NULL,
    side        TEXT NOT NULL,        -- BUY | SELL
    quantity    INTEGER NOT NULL,
    price       TEXT NOT NULL,        -- decimal string
    notional    TEXT NOT NULL,        -- decimal string
    executed_at TEXT NOT NULL         -- RFC3339 UTC
);

CREATE INDEX IF NOT EXISTS idx_trades_ticker ON trades(ticker, executed_at);
CREATE INDEX IF NOT EXISTS idx_trades_cycle ON trades(cycle_id);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at);
`
