// Package app wires the application's services together for the
// entrypoints: databases, ledger, pipeline, backups and the event bus.
package app

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/clients/bok"
	"github.com/jwpark/krquant/internal/config"
	"github.com/jwpark/krquant/internal/cycle"
	"github.com/jwpark/krquant/internal/database"
	"github.com/jwpark/krquant/internal/events"
	"github.com/jwpark/krquant/internal/market_regime"
	"github.com/jwpark/krquant/internal/marketdata"
	"github.com/jwpark/krquant/internal/modules/ledger"
	"github.com/jwpark/krquant/internal/modules/trading"
	"github.com/jwpark/krquant/internal/reliability"
)

// App holds the wired services. Close releases the databases.
type App struct {
	Config *config.Config
	Bus    *events.Bus
	Cycle  *cycle.Service
	Trades *trading.TradeRepository
	Backup *reliability.BackupService // nil when backups are disabled

	historyDB *database.DB
	tradesDB  *database.DB
	log       zerolog.Logger
}

// New builds the full service graph from configuration.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := historyDB.Migrate(); err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}

	tradesDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "trades.db"),
		Profile: database.ProfileAudit,
		Name:    "trades",
	})
	if err != nil {
		historyDB.Close()
		return nil, fmt.Errorf("opening trades database: %w", err)
	}
	if err := tradesDB.Migrate(); err != nil {
		historyDB.Close()
		tradesDB.Close()
		return nil, fmt.Errorf("migrating trades database: %w", err)
	}

	ledgerStore := ledger.NewStore(cfg.LedgerPath, log)
	led, err := ledgerStore.LoadOrCreate(cfg.InitialCapital)
	if err != nil {
		historyDB.Close()
		tradesDB.Close()
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	provider := marketdata.NewStore(historyDB, log)
	trades := trading.NewTradeRepository(tradesDB, log)
	bus := events.NewBus(log)

	var regime cycle.RegimeDetector
	if cfg.Regime.Enabled {
		regime = market_regime.NewDetector(provider, cfg.Regime.IndexTicker, cfg.Regime.Period, log)
	}

	var macro cycle.MacroClient
	if cfg.BOKAPIKey != "" {
		macro = bok.NewClient(cfg.BOKAPIKey, log)
	}

	cycleService := cycle.NewService(cycle.Deps{
		Provider: provider,
		Executor: ledger.NewExecutor(ledgerStore, log),
		Ledger:   led,
		Trades:   trades,
		Regime:   regime,
		Macro:    macro,
		Bus:      bus,
		Market:   cfg.Market,
		TopN:     cfg.TopN,
		Lookback: cfg.LookbackDays,
	}, log)

	var backup *reliability.BackupService
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(
			cfg.Backup.Endpoint, cfg.Backup.Region,
			cfg.Backup.AccessKey, cfg.Backup.SecretKey,
			cfg.Backup.Bucket, log,
		)
		if err != nil {
			historyDB.Close()
			tradesDB.Close()
			return nil, fmt.Errorf("creating backup client: %w", err)
		}
		backup = reliability.NewBackupService(s3Client, cfg.LedgerPath, cfg.DataDir, log)
	}

	return &App{
		Config:    cfg,
		Bus:       bus,
		Cycle:     cycleService,
		Trades:    trades,
		Backup:    backup,
		historyDB: historyDB,
		tradesDB:  tradesDB,
		log:       log.With().Str("component", "app").Logger(),
	}, nil
}

// Close releases database connections.
func (a *App) Close() {
	if err := a.tradesDB.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close trades database")
	}
	if err := a.historyDB.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close history database")
	}
}
