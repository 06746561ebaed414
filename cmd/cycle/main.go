// Package main runs a single investment cycle and exits. Useful for manual
// runs and for driving the pipeline from an external cron.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jwpark/krquant/internal/app"
	"github.com/jwpark/krquant/internal/config"
	"github.com/jwpark/krquant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire services")
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report, err := application.Cycle.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Cycle failed")
		application.Close()
		os.Exit(1)
	}

	if application.Backup != nil {
		if err := application.Backup.CreateAndUpload(ctx); err != nil {
			log.Error().Err(err).Msg("Backup failed")
		}
	}

	log.Info().
		Str("cycle_id", report.CycleID).
		Int("universe", report.UniverseSize).
		Int("selected", len(report.Selected)).
		Int("executed", len(report.Executions)).
		Int("refused", len(report.Refusals)).
		Str("cash_after", report.CashAfter.String()).
		Msg("Cycle finished")
}
