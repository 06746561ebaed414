// Package main is the entry point for the krquant daily portfolio engine.
// It starts the cron scheduler for the daily cycle and the HTTP status API,
// then waits for a shutdown signal.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwpark/krquant/internal/app"
	"github.com/jwpark/krquant/internal/config"
	"github.com/jwpark/krquant/internal/events"
	"github.com/jwpark/krquant/internal/scheduler"
	"github.com/jwpark/krquant/internal/server"
	"github.com/jwpark/krquant/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("market", cfg.Market).Int("top_n", cfg.TopN).Msg("Starting krquant")

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire services")
	}
	defer application.Close()

	// Off-site backup after every completed cycle, on its own goroutine so
	// the upload never delays the pipeline.
	if application.Backup != nil {
		application.Bus.Subscribe(events.CycleCompleted, func(event *events.Event) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
				defer cancel()
				if err := application.Backup.CreateAndUpload(ctx); err != nil {
					log.Error().Err(err).Msg("Post-cycle backup failed")
				}
				if err := application.Backup.RotateOldBackups(ctx, cfg.Backup.RetentionDays); err != nil {
					log.Error().Err(err).Msg("Backup rotation failed")
				}
			}()
		})
	}

	sched, err := scheduler.New(cfg.Timezone, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	if err := sched.AddJob(cfg.Schedule, scheduler.NewCycleJob(application.Cycle, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register daily cycle job")
	}
	sched.Start()

	srv := server.New(server.Config{
		Log:     log,
		Cycle:   application.Cycle,
		Trades:  application.Trades,
		Bus:     application.Bus,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
