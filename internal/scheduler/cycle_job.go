package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwpark/krquant/internal/cycle"
)

// cycleTimeout bounds one scheduled run, provider calls included.
const cycleTimeout = 30 * time.Minute

// CycleJob runs the daily pipeline from the cron schedule.
type CycleJob struct {
	service *cycle.Service
	log     zerolog.Logger
}

// NewCycleJob wraps the cycle service as a schedulable job.
func NewCycleJob(service *cycle.Service, log zerolog.Logger) *CycleJob {
	return &CycleJob{
		service: service,
		log:     log.With().Str("job", "daily_cycle").Logger(),
	}
}

// Name implements Job.
func (j *CycleJob) Name() string { return "daily_cycle" }

// Run implements Job. An already-running cycle is not an error worth
// alerting on: the schedule simply fired while a manual run was active.
func (j *CycleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	report, err := j.service.Run(ctx)
	if err != nil {
		if errors.Is(err, cycle.ErrCycleInProgress) {
			j.log.Warn().Msg("Skipping scheduled run, a cycle is already in progress")
			return nil
		}
		return err
	}

	j.log.Info().
		Str("cycle_id", report.CycleID).
		Int("executed", len(report.Executions)).
		Msg("Scheduled cycle finished")
	return nil
}
