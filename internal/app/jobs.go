package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/verification"
)

// cacheSweepSchedule removes expired cache rows hourly. Expired entries are
// already invisible to lookups; the sweep just reclaims storage.
const cacheSweepSchedule = "@hourly"

// Jobs owns the scheduled maintenance tasks.
type Jobs struct {
	cron         *cron.Cron
	verification *verification.Service
}

// NewJobs creates the scheduler with every job registered. Start must be
// called to begin running them.
func NewJobs(verificationSvc *verification.Service) (*Jobs, error) {
	j := &Jobs{
		cron:         cron.New(),
		verification: verificationSvc,
	}

	if _, err := j.cron.AddFunc(cacheSweepSchedule, j.sweepCache); err != nil {
		return nil, fmt.Errorf("failed to register cache sweep job: %w", err)
	}
	return j, nil
}

// Start begins running the scheduled jobs.
func (j *Jobs) Start() {
	j.cron.Start()
	log.Info().Str("cache_sweep", cacheSweepSchedule).Msg("Scheduled jobs started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("Scheduled jobs stopped")
}

func (j *Jobs) sweepCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := j.verification.SweepCache(ctx); err != nil {
		log.Error().Err(err).Msg("Cache sweep failed")
	}
}
