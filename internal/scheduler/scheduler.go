package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is invoked on every matching calendar tick.
type JobFunc func(ctx context.Context)

// Options tune runner behaviour.
type Options struct {
	Location *time.Location
}

// Runner drives calendar-expression execution of polling jobs.
type Runner struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
}

// New constructs a Runner evaluating specs in the given timezone.
func New(opts Options, logger zerolog.Logger, baseCtx context.Context) *Runner {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithLocation(loc)),
		logger:  logger.With().Str("component", "scheduler").Logger(),
		baseCtx: baseCtx,
	}
}

// Add schedules a job on a standard 5-field cron spec.
func (r *Runner) Add(spec string, job JobFunc) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		r.logger.Debug().Str("spec", spec).Msg("executing scheduled job")
		job(r.baseCtx)
	})
}

// Start begins dispatching in a background goroutine.
func (r *Runner) Start() {
	r.logger.Info().Msg("scheduler started")
	r.cron.Start()
}

// Stop halts scheduling and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("scheduler stopped")
}
