// Package scheduler runs the core's periodic maintenance jobs (gas-price
// cache refresh, nonce-pool expiry sweeps, the cross-chain scan) on cron
// schedules rather than ad hoc ticker goroutines. Grounded on
// aristath-sentinel's trader-go/internal/scheduler, generalized from its
// single-process job registry to this core's maintenance jobs.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one named, independently-runnable maintenance task.
type Job interface {
	Run() error
	Name() string
}

// FuncJob adapts a plain function into a Job.
type FuncJob struct {
	JobName string
	Fn      func() error
}

// Name returns the job's name.
func (f FuncJob) Name() string { return f.JobName }

// Run executes the job.
func (f FuncJob) Run() error { return f.Fn() }

// Scheduler manages cron-scheduled background jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a scheduler with seconds-resolution cron expressions.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("scheduler started")
}

// Stop waits for in-flight jobs to finish, then returns.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

// AddJob registers job on the given cron schedule, e.g. "@every 30s" or
// "0 */5 * * * *".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			s.log.Error().Err(err).Str("job", job.Name()).Msg("scheduled job failed")
		}
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}
