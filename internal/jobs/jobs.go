// Package jobs runs periodic background work on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one named unit of periodic work.
type Job struct {
	Name string
	Spec string // cron expression; empty disables the job
	Run  func(ctx context.Context)
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are
// skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New parses every job's schedule and returns a stopped scheduler.
func New(ctx context.Context, logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{cron: c, logger: logger}
	for _, j := range jobs {
		if j.Spec == "" {
			logger.Info("job disabled", slog.String("job", j.Name))
			continue
		}
		if _, err := c.AddFunc(j.Spec, s.wrap(ctx, j)); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s %q: %w", j.Name, j.Spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(ctx context.Context, j Job) func() {
	return func() {
		started := time.Now()
		j.Run(ctx)
		s.logger.Debug("job finished", slog.String("job", j.Name), slog.Duration("took", time.Since(started)))
	}
}

// Len is the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
