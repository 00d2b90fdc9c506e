// Package schedule runs periodic jobs on a cron expression.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "folio/internal/log"
)

// Job is one unit of scheduled work, e.g. a feed refresh.
type Job func(ctx context.Context) error

// Refresher runs a Job on a standard 5-field cron spec. Runs never
// overlap; a tick that arrives while the job is busy is skipped.
type Refresher struct {
	name string
	spec string
	job  Job
	loc  *time.Location

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewRefresher validates spec and returns a Refresher for job.
func NewRefresher(name, spec string, loc *time.Location, job Job) (*Refresher, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &Refresher{name: name, spec: spec, job: job, loc: loc}, nil
}

// Run executes the job once immediately and then on every tick until ctx
// is done. It blocks.
func (r *Refresher) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(r.spec, func() { r.RunOnce(ctx) }); err != nil {
		return err
	}

	appLog.Info("scheduler started", "job", r.name, "spec", r.spec)
	r.RunOnce(ctx)
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	appLog.Info("scheduler stopped", "job", r.name)
	return nil
}

// RunOnce executes the job synchronously and records the outcome.
func (r *Refresher) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := r.job(ctx)

	r.mu.Lock()
	r.lastRun = start
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		appLog.Error("scheduled job failed", err, "job", r.name, "duration", time.Since(start))
		return
	}
	appLog.Debug("scheduled job done", "job", r.name, "duration", time.Since(start))
}

// Last reports when the job last ran and its error.
func (r *Refresher) Last() (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun, r.lastErr
}
