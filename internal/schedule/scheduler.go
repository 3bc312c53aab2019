// Package schedule implements the Scheduler & Alarm component (spec.md
// §4.I): fixed-interval ingest triggers, cron-configured report triggers,
// and a best-effort Alarm sink for irrecoverable failures. Grounded on the
// teacher's newsletter scheduler, minus its database-driven "due
// schedules" polling — adflow's triggers are a fixed, small set known at
// startup rather than rows in a schedules table.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/model"
)

// Job is one unit of scheduled work: an ingest tick or a report build+publish.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
	// Next computes the job's next fire time strictly after `after`.
	Next func(after time.Time) time.Time
}

// jobState tracks the last computed fire time for one job so the run loop
// only invokes it once per tick.
type jobState struct {
	job      Job
	nextFire time.Time
}

// Scheduler runs a fixed set of Jobs, each on its own Next-computed cadence,
// single-threaded and cooperative: at most one job executes at a time, and
// a tick that fires while a job is still running is skipped rather than
// queued, exactly as spec.md §4.I requires.
type Scheduler struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	jobs   []*jobState
	clock  func() time.Time
	ticker time.Duration
}

// pollInterval is how often the run loop checks whether any job's next fire
// time has arrived. One minute matches the cron parser's minute resolution.
const pollInterval = time.Minute

// New builds a Scheduler over jobs, each scheduled independently by its own
// Next function.
func New(jobs []Job) *Scheduler {
	states := make([]*jobState, len(jobs))
	for i, j := range jobs {
		states[i] = &jobState{job: j}
	}
	return &Scheduler{jobs: states, clock: time.Now, ticker: pollInterval}
}

// Start begins the run loop in a background goroutine. Calling Start twice
// without an intervening Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.beginRun() {
		return
	}
	go s.run(ctx)
}

// Serve runs the scheduler loop on the calling goroutine until ctx is
// canceled or Stop is called, satisfying suture.Service so
// internal/supervisor can supervise the scheduler directly alongside the
// rest of the serve daemon's long-running components.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.beginRun() {
		return nil
	}
	s.run(ctx)
	return ctx.Err()
}

func (s *Scheduler) beginRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	now := s.clock()
	for _, js := range s.jobs {
		js.nextFire = js.job.Next(now)
	}
	return true
}

// Stop signals the run loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning reports whether the run loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.ticker)
	defer ticker.Stop()

	s.checkAndExecute(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndExecute(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// checkAndExecute runs every job whose next fire time has arrived,
// one after another. A job still mid-execution from a prior tick is
// skipped for this tick — the scheduler never runs two jobs, or two
// instances of the same job, concurrently. Fire times that pass while a job
// runs are skipped: each such job's next fire is recomputed from the time
// the running job finished.
func (s *Scheduler) checkAndExecute(ctx context.Context) {
	for _, js := range s.jobs {
		start := s.clock()
		if start.Before(js.nextFire) {
			continue
		}
		s.executeJob(ctx, js)
		done := s.clock()
		for _, other := range s.jobs {
			if other == js || (start.Before(other.nextFire) && !done.Before(other.nextFire)) {
				other.nextFire = other.job.Next(done)
			}
		}
	}
}

func (s *Scheduler) executeJob(ctx context.Context, js *jobState) {
	logging.Ctx(ctx).Info().Str("job", js.job.Name).Msg("scheduled job starting")
	if err := js.job.Run(ctx); err != nil {
		logging.Ctx(ctx).Error().Str("job", js.job.Name).Err(err).Msg("scheduled job failed")
		return
	}
	logging.Ctx(ctx).Info().Str("job", js.job.Name).Msg("scheduled job completed")
}

// HourlyInterval computes a Next function firing every hour on the hour,
// in model.OperationalLocation.
func HourlyInterval() func(after time.Time) time.Time {
	return func(after time.Time) time.Time {
		t := after.In(model.OperationalLocation)
		next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, model.OperationalLocation).Add(time.Hour)
		return next
	}
}

// DailyMidnightInterval computes a Next function firing once per day at
// 00:00 in model.OperationalLocation, for the optional T-1 backfill run.
func DailyMidnightInterval() func(after time.Time) time.Time {
	return func(after time.Time) time.Time {
		t := after.In(model.OperationalLocation)
		next := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, model.OperationalLocation).AddDate(0, 0, 1)
		return next
	}
}

// CronInterval adapts a parsed CronExpression into a Next function,
// evaluated in model.OperationalLocation.
func CronInterval(expr *CronExpression) func(after time.Time) time.Time {
	return func(after time.Time) time.Time {
		return expr.NextRun(after, model.OperationalLocation)
	}
}
