/*
Package scheduler runs recurring-transfer jobs on robfig/cron.

PURPOSE:
  Implements wallet.Scheduler. Each job is keyed by its wallet job id
  ("recurring_transaction_<id>") and fires its JobFunc with the payload it
  was registered with. Nothing is captured from the caller beyond that
  payload, so the same registration can be rebuilt after a restart.

TRIGGERS:
  Every:  fixed period anchored at the job start (start, start+p, ...)
  Spec:   five-field cron expression, never earlier than the job start

FAILURE CONTAINMENT:
  The cron chain wraps every job in cron.Recover, so a panicking job is
  logged and the scheduler keeps running every other job.

USAGE:
  s := scheduler.New(logger, time.UTC)
  s.Start()
  defer s.Stop()
*/
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/warp/virtual-wallet/wallet"
)

// Cron manages the recurring jobs.
type Cron struct {
	cron    *cron.Cron
	logger  *slog.Logger
	loc     *time.Location
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler evaluating calendar triggers in loc.
func New(logger *slog.Logger, loc *time.Location) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	return &Cron{
		cron:    c,
		logger:  logger.With("component", "scheduler"),
		loc:     loc,
		entries: make(map[string]cron.EntryID),
	}
}

// Start starts the cron loop in its own goroutine.
func (s *Cron) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.Len())
}

// Stop stops the loop. The returned context is done once running jobs finish.
func (s *Cron) Stop() context.Context {
	return s.cron.Stop()
}

// AddJob registers job, replacing any job with the same id.
func (s *Cron) AddJob(run wallet.JobFunc, job wallet.Job) error {
	schedule, err := ScheduleFor(job.Trigger, job.Start)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}

	payload := job.Payload
	body := cron.FuncJob(func() {
		run(context.Background(), payload)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[job.ID]; ok {
		s.cron.Remove(old)
		s.logger.Info("replacing scheduled job", "job_id", job.ID)
	}
	s.entries[job.ID] = s.cron.Schedule(schedule, body)

	s.logger.Info("scheduled job", "job_id", job.ID, "trigger", job.Trigger.String(), "start", job.Start)
	return nil
}

// RemoveJob unregisters a job. Unknown ids fail with wallet.ErrJobNotFound.
func (s *Cron) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, wallet.ErrJobNotFound)
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)

	s.logger.Info("removed job", "job_id", id)
	return nil
}

// NextRunTime reports when a job fires next.
func (s *Cron) NextRunTime(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	if entry.Next.IsZero() {
		// not started yet; cron fills Next on Start
		return entry.Schedule.Next(time.Now().In(s.loc)), true
	}
	return entry.Next, true
}

// Len is the number of registered jobs.
func (s *Cron) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// =============================================================================
// SCHEDULES
// =============================================================================

// ScheduleFor builds the cron.Schedule of a trigger anchored at start.
func ScheduleFor(trigger wallet.Trigger, start time.Time) (cron.Schedule, error) {
	switch {
	case trigger.Spec != "":
		spec, err := cron.ParseStandard(trigger.Spec)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", trigger.Spec, err)
		}
		return startAt{start: start, next: spec}, nil
	case trigger.Every > 0:
		return every{start: start, period: trigger.Every}, nil
	}
	return nil, fmt.Errorf("empty trigger")
}

// every fires at start + k*period for the smallest k that is after t.
type every struct {
	start  time.Time
	period time.Duration
}

func (e every) Next(t time.Time) time.Time {
	if t.Before(e.start) {
		return e.start
	}
	k := t.Sub(e.start)/e.period + 1
	return e.start.Add(k * e.period)
}

// startAt holds back a schedule until start; start itself may fire.
type startAt struct {
	start time.Time
	next  cron.Schedule
}

func (s startAt) Next(t time.Time) time.Time {
	if t.Before(s.start) {
		t = s.start.Add(-time.Nanosecond)
	}
	return s.next.Next(t)
}
