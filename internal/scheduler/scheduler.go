// Package scheduler fires workflow runs on a cron or fixed-interval
// schedule, a second way (besides an inbound synthesized entry trigger) a
// WorkflowEngine run gets started.
//
// Grounded on the teacher's internal/application/trigger.CronScheduler: one
// robfig/cron/v3 instance with second precision, one cron.EntryID tracked
// per scheduled trigger so it can be added/removed/updated at runtime, and
// cron.ConstantDelaySchedule used for plain interval triggers instead of a
// cron expression.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// RunFunc starts one workflow run for the given trigger's WorkflowID/Input.
// Supplied by the caller so this package stays decoupled from how a run is
// actually wired (definition source, registry, evaluator, config) -- the
// same dependency-inversion shape internal/nodes uses for SubRunner/
// WorkflowLoader.
type RunFunc func(ctx context.Context, workflowID string, input map[string]interface{}) error

// Trigger is one scheduled entry: either a cron expression (Schedule) or a
// fixed interval (Interval), not both.
type Trigger struct {
	ID         string
	WorkflowID string
	Schedule   string
	Interval   time.Duration
	Timezone   string
	Input      map[string]interface{}
}

// Scheduler manages the active set of scheduled triggers.
type Scheduler struct {
	run RunFunc
	log *logger.Logger

	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.RWMutex
}

// New builds a Scheduler that invokes run when a trigger fires. The
// underlying cron instance runs with second-level precision in UTC, as the
// teacher's does.
func New(run RunFunc, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		run:     run,
		log:     log,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins firing triggers already added via Add, plus any added later.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight job to finish, then halts the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Add schedules t, replacing any existing entry with the same ID.
func (s *Scheduler) Add(t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.entries[t.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, t.ID)
	}

	schedule, err := parseSchedule(t)
	if err != nil {
		return fmt.Errorf("scheduling trigger %q: %w", t.ID, err)
	}

	entryID := s.cron.Schedule(schedule, s.job(t))
	s.entries[t.ID] = entryID
	return nil
}

// Remove un-schedules a trigger by id. A no-op if it was never added.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}

// NextRun reports the next scheduled fire time for id, if it is active.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entryID, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

func (s *Scheduler) job(t Trigger) cron.Job {
	return cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := s.run(ctx, t.WorkflowID, t.Input); err != nil {
			s.log.Error("scheduled workflow run failed", "trigger_id", t.ID, "workflow_id", t.WorkflowID, "error", err)
		}
	})
}

func parseSchedule(t Trigger) (cron.Schedule, error) {
	if t.Schedule != "" {
		location := time.UTC
		if t.Timezone != "" {
			loc, err := time.LoadLocation(t.Timezone)
			if err != nil {
				return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
			}
			location = loc
		}
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		schedule, err := parser.Parse(t.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", t.Schedule, err)
		}
		return inLocation{schedule, location}, nil
	}
	if t.Interval > 0 {
		return cron.ConstantDelaySchedule{Delay: t.Interval}, nil
	}
	return nil, fmt.Errorf("trigger has neither a cron Schedule nor a positive Interval")
}

// inLocation evaluates a parsed cron.Schedule against a specific timezone
// regardless of the location the owning *cron.Cron was built with, so a
// per-trigger Timezone overrides the scheduler-wide default.
type inLocation struct {
	schedule cron.Schedule
	location *time.Location
}

func (s inLocation) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}
