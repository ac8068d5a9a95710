package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/rolesweep/pkg/log"
	"github.com/cuemby/rolesweep/pkg/metrics"
	"github.com/cuemby/rolesweep/pkg/reconciler"
	"github.com/cuemby/rolesweep/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownSchedule is returned by RunNow for a name that was never added
	ErrUnknownSchedule = errors.New("scheduler: unknown schedule")
	// ErrBusy is returned when a run with an overlapping filter is already in flight
	ErrBusy = errors.New("scheduler: run already in progress")
)

// Runner performs one reconciliation pass
type Runner interface {
	Run(ctx context.Context, tracker *reconciler.StatsTracker, filter types.Filter) (int, error)
}

// Schedule binds a cron expression to a grant filter
type Schedule struct {
	Name   string
	Spec   string
	Filter types.Filter
}

// Scheduler triggers reconciliation runs on cron schedules. Runs whose
// filters could select the same grant never execute at the same time; a
// tick that finds a conflicting run in flight is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	tracker *reconciler.StatsTracker
	logger  zerolog.Logger

	mu        sync.Mutex
	schedules map[string]Schedule
	running   map[string]types.Filter

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. All runs share tracker.
func NewScheduler(runner Runner, tracker *reconciler.StatsTracker) *Scheduler {
	logger := log.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		runner:    runner,
		tracker:   tracker,
		logger:    logger,
		schedules: make(map[string]Schedule),
		running:   make(map[string]types.Filter),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Add registers a schedule. Names must be unique.
func (s *Scheduler) Add(sched Schedule) error {
	if sched.Name == "" {
		return errors.New("scheduler: schedule name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[sched.Name]; ok {
		return fmt.Errorf("scheduler: duplicate schedule %q", sched.Name)
	}
	if _, err := s.cron.AddFunc(sched.Spec, func() { s.tick(sched) }); err != nil {
		return fmt.Errorf("scheduler: schedule %q: %w", sched.Name, err)
	}
	s.schedules[sched.Name] = sched
	s.logger.Info().
		Str("schedule", sched.Name).
		Str("cron", sched.Spec).
		Str("filter", sched.Filter.Key()).
		Msg("Added reconciliation schedule")
	return nil
}

// Start begins firing schedules
func (s *Scheduler) Start() {
	s.cron.Start()
	metrics.RegisterComponent(metrics.ComponentScheduler, true, "")
	s.logger.Info().Int("schedules", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop prevents new runs and waits for in-flight runs until ctx expires, at
// which point in-flight runs are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancel()
	metrics.UpdateComponent(metrics.ComponentScheduler, false, "stopped")

	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// RunNow runs the named schedule immediately on the caller's goroutine
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	sched, ok := s.schedules[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
	}
	return s.run(ctx, sched)
}

func (s *Scheduler) tick(sched Schedule) {
	removed, err := s.run(s.ctx, sched)
	switch {
	case errors.Is(err, ErrBusy):
		s.logger.Debug().Err(err).Str("schedule", sched.Name).Msg("Conflicting run still in progress, skipping")
	case err != nil:
		s.logger.Error().Err(err).Str("schedule", sched.Name).Msg("Scheduled reconciliation failed")
	case removed > 0:
		s.logger.Debug().Str("schedule", sched.Name).Int("removed", removed).Msg("Scheduled reconciliation done")
	}
}

func (s *Scheduler) run(ctx context.Context, sched Schedule) (int, error) {
	key := sched.Filter.Key()

	s.mu.Lock()
	for running, f := range s.running {
		if f.Overlaps(sched.Filter) {
			s.mu.Unlock()
			return 0, fmt.Errorf("%w: %s conflicts with %s", ErrBusy, key, running)
		}
	}
	s.running[key] = sched.Filter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, key)
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx, s.tracker, sched.Filter)
}

// cronLogger routes cron's internal logging through zerolog
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
