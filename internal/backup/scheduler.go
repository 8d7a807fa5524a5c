package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backup-expiry/internal/logging"

	"github.com/robfig/cron/v3"
)

// RunFunc executes one scheduled run
type RunFunc func(ctx context.Context) error

// Scheduler triggers expiry runs on a cron schedule. A run that is still
// busy when the next one is due causes that one to be skipped.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	timeout  time.Duration
	run      RunFunc
	logger   *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	running bool
}

// NewScheduler creates a scheduler for the standard five field cron spec
func NewScheduler(config ScheduleConfig, run RunFunc, logger *logging.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(config.Cron)
	if err != nil {
		return nil, NewConfigurationError(fmt.Sprintf("invalid cron schedule %q", config.Cron), err)
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))

	return &Scheduler{
		spec:     config.Cron,
		schedule: schedule,
		timeout:  config.RunTimeout,
		run:      run,
		logger:   logger,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}, nil
}

// Start schedules the runs and returns immediately. The scheduler stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.entry = s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		s.runOnce(ctx)
	}))

	s.cron.Start()
	s.running = true

	s.logger.WithFields(map[string]interface{}{
		"schedule": s.spec,
		"next_run": s.nextRunLocked(),
	}).Info("Expiry scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunNow executes one run immediately, outside the schedule
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	runCtx = logging.CreateContextWithRunID(runCtx, NewRunID())

	s.logger.WithContext(runCtx).Info("Starting scheduled expiry run")
	if err := s.run(runCtx); err != nil {
		s.logger.WithContext(runCtx).WithField("error", err.Error()).Error("Scheduled expiry run failed")
	}
}

// Stop stops the scheduler and waits for a running job to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.running = false
	s.logger.Info("Expiry scheduler stopped")
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled run, zero when not running
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRunLocked()
}

func (s *Scheduler) nextRunLocked() time.Time {
	if !s.running {
		return time.Time{}
	}
	return s.schedule.Next(time.Now())
}
