// Package scheduler drives cron evaluation and concurrency gating for
// backup jobs (spec §4.6): one gocron job per entity, singleton mode
// preventing overlapping runs of that entity, keyed on Job UUID. Rather
// than dispatching a job assignment over a network call to a remote agent,
// it invokes runner.Runner in-process directly: this orchestrator has no
// agent tier (spec §1, single node).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skyfay/dbackup/internal/db"
	"github.com/skyfay/dbackup/internal/metrics"
	"github.com/skyfay/dbackup/internal/repositories"
	"github.com/skyfay/dbackup/internal/runner"
)

// DefaultGlobalConcurrency is the default cap on total concurrent executions
// across every job (spec §4.6 "default 4").
const DefaultGlobalConcurrency = 4

// Scheduler owns cron evaluation and concurrency gating. The zero value is
// not usable — create instances with New.
type Scheduler struct {
	cron      gocron.Scheduler
	jobs      repositories.JobRepository
	run       *runner.Runner
	tracker   *runner.Tracker
	logger    *zap.Logger
	global    chan struct{}
	jobLocks  *jobLockSet
	scheduled map[uuid.UUID]struct{}
}

// New creates and configures a new Scheduler. Call Start to begin processing.
// globalConcurrency <= 0 falls back to DefaultGlobalConcurrency. tracker may
// be nil, in which case Progress reports no in-flight run for any job.
func New(
	jobs repositories.JobRepository,
	run *runner.Runner,
	tracker *runner.Tracker,
	globalConcurrency int,
	logger *zap.Logger,
) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	if globalConcurrency <= 0 {
		globalConcurrency = DefaultGlobalConcurrency
	}
	if tracker == nil {
		tracker = runner.NewTracker()
	}

	return &Scheduler{
		cron:      s,
		jobs:      jobs,
		run:       run,
		tracker:   tracker,
		logger:    logger.Named("scheduler"),
		global:    make(chan struct{}, globalConcurrency),
		jobLocks:  newJobLockSet(),
		scheduled: make(map[uuid.UUID]struct{}),
	}, nil
}

// Progress reports the live percent-complete and stage for jobID's current
// run, if one is in flight. Used by the Job Trigger API's execution poll
// endpoint (spec §6) while an execution is still "running" and has not yet
// written its final status to the database.
func (s *Scheduler) Progress(jobID uuid.UUID) (percent float64, stage string, ok bool) {
	pct, st, ok := s.tracker.Snapshot(jobID)
	return pct, string(st), ok
}

// Start loads all enabled jobs from the database, schedules them, and starts
// the underlying gocron scheduler. Call once at startup.
func (s *Scheduler) Start(ctx context.Context) error {
	enabled, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load enabled jobs: %w", err)
	}

	for i := range enabled {
		if err := s.addJob(&enabled[i]); err != nil {
			s.logger.Error("failed to schedule job",
				zap.String("job_id", enabled[i].ID.String()),
				zap.String("job_name", enabled[i].Name),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("scheduler started", zap.Int("jobs_scheduled", len(enabled)))
	s.cron.Start()
	return nil
}

// Stop gracefully shuts down the underlying gocron scheduler, waiting for any
// currently running job functions to complete before returning.
func (s *Scheduler) Stop() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown error: %w", err)
	}
	s.logger.Info("scheduler stopped")
	return nil
}

// Reload replaces the cron table (spec §4.6 "safe to call while runs are in
// flight"): every currently scheduled tag is removed and every enabled job
// is rescheduled from its current persisted definition. In-flight runs
// continue on their own goroutine, unaffected by RemoveByTags, since gocron
// only cancels future ticks, not running tasks.
func (s *Scheduler) Reload(ctx context.Context) error {
	for id := range s.scheduled {
		s.cron.RemoveByTags(id.String())
	}
	s.scheduled = make(map[uuid.UUID]struct{})

	enabled, err := s.jobs.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load enabled jobs: %w", err)
	}
	for i := range enabled {
		if err := s.addJob(&enabled[i]); err != nil {
			s.logger.Error("failed to reschedule job",
				zap.String("job_id", enabled[i].ID.String()),
				zap.Error(err),
			)
		}
	}
	s.logger.Info("scheduler reloaded", zap.Int("jobs_scheduled", len(enabled)))
	return nil
}

// AddJob schedules a newly created or re-enabled job. Safe to call while the
// scheduler is running.
func (s *Scheduler) AddJob(job *db.Job) error {
	if err := s.addJob(job); err != nil {
		return fmt.Errorf("failed to add job %s to scheduler: %w", job.ID, err)
	}
	s.logger.Info("job added to scheduler",
		zap.String("job_id", job.ID.String()),
		zap.String("job_name", job.Name),
		zap.String("schedule", job.Schedule),
	)
	return nil
}

// RemoveJob removes a job from the scheduler. Safe to call while the
// scheduler is running.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.cron.RemoveByTags(jobID.String())
	delete(s.scheduled, jobID)
	s.logger.Info("job removed from scheduler", zap.String("job_id", jobID.String()))
	return nil
}

// UpdateJob reschedules a job after its cron expression or enabled state has
// changed.
func (s *Scheduler) UpdateJob(job *db.Job) error {
	s.cron.RemoveByTags(job.ID.String())
	delete(s.scheduled, job.ID)
	if !job.Enabled {
		s.logger.Info("job disabled, removed from scheduler", zap.String("job_id", job.ID.String()))
		return nil
	}
	return s.AddJob(job)
}

// TriggerNow enqueues a synthetic execution, respecting the same per-job
// mutex and global slot as a cron tick (spec §4.6 "runNow"). A trigger
// rejected by the per-job mutex returns an error at once. Otherwise it waits
// up to two seconds for the run to finish and returns its execution row; a
// run still going (or still waiting for a global slot) after that yields a
// nil execution, and its execution ID is not reported to the caller.
func (s *Scheduler) TriggerNow(ctx context.Context, jobID uuid.UUID) (*db.Execution, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job not found: %w", err)
	}
	if !s.jobLocks.tryLock(jobID) {
		return nil, fmt.Errorf("job %s already has a run in progress", jobID)
	}

	execCh := make(chan *db.Execution, 1)
	go func() {
		defer s.jobLocks.unlock(jobID)
		s.global <- struct{}{}
		defer func() { <-s.global }()

		runCtx, cancel := s.deadlineContext(job)
		defer cancel()
		defer s.tracker.Clear(job.ID)

		exec, err := s.run.Run(runCtx, job.ID, "manual", s.tracker.Track(job.ID))
		if err != nil {
			s.logger.Error("manual run failed to start", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
		execCh <- exec
	}()

	select {
	case exec := <-execCh:
		return exec, nil
	case <-time.After(2 * time.Second):
		// The run is still going; its execution ID is not available here,
		// so the API layer hands out the job ID as a provisional handle.
		return nil, nil
	}
}

// addJob registers a single job as a gocron job with singleton mode, keyed
// by job UUID.
func (s *Scheduler) addJob(job *db.Job) error {
	_, err := s.cron.NewJob(
		gocron.CronJob(job.Schedule, false),
		gocron.NewTask(func(jobID uuid.UUID) {
			s.tick(jobID)
		}, job.ID),
		gocron.WithTags(job.ID.String()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("gocron.NewJob failed for job %s (schedule: %q): %w", job.ID, job.Schedule, err)
	}
	s.scheduled[job.ID] = struct{}{}
	return nil
}

// tick is the core execution unit called by gocron on each fire. It acquires
// the per-job mutex with zero wait (skipping the tick if a run is already in
// flight) and the global concurrency slot, then invokes the Runner.
func (s *Scheduler) tick(jobID uuid.UUID) {
	if !s.jobLocks.tryLock(jobID) {
		s.logger.Warn("skipping tick, previous run still in flight", zap.String("job_id", jobID.String()))
		metrics.SchedulerTicksSkipped.WithLabelValues(jobID.String()).Inc()
		return
	}
	defer s.jobLocks.unlock(jobID)

	s.global <- struct{}{}
	defer func() { <-s.global }()

	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to load job at tick time", zap.String("job_id", jobID.String()), zap.Error(err))
		return
	}
	if !job.Enabled {
		return
	}

	runCtx, runCancel := s.deadlineContext(job)
	defer runCancel()
	defer s.tracker.Clear(jobID)

	if _, err := s.run.Run(runCtx, job.ID, "schedule", s.tracker.Track(jobID)); err != nil {
		s.logger.Error("scheduled run failed to start", zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// deadlineContext applies the job's configured deadline (seconds; 0 means no
// deadline) as a context timeout around a single run.
func (s *Scheduler) deadlineContext(job *db.Job) (context.Context, context.CancelFunc) {
	if job.Deadline <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(job.Deadline)*time.Second)
}
