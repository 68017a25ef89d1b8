// Package retry gives failed jobs another chance on a delay ladder, and
// expires old records. Both run as periodic sweeps so a crashed process
// picks up exactly where it left off: all state lives on the job rows.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lectio/lectio-api/internal/store"
)

// DefaultLadder is the escalating delay before each successive retry.
var DefaultLadder = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	4 * time.Hour,
	24 * time.Hour,
}

// SchedulerConfig holds configuration for the retry scheduler.
type SchedulerConfig struct {
	// Period is how often the sweep runs.
	Period time.Duration

	// BatchSize caps how many jobs each phase handles per sweep.
	BatchSize int

	// Ladder maps retryCount to the delay before that retry. Counts past
	// the end reuse the last rung.
	Ladder []time.Duration
}

// Scheduler runs the two-phase retry sweep: first book retries for newly
// failed jobs, then fire the retries whose time has come. Splitting the
// phases keeps each write trivial and makes a crash between them harmless.
type Scheduler struct {
	jobs       store.JobStore
	period     time.Duration
	batchSize  int
	ladder     []time.Duration
	logger     *slog.Logger
	now        func() time.Time
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewScheduler creates a retry Scheduler. The job store should be the
// notifying decorator so fired retries reach the pipeline immediately.
func NewScheduler(jobs store.JobStore, config SchedulerConfig, logger *slog.Logger) *Scheduler {
	if config.Period <= 0 {
		config.Period = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if len(config.Ladder) == 0 {
		config.Ladder = DefaultLadder
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		jobs:       jobs,
		period:     config.Period,
		batchSize:  config.BatchSize,
		ladder:     config.Ladder,
		logger:     logger.With("component", "retry_scheduler"),
		now:        time.Now,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the periodic sweep loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.period)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sweep(s.ctx); err != nil {
					s.logger.Error("retry sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop shuts the sweep loop down.
func (s *Scheduler) Stop() {
	s.cancelFunc()
	s.wg.Wait()
}

// Sweep runs both phases once. Exposed for tests and for a manual kick.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if err := s.schedulePhase(ctx); err != nil {
		return err
	}
	return s.firePhase(ctx)
}

// schedulePhase books a future retry for failed jobs that have none yet.
// The retry counter increments here, at booking time, so a job that keeps
// failing walks the ladder exactly once per failure.
func (s *Scheduler) schedulePhase(ctx context.Context) error {
	pending, err := s.jobs.ListAwaitingRetrySchedule(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list jobs awaiting retry schedule: %w", err)
	}

	for _, job := range pending {
		delay := s.delayFor(job.RetryCount)
		at := s.now().Add(delay)

		if err := s.jobs.ScheduleRetry(ctx, job.ID, at); err != nil {
			s.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
			continue
		}

		s.logger.Info("retry scheduled",
			"job_id", job.ID,
			"retry_number", job.RetryCount+1,
			"max_retries", job.MaxRetries,
			"delay", delay,
			"error_code", job.ErrorCode)
	}
	return nil
}

// firePhase releases jobs whose scheduled retry time has passed.
func (s *Scheduler) firePhase(ctx context.Context) error {
	due, err := s.jobs.ListRetryDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due retries: %w", err)
	}

	for _, job := range due {
		released, err := s.jobs.ReleaseForRetry(ctx, job.ID)
		if err != nil {
			s.logger.Error("failed to release job for retry", "job_id", job.ID, "error", err)
			continue
		}
		if !released {
			s.logger.Debug("job left the error state before its retry fired", "job_id", job.ID)
			continue
		}

		s.logger.Info("retry fired", "job_id", job.ID, "retry_number", job.RetryCount)
	}
	return nil
}

func (s *Scheduler) delayFor(retryCount int) time.Duration {
	if retryCount >= len(s.ladder) {
		return s.ladder[len(s.ladder)-1]
	}
	return s.ladder[retryCount]
}
