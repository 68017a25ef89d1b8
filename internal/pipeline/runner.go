package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/store"
)

// RunnerConfig holds configuration for the pipeline runner.
type RunnerConfig struct {
	// WorkerCount determines how many jobs are processed concurrently.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory job queue.
	QueueSize int

	// StuckJobAge defines how long a processing job may go without a
	// heartbeat before it is considered stuck and released.
	StuckJobAge time.Duration

	// StuckCheckInterval defines how often to check for stuck jobs.
	// If zero, defaults to 5 minutes.
	StuckCheckInterval time.Duration

	// RecoveryBatchSize caps how many backlog jobs each recovery scan
	// requeues at once.
	RecoveryBatchSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:        2,
		QueueSize:          100,
		StuckJobAge:        30 * time.Minute,
		StuckCheckInterval: 5 * time.Minute,
		RecoveryBatchSize:  50,
	}
}

// Runner feeds job IDs to a pool of pipeline workers. Submissions arrive
// from the API and the retry scheduler through events; periodic scans pick
// up anything the events missed.
type Runner struct {
	jobs         store.JobStore
	orchestrator *Orchestrator
	jobChan      chan uuid.UUID
	ctx          context.Context
	cancelFunc   context.CancelFunc
	wg           sync.WaitGroup
	config       RunnerConfig
	logger       *slog.Logger
}

// NewRunner creates a Runner around the given orchestrator.
func NewRunner(jobs store.JobStore, orchestrator *Orchestrator, config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.StuckCheckInterval == 0 {
		config.StuckCheckInterval = 5 * time.Minute
	}
	if config.RecoveryBatchSize <= 0 {
		config.RecoveryBatchSize = 50
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		jobs:         jobs,
		orchestrator: orchestrator,
		jobChan:      make(chan uuid.UUID, config.QueueSize),
		ctx:          ctx,
		cancelFunc:   cancel,
		config:       config,
		logger:       logger.With("component", "pipeline_runner"),
	}
}

// Submit adds a job to the queue. Returns an error when the queue is full;
// the periodic recovery scan will pick the job up later in that case.
func (r *Runner) Submit(_ context.Context, jobID uuid.UUID) error {
	select {
	case r.jobChan <- jobID:
		return nil
	default:
		return fmt.Errorf("job queue is full, job %s deferred to recovery scan", jobID)
	}
}

// Start recovers the backlog and launches the worker pool.
func (r *Runner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckJobMonitor()

	return nil
}

// Stop gracefully shuts down the runner, waiting for in-flight jobs.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.jobChan)
}

// Recover requeues work left over from previous runs: stuck processing jobs
// are released first, then the uploaded and note-generation backlogs are
// enqueued.
func (r *Runner) Recover() error {
	ctx := context.Background()

	released, err := r.jobs.ResetStuck(ctx, time.Now().Add(-r.config.StuckJobAge))
	if err != nil {
		return fmt.Errorf("failed to reset stuck jobs: %w", err)
	}

	requeued := 0
	for _, status := range []domain.JobStatus{domain.JobStatusUploaded, domain.JobStatusGeneratingNote} {
		backlog, err := r.jobs.ListByStatus(ctx, status, r.config.RecoveryBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list %s jobs: %w", status, err)
		}
		for _, job := range backlog {
			select {
			case r.jobChan <- job.ID:
				requeued++
			default:
				r.logger.Warn("failed to requeue job, queue is full", "job_id", job.ID)
			}
		}
	}

	r.logger.Info("recovered unfinished jobs",
		"released_stuck", released,
		"requeued", requeued)
	return nil
}

// worker processes jobs from the queue under a stable worker identity.
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	workerID := uuid.New()
	logger := r.logger.With("worker", id, "worker_id", workerID)
	logger.Debug("starting worker")

	for {
		select {
		case <-r.ctx.Done():
			logger.Debug("stopping worker")
			return

		case jobID, ok := <-r.jobChan:
			if !ok {
				logger.Debug("job channel closed, stopping worker")
				return
			}
			if err := r.orchestrator.Process(r.ctx, jobID, workerID); err != nil {
				logger.Error("job processing failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// stuckJobMonitor periodically releases processing jobs whose heartbeat
// went stale and requeues the uploaded backlog.
func (r *Runner) stuckJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			released, err := r.jobs.ResetStuck(ctx, time.Now().Add(-r.config.StuckJobAge))
			if err != nil {
				r.logger.Error("failed to check for stuck jobs", "error", err)
				continue
			}
			if released > 0 {
				r.logger.Info("released stuck jobs", "count", released)
			}

			backlog, err := r.jobs.ListByStatus(ctx, domain.JobStatusUploaded, r.config.RecoveryBatchSize)
			if err != nil {
				r.logger.Error("failed to scan uploaded backlog", "error", err)
				continue
			}
			for _, job := range backlog {
				select {
				case r.jobChan <- job.ID:
				default:
					// Queue full; the next scan will retry.
				}
			}
		}
	}
}
