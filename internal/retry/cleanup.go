package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/store"
)

// CleanerConfig holds configuration for the cleanup sweep.
type CleanerConfig struct {
	// Period is how often the sweep runs.
	Period time.Duration

	// CompletedTTL is how long completed jobs and their artifacts are kept.
	CompletedTTL time.Duration

	// FailedTTL is how long terminally failed jobs are kept.
	FailedTTL time.Duration

	// BatchSize caps deletions per status per sweep.
	BatchSize int
}

// Cleaner expires old job records along with their blobs, transcripts, and
// notes. Failed jobs that still have retry budget are left alone: only
// terminal records age out.
type Cleaner struct {
	jobs        store.JobStore
	transcripts store.TranscriptStore
	notes       store.NoteStore
	blobs       blob.Store
	config      CleanerConfig
	logger      *slog.Logger
	now         func() time.Time
	ctx         context.Context
	cancelFunc  context.CancelFunc
	wg          sync.WaitGroup
}

// NewCleaner creates a cleanup sweep.
func NewCleaner(
	jobs store.JobStore,
	transcripts store.TranscriptStore,
	notes store.NoteStore,
	blobs blob.Store,
	config CleanerConfig,
	logger *slog.Logger,
) *Cleaner {
	if config.Period <= 0 {
		config.Period = time.Hour
	}
	if config.CompletedTTL <= 0 {
		config.CompletedTTL = 30 * 24 * time.Hour
	}
	if config.FailedTTL <= 0 {
		config.FailedTTL = 7 * 24 * time.Hour
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Cleaner{
		jobs:        jobs,
		transcripts: transcripts,
		notes:       notes,
		blobs:       blobs,
		config:      config,
		logger:      logger.With("component", "cleanup"),
		now:         time.Now,
		ctx:         ctx,
		cancelFunc:  cancel,
	}
}

// Start launches the periodic sweep loop.
func (c *Cleaner) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.config.Period)
		defer ticker.Stop()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-ticker.C:
				if err := c.Sweep(c.ctx); err != nil {
					c.logger.Error("cleanup sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop shuts the sweep loop down.
func (c *Cleaner) Stop() {
	c.cancelFunc()
	c.wg.Wait()
}

// Sweep expires one batch of completed and failed records.
func (c *Cleaner) Sweep(ctx context.Context) error {
	now := c.now()

	if err := c.expire(ctx, domain.JobStatusCompleted, now.Add(-c.config.CompletedTTL)); err != nil {
		return err
	}
	return c.expire(ctx, domain.JobStatusError, now.Add(-c.config.FailedTTL))
}

func (c *Cleaner) expire(ctx context.Context, status domain.JobStatus, cutoff time.Time) error {
	jobs, err := c.jobs.ListFinishedBefore(ctx, status, cutoff, c.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list expired %s jobs: %w", status, err)
	}

	for _, job := range jobs {
		// A failed job with retry budget left is not terminal yet.
		if status == domain.JobStatusError && !job.Terminal() && job.RetryCount < job.MaxRetries {
			continue
		}

		logger := c.logger.With("job_id", job.ID, "status", status)

		if job.AudioPath != "" {
			if err := c.blobs.Delete(ctx, job.AudioPath); err != nil {
				logger.Warn("failed to delete audio blob, will retry next sweep", "error", err)
				continue
			}
		}
		if job.NoteID != nil {
			if err := c.notes.Delete(ctx, *job.NoteID); err != nil {
				logger.Warn("failed to delete study note", "error", err)
				continue
			}
		}
		if job.TranscriptID != nil {
			if err := c.transcripts.Delete(ctx, *job.TranscriptID); err != nil {
				logger.Warn("failed to delete transcript", "error", err)
				continue
			}
		}
		if err := c.jobs.Delete(ctx, job.ID); err != nil && !store.IsNotFoundError(err) {
			logger.Warn("failed to delete job record", "error", err)
			continue
		}

		logger.Info("expired job record")
	}
	return nil
}
