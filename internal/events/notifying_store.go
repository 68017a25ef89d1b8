package events

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/store"
)

// NotifyingJobStore decorates a JobStore so that writes which make a job
// eligible for worker pickup also announce it: job creation, a fired retry,
// and a note regeneration request. Emission failures are logged, never
// returned; the periodic sweeps will find the job regardless.
type NotifyingJobStore struct {
	store.JobStore
	emitter EventEmitter
	logger  *slog.Logger
}

// NewNotifyingJobStore wraps the given store with event emission.
func NewNotifyingJobStore(inner store.JobStore, emitter EventEmitter, logger *slog.Logger) *NotifyingJobStore {
	return &NotifyingJobStore{
		JobStore: inner,
		emitter:  emitter,
		logger:   logger.With("component", "notifying_job_store"),
	}
}

// Create saves the job and announces it as ready for processing.
func (s *NotifyingJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := s.JobStore.Create(ctx, job); err != nil {
		return err
	}
	s.emit(ctx, job.ID, domain.JobStatusUploaded)
	return nil
}

// ReleaseForRetry fires the retry and, if the release won, announces the
// job as ready for a fresh claim.
func (s *NotifyingJobStore) ReleaseForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	released, err := s.JobStore.ReleaseForRetry(ctx, id)
	if err != nil || !released {
		return released, err
	}
	s.emit(ctx, id, domain.JobStatusUploaded)
	return true, nil
}

// RequestNoteRegeneration re-enters note generation and, if granted,
// announces the job.
func (s *NotifyingJobStore) RequestNoteRegeneration(ctx context.Context, id uuid.UUID) (bool, error) {
	granted, err := s.JobStore.RequestNoteRegeneration(ctx, id)
	if err != nil || !granted {
		return granted, err
	}
	s.emit(ctx, id, domain.JobStatusGeneratingNote)
	return true, nil
}

func (s *NotifyingJobStore) emit(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) {
	if err := s.emitter.EmitEvent(ctx, NewJobStatusEvent(jobID, status)); err != nil {
		s.logger.Warn("failed to emit job status event",
			"job_id", jobID,
			"status", status,
			"error", err)
	}
}
