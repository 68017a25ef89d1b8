package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
)

// JobStore defines the interface for transcription job persistence.
// Version: 1.0
type JobStore interface {
	// Create saves a new job to the store.
	// It handles domain validation internally.
	// Returns validation errors from the domain Job if data is invalid.
	Create(ctx context.Context, job *domain.Job) error

	// GetByID retrieves a job by its unique ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List retrieves jobs ordered by creation time, newest first.
	// Returns an empty slice if no jobs exist in the requested window.
	List(ctx context.Context, limit, offset int) ([]*domain.Job, error)

	// ListByStatus retrieves jobs in the given status, oldest first, so
	// recovery and sweeps drain the backlog in arrival order.
	ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error)

	// Claim atomically transitions a job from uploaded to processing and
	// records the claiming worker. Returns false when the job is not in a
	// claimable state (already running, finished, or terminal), which the
	// caller treats as "someone else has it" rather than an error.
	Claim(ctx context.Context, id, workerID uuid.UUID) (bool, error)

	// UpdateProgress advances the job's progress percentage and refreshes
	// the worker heartbeat. Progress is monotonic: a value lower than the
	// stored one is ignored.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SetTranscribed records the finished transcript and moves the job to
	// generating_note with note generation in flight.
	SetTranscribed(ctx context.Context, id, transcriptID uuid.UUID) error

	// Complete records the generated note and moves the job to its final
	// completed state with full progress.
	Complete(ctx context.Context, id, noteID uuid.UUID) error

	// MarkFailed moves the job to the error state with a classified failure
	// code. canRetry controls whether the retry scheduler will pick it up.
	MarkFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string, canRetry bool) error

	// MarkNoteFailed handles the asymmetric note-generation failure: the
	// transcript survived, so the job completes with noteStatus=error and
	// the note flagged as independently retryable. The failure is recorded
	// in the note-error fields; errorCode and errorMessage stay reserved
	// for jobs whose status is error.
	MarkNoteFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string) error

	// RequestNoteRegeneration re-enters note generation for a completed job
	// whose note previously failed. Returns false when the job is not
	// eligible (note not failed, or regeneration already in flight).
	RequestNoteRegeneration(ctx context.Context, id uuid.UUID) (bool, error)

	// ListAwaitingRetrySchedule returns failed retryable jobs that have no
	// retry scheduled yet and have retry budget remaining.
	ListAwaitingRetrySchedule(ctx context.Context, limit int) ([]*domain.Job, error)

	// ListRetryDue returns failed jobs whose scheduled retry time has passed.
	ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error)

	// ScheduleRetry books a future retry attempt: increments retryCount,
	// stamps lastRetryAt, and records the scheduled fire time.
	ScheduleRetry(ctx context.Context, id uuid.UUID, at time.Time) error

	// ReleaseForRetry fires a scheduled retry: conditionally moves the job
	// from error back to uploaded, clearing the schedule, the stale worker
	// status, and the previous failure so the job reprocesses cleanly.
	// Returns false when the job left the error state in the meantime.
	ReleaseForRetry(ctx context.Context, id uuid.UUID) (bool, error)

	// ResetStuck releases processing jobs whose worker heartbeat went stale
	// before the given time, returning them to uploaded for a fresh claim.
	// Returns the number of jobs released.
	ResetStuck(ctx context.Context, staleBefore time.Time) (int64, error)

	// ListFinishedBefore returns jobs in the given status whose last update
	// precedes the cutoff. Used by the cleanup sweep.
	ListFinishedBefore(ctx context.Context, status domain.JobStatus, cutoff time.Time, limit int) ([]*domain.Job, error)

	// Delete removes a job record. Returns ErrJobNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
