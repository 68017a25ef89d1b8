package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/platform/logger"
	"github.com/lectio/lectio-api/internal/store"
)

// PostgresJobStore implements the store.JobStore interface
// using a PostgreSQL database as the storage backend.
type PostgresJobStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresJobStore creates a new PostgreSQL implementation of the JobStore interface.
// It accepts a database connection that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresJobStore(db store.DBTX, logger *slog.Logger) *PostgresJobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresJobStore{
		db:     db,
		logger: logger.With(slog.String("component", "job_store")),
	}
}

// Ensure PostgresJobStore implements store.JobStore interface
var _ store.JobStore = (*PostgresJobStore)(nil)

const jobColumns = `id, status, worker_status, worker_id, audio_path,
	duration_seconds, approx_size_bytes, progress, transcript_id, note_id,
	note_status, can_retry, note_can_retry, retry_count, max_retries,
	retry_scheduled_at, last_retry_at, error_code, error_message,
	note_error_code, note_error_message,
	worker_heartbeat_at, created_at, updated_at, completed_at`

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.WorkerStatus,
		&job.WorkerID,
		&job.AudioPath,
		&job.DurationSeconds,
		&job.ApproxSizeBytes,
		&job.Progress,
		&job.TranscriptID,
		&job.NoteID,
		&job.NoteStatus,
		&job.CanRetry,
		&job.NoteCanRetry,
		&job.RetryCount,
		&job.MaxRetries,
		&job.RetryScheduledAt,
		&job.LastRetryAt,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.NoteErrorCode,
		&job.NoteErrorMessage,
		&job.WorkerHeartbeatAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Create implements store.JobStore.Create.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := job.Validate(); err != nil {
		log.Warn("job validation failed during create",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (id, status, worker_status, audio_path, duration_seconds,
			approx_size_bytes, progress, note_status, can_retry, note_can_retry,
			retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.WorkerStatus,
		job.AudioPath,
		job.DurationSeconds,
		job.ApproxSizeBytes,
		job.Progress,
		job.NoteStatus,
		job.CanRetry,
		job.NoteCanRetry,
		job.RetryCount,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create job",
			slog.String("error", err.Error()),
			slog.String("job_id", job.ID.String()))
		return mapError(err, store.ErrJobNotFound)
	}
	return nil
}

// GetByID implements store.JobStore.GetByID.
func (s *PostgresJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(err, store.ErrJobNotFound)
	}
	return job, nil
}

// List implements store.JobStore.List.
func (s *PostgresJobStore) List(ctx context.Context, limit, offset int) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return s.queryJobs(ctx, query, limit, offset)
}

// ListByStatus implements store.JobStore.ListByStatus.
func (s *PostgresJobStore) ListByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	return s.queryJobs(ctx, query, status, limit)
}

// Claim implements store.JobStore.Claim. The WHERE clause is the whole
// concurrency story: only one worker's UPDATE finds the row still claimable.
func (s *PostgresJobStore) Claim(ctx context.Context, id, workerID uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, worker_status = $3, worker_id = $4,
			progress = GREATEST(progress, 5),
			worker_heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1
			AND status = $5
			AND worker_status NOT IN ($6, $7)
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		domain.JobStatusProcessing,
		domain.WorkerStatusRunning,
		workerID,
		domain.JobStatusUploaded,
		domain.WorkerStatusRunning,
		domain.WorkerStatusFinished,
	)
	if err != nil {
		return false, mapError(err, store.ErrJobNotFound)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpdateProgress implements store.JobStore.UpdateProgress.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE jobs
		SET progress = GREATEST(progress, $2),
			worker_heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id, progress)
}

// SetTranscribed implements store.JobStore.SetTranscribed.
func (s *PostgresJobStore) SetTranscribed(ctx context.Context, id, transcriptID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $2, note_status = $3, transcript_id = $4,
			progress = GREATEST(progress, 85),
			worker_heartbeat_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id,
		domain.JobStatusGeneratingNote, domain.NoteStatusProcessing, transcriptID)
}

// Complete implements store.JobStore.Complete.
func (s *PostgresJobStore) Complete(ctx context.Context, id, noteID uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = $2, note_status = $3, worker_status = $4, note_id = $5,
			progress = 100, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id,
		domain.JobStatusCompleted, domain.NoteStatusReady, domain.WorkerStatusFinished, noteID)
}

// MarkFailed implements store.JobStore.MarkFailed.
func (s *PostgresJobStore) MarkFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string, canRetry bool) error {
	query := `
		UPDATE jobs
		SET status = $2, worker_status = $3, error_code = $4,
			error_message = $5, can_retry = $6, updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id,
		domain.JobStatusError, domain.WorkerStatusFailed, string(code), message, canRetry)
}

// MarkNoteFailed implements store.JobStore.MarkNoteFailed.
func (s *PostgresJobStore) MarkNoteFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string) error {
	query := `
		UPDATE jobs
		SET status = $2, note_status = $3, worker_status = $4,
			note_can_retry = TRUE, note_error_code = $5, note_error_message = $6,
			progress = 100, completed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id,
		domain.JobStatusCompleted, domain.NoteStatusError, domain.WorkerStatusNoteFailed,
		string(code), message)
}

// RequestNoteRegeneration implements store.JobStore.RequestNoteRegeneration.
func (s *PostgresJobStore) RequestNoteRegeneration(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, note_status = $3, note_can_retry = FALSE,
			worker_status = $4, note_error_code = '', note_error_message = '',
			updated_at = NOW()
		WHERE id = $1
			AND status = $5
			AND note_status = $6
			AND note_can_retry = TRUE
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		domain.JobStatusGeneratingNote,
		domain.NoteStatusProcessing,
		domain.WorkerStatusNone,
		domain.JobStatusCompleted,
		domain.NoteStatusError,
	)
	if err != nil {
		return false, mapError(err, store.ErrJobNotFound)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ListAwaitingRetrySchedule implements store.JobStore.ListAwaitingRetrySchedule.
func (s *PostgresJobStore) ListAwaitingRetrySchedule(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
			AND can_retry = TRUE
			AND retry_scheduled_at IS NULL
			AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $2
	`
	return s.queryJobs(ctx, query, domain.JobStatusError, limit)
}

// ListRetryDue implements store.JobStore.ListRetryDue.
func (s *PostgresJobStore) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
			AND retry_scheduled_at IS NOT NULL
			AND retry_scheduled_at <= $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	return s.queryJobs(ctx, query, domain.JobStatusError, now, limit)
}

// ScheduleRetry implements store.JobStore.ScheduleRetry.
func (s *PostgresJobStore) ScheduleRetry(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE jobs
		SET retry_count = retry_count + 1, last_retry_at = NOW(),
			retry_scheduled_at = $2, updated_at = NOW()
		WHERE id = $1
	`
	return s.execOnJob(ctx, query, id, at)
}

// ReleaseForRetry implements store.JobStore.ReleaseForRetry. Clearing
// worker_status here matters: a leftover failed marker would trip the claim
// guard and the retried job would never reprocess.
func (s *PostgresJobStore) ReleaseForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, worker_status = $3, worker_id = NULL,
			retry_scheduled_at = NULL, error_code = '', error_message = '',
			progress = 0, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	result, err := s.db.ExecContext(ctx, query,
		id,
		domain.JobStatusUploaded,
		domain.WorkerStatusNone,
		domain.JobStatusError,
	)
	if err != nil {
		return false, mapError(err, store.ErrJobNotFound)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ResetStuck implements store.JobStore.ResetStuck. Stale processing jobs go
// back to uploaded for a full rerun. Stale generating_note jobs keep their
// status: the transcript already exists, so clearing the worker guard is
// enough for the note-only path to resume them.
func (s *PostgresJobStore) ResetStuck(ctx context.Context, staleBefore time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = CASE WHEN status = $2 THEN $3 ELSE status END,
			worker_status = $4, worker_id = NULL, updated_at = NOW()
		WHERE (status = $2 OR (status = $5 AND worker_status = $6))
			AND (worker_heartbeat_at IS NULL OR worker_heartbeat_at < $1)
	`
	result, err := s.db.ExecContext(ctx, query,
		staleBefore,
		domain.JobStatusProcessing,
		domain.JobStatusUploaded,
		domain.WorkerStatusNone,
		domain.JobStatusGeneratingNote,
		domain.WorkerStatusRunning,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListFinishedBefore implements store.JobStore.ListFinishedBefore.
func (s *PostgresJobStore) ListFinishedBefore(ctx context.Context, status domain.JobStatus, cutoff time.Time, limit int) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	return s.queryJobs(ctx, query, status, cutoff, limit)
}

// Delete implements store.JobStore.Delete.
func (s *PostgresJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return mapError(err, store.ErrJobNotFound)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

// execOnJob runs an update that must touch exactly one existing job.
func (s *PostgresJobStore) execOnJob(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		log.Error("job update failed",
			slog.String("error", err.Error()),
			slog.String("job_id", id.String()))
		return mapError(err, store.ErrJobNotFound)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
