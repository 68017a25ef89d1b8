package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of a transcription job.
type JobStatus string

// Possible job status values
const (
	JobStatusUploaded       JobStatus = "uploaded"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusGeneratingNote JobStatus = "generating_note"
	JobStatusCompleted      JobStatus = "completed"
	JobStatusError          JobStatus = "error"
)

// WorkerStatus is the concurrency guard on a job, tracked independently of
// the job status. An empty value means no worker has touched the job.
type WorkerStatus string

// Possible worker status values
const (
	WorkerStatusNone       WorkerStatus = ""
	WorkerStatusRunning    WorkerStatus = "running"
	WorkerStatusFinished   WorkerStatus = "finished"
	WorkerStatusFailed     WorkerStatus = "failed"
	WorkerStatusNoteFailed WorkerStatus = "note_failed"
)

// NoteStatus represents the state of the study-note stage of a job.
type NoteStatus string

// Possible note status values
const (
	NoteStatusPending    NoteStatus = "pending"
	NoteStatusProcessing NoteStatus = "processing"
	NoteStatusReady      NoteStatus = "ready"
	NoteStatusError      NoteStatus = "error"
)

// DefaultMaxRetries is the number of scheduled retries a job gets before the
// retry scheduler gives up on it permanently.
const DefaultMaxRetries = 5

// Common validation errors for Job
var (
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
	ErrEmptyAudioPath    = errors.New("job audio path cannot be empty")
	ErrInvalidJobStatus  = errors.New("invalid job status")
	ErrInvalidNoteStatus = errors.New("invalid note status")
	ErrInvalidProgress   = errors.New("job progress must be between 0 and 100")
)

// Job tracks one uploaded audio file through the transcription pipeline.
// It is mutated only by the orchestrator, through whole-document updates.
type Job struct {
	ID           uuid.UUID    `json:"id"`
	Status       JobStatus    `json:"status"`
	WorkerStatus WorkerStatus `json:"worker_status,omitempty"`
	WorkerID     *uuid.UUID   `json:"worker_id,omitempty"`

	// AudioPath is the blob-store path of the source audio. Required before
	// the job can leave the uploaded state.
	AudioPath       string  `json:"audio_path"`
	DurationSeconds float64 `json:"duration_seconds"`
	ApproxSizeBytes int64   `json:"approx_size_bytes"`

	// Progress is 0-100 and never decreases within a single run.
	Progress int `json:"progress"`

	TranscriptID *uuid.UUID `json:"transcript_id,omitempty"`
	NoteID       *uuid.UUID `json:"note_id,omitempty"`
	NoteStatus   NoteStatus `json:"note_status"`

	CanRetry     bool `json:"can_retry"`
	NoteCanRetry bool `json:"note_can_retry"`

	RetryCount       int        `json:"retry_count"`
	MaxRetries       int        `json:"max_retries"`
	RetryScheduledAt *time.Time `json:"retry_scheduled_at,omitempty"`
	LastRetryAt      *time.Time `json:"last_retry_at,omitempty"`

	// ErrorCode and ErrorMessage are populated only while Status is error.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// NoteErrorCode and NoteErrorMessage record a note-stage failure on a
	// completed job. Cleared when regeneration is requested.
	NoteErrorCode    string `json:"note_error_code,omitempty"`
	NoteErrorMessage string `json:"note_error_message,omitempty"`

	WorkerHeartbeatAt *time.Time `json:"worker_heartbeat_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// NewJob creates a Job in the uploaded state for the audio at the given
// blob-store path. Returns an error if validation fails.
func NewJob(audioPath string, durationSeconds float64, approxSizeBytes int64) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:              uuid.New(),
		Status:          JobStatusUploaded,
		AudioPath:       audioPath,
		DurationSeconds: durationSeconds,
		ApproxSizeBytes: approxSizeBytes,
		NoteStatus:      NoteStatusPending,
		MaxRetries:      DefaultMaxRetries,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.AudioPath == "" {
		return ErrEmptyAudioPath
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if !isValidNoteStatus(j.NoteStatus) {
		return ErrInvalidNoteStatus
	}

	if j.Progress < 0 || j.Progress > 100 {
		return ErrInvalidProgress
	}

	return nil
}

// Terminal reports whether the job has reached a state the pipeline will not
// advance on its own: completed, a permanent failure, or a retryable failure
// with the retry budget spent.
func (j *Job) Terminal() bool {
	if j.Status == JobStatusCompleted {
		return true
	}
	if j.Status != JobStatusError {
		return false
	}
	return !j.CanRetry || j.RetryCount >= j.MaxRetries
}

func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusUploaded, JobStatusProcessing, JobStatusGeneratingNote,
		JobStatusCompleted, JobStatusError:
		return true
	default:
		return false
	}
}

func isValidNoteStatus(status NoteStatus) bool {
	switch status {
	case NoteStatusPending, NoteStatusProcessing, NoteStatusReady, NoteStatusError:
		return true
	default:
		return false
	}
}
