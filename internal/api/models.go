package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
)

// Common request/response structures

// TokenRequest defines the payload for the token exchange endpoint.
type TokenRequest struct {
	APIKey string `json:"api_key" validate:"required,min=1"`
}

// TokenResponse defines the successful response for the token endpoint.
type TokenResponse struct {
	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"access_token"`

	// ExpiresAt is the ISO 8601 timestamp when the access token expires
	ExpiresAt string `json:"expires_at"`
}

// CreateJobRequest defines the payload for the job creation endpoint. The
// audio object must already exist in the blob store at AudioPath.
type CreateJobRequest struct {
	AudioPath       string  `json:"audio_path"        validate:"required,min=1,max=1024"`
	DurationSeconds float64 `json:"duration_seconds"  validate:"gte=0"`
	ApproxSizeBytes int64   `json:"approx_size_bytes" validate:"gte=0"`
}

// JobResponse is the API representation of a job.
type JobResponse struct {
	ID              uuid.UUID  `json:"id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	AudioPath       string     `json:"audio_path"`
	DurationSeconds float64    `json:"duration_seconds"`
	TranscriptID    *uuid.UUID `json:"transcript_id,omitempty"`
	NoteID          *uuid.UUID `json:"note_id,omitempty"`
	NoteStatus      string     `json:"note_status"`
	CanRetry        bool       `json:"can_retry"`
	RetryCount      int        `json:"retry_count"`
	ErrorCode       string     `json:"error_code,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	NoteErrorCode   string     `json:"note_error_code,omitempty"`
	NoteErrorMsg    string     `json:"note_error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse wraps a page of jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// TranscriptResponse is the API representation of a transcript.
type TranscriptResponse struct {
	ID         uuid.UUID      `json:"id"`
	Text       string         `json:"text"`
	AudioURL   string         `json:"audio_url"`
	DurationMS int64          `json:"duration_ms"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NoteResponse is the API representation of a study note.
type NoteResponse struct {
	ID              uuid.UUID `json:"id"`
	TranscriptionID uuid.UUID `json:"transcription_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	KeyPoints       []string  `json:"key_points"`
	ActionItems     []string  `json:"action_items"`
	StudyQuestions  []string  `json:"study_questions"`
	Provider        string    `json:"provider"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewJobResponse builds the API view of a domain job.
func NewJobResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:              job.ID,
		Status:          string(job.Status),
		Progress:        job.Progress,
		AudioPath:       job.AudioPath,
		DurationSeconds: job.DurationSeconds,
		TranscriptID:    job.TranscriptID,
		NoteID:          job.NoteID,
		NoteStatus:      string(job.NoteStatus),
		CanRetry:        job.CanRetry,
		RetryCount:      job.RetryCount,
		ErrorCode:       job.ErrorCode,
		ErrorMessage:    job.ErrorMessage,
		NoteErrorCode:   job.NoteErrorCode,
		NoteErrorMsg:    job.NoteErrorMessage,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// NewTranscriptResponse builds the API view of a domain transcript.
func NewTranscriptResponse(t *domain.Transcript) TranscriptResponse {
	return TranscriptResponse{
		ID:         t.ID,
		Text:       t.Text,
		AudioURL:   t.AudioURL,
		DurationMS: t.DurationMS,
		Confidence: t.Confidence,
		Metadata:   t.Metadata,
		CreatedAt:  t.CreatedAt,
	}
}

// NewNoteResponse builds the API view of a domain study note.
func NewNoteResponse(n *domain.StudyNote) NoteResponse {
	return NoteResponse{
		ID:              n.ID,
		TranscriptionID: n.TranscriptionID,
		Title:           n.Title,
		Summary:         n.Summary,
		KeyPoints:       n.KeyPoints,
		ActionItems:     n.ActionItems,
		StudyQuestions:  n.StudyQuestions,
		Provider:        n.Metadata.Provider,
		CreatedAt:       n.CreatedAt,
	}
}
