package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Transcript
var (
	ErrEmptyTranscriptID   = errors.New("transcript ID cannot be empty")
	ErrEmptyTranscriptText = errors.New("transcript text cannot be empty")
)

// Transcript is the full text produced from one audio file. Immutable once
// created; the owning Job references it by ID.
type Transcript struct {
	ID uuid.UUID `json:"id"`

	Text string `json:"text"`

	// AudioURL is a time-limited signed read URL for the source audio.
	AudioURL   string `json:"audio_url"`
	DurationMS int64  `json:"duration_ms"`

	// Confidence is the mean of the per-chunk confidences the provider
	// reported. Nil when no chunk reported one.
	Confidence *float64 `json:"confidence,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTranscript creates a Transcript with a fresh ID.
// Returns an error if validation fails.
func NewTranscript(text, audioURL string, durationMS int64, confidence *float64, metadata map[string]any) (*Transcript, error) {
	t := &Transcript{
		ID:         uuid.New(),
		Text:       text,
		AudioURL:   audioURL,
		DurationMS: durationMS,
		Confidence: confidence,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Transcript has valid data.
func (t *Transcript) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTranscriptID
	}

	if t.Text == "" {
		return ErrEmptyTranscriptText
	}

	return nil
}
