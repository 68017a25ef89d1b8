package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for StudyNote
var (
	ErrEmptyNoteID           = errors.New("study note ID cannot be empty")
	ErrEmptyNoteTranscriptID = errors.New("study note transcript ID cannot be empty")
	ErrEmptyNoteTitle        = errors.New("study note title cannot be empty")
	ErrEmptyNoteSummary      = errors.New("study note summary cannot be empty")
)

// NoteMetadata records how a study note was produced.
type NoteMetadata struct {
	JobID    uuid.UUID `json:"job_id"`
	Provider string    `json:"provider"`
	Attempts int       `json:"attempts"`
}

// StudyNote is the structured study material generated from a transcript.
// Immutable once created. TranscriptionID is a back-reference, not
// ownership; the transcript outlives the note.
type StudyNote struct {
	ID              uuid.UUID `json:"id"`
	TranscriptionID uuid.UUID `json:"transcription_id"`

	Title          string   `json:"title"`
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	ActionItems    []string `json:"action_items"`
	StudyQuestions []string `json:"study_questions"`

	Metadata  NoteMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewStudyNote creates a StudyNote with a fresh ID.
// Returns an error if validation fails.
func NewStudyNote(
	transcriptionID uuid.UUID,
	title, summary string,
	keyPoints, actionItems, studyQuestions []string,
	metadata NoteMetadata,
) (*StudyNote, error) {
	note := &StudyNote{
		ID:              uuid.New(),
		TranscriptionID: transcriptionID,
		Title:           title,
		Summary:         summary,
		KeyPoints:       keyPoints,
		ActionItems:     actionItems,
		StudyQuestions:  studyQuestions,
		Metadata:        metadata,
		CreatedAt:       time.Now().UTC(),
	}

	if err := note.Validate(); err != nil {
		return nil, err
	}

	return note, nil
}

// Validate checks if the StudyNote has valid data.
func (n *StudyNote) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNoteID
	}

	if n.TranscriptionID == uuid.Nil {
		return ErrEmptyNoteTranscriptID
	}

	if n.Title == "" {
		return ErrEmptyNoteTitle
	}

	if n.Summary == "" {
		return ErrEmptyNoteSummary
	}

	return nil
}
