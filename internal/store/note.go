package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
)

// NoteStore defines the interface for study note persistence.
// Version: 1.0
type NoteStore interface {
	// Create saves a new study note to the store.
	// Returns validation errors from the domain StudyNote if data is invalid.
	Create(ctx context.Context, note *domain.StudyNote) error

	// GetByID retrieves a study note by its unique ID.
	// Returns ErrNoteNotFound if the note does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StudyNote, error)

	// Delete removes a study note record. Missing notes are not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}
