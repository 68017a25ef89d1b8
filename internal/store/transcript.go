package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
)

// TranscriptStore defines the interface for transcript persistence.
// Version: 1.0
type TranscriptStore interface {
	// Create saves a new transcript to the store.
	// Returns validation errors from the domain Transcript if data is invalid.
	Create(ctx context.Context, transcript *domain.Transcript) error

	// GetByID retrieves a transcript by its unique ID.
	// Returns ErrTranscriptNotFound if the transcript does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transcript, error)

	// Delete removes a transcript record. Missing transcripts are not an
	// error, so interrupted cleanup sweeps can rerun.
	Delete(ctx context.Context, id uuid.UUID) error
}
