package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/platform/logger"
	"github.com/lectio/lectio-api/internal/store"
)

// PostgresNoteStore implements the store.NoteStore interface
// using a PostgreSQL database as the storage backend.
type PostgresNoteStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNoteStore creates a new PostgreSQL implementation of the
// NoteStore interface.
func NewPostgresNoteStore(db store.DBTX, logger *slog.Logger) *PostgresNoteStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNoteStore{
		db:     db,
		logger: logger.With(slog.String("component", "note_store")),
	}
}

// Ensure PostgresNoteStore implements store.NoteStore interface
var _ store.NoteStore = (*PostgresNoteStore)(nil)

// Create implements store.NoteStore.Create.
func (s *PostgresNoteStore) Create(ctx context.Context, note *domain.StudyNote) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := note.Validate(); err != nil {
		log.Warn("study note validation failed during create",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	keyPoints, err := json.Marshal(note.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to encode key points: %w", err)
	}
	actionItems, err := json.Marshal(note.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to encode action items: %w", err)
	}
	studyQuestions, err := json.Marshal(note.StudyQuestions)
	if err != nil {
		return fmt.Errorf("failed to encode study questions: %w", err)
	}
	metadata, err := json.Marshal(note.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode note metadata: %w", err)
	}

	query := `
		INSERT INTO study_notes (id, transcription_id, title, summary,
			key_points, action_items, study_questions, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		note.ID,
		note.TranscriptionID,
		note.Title,
		note.Summary,
		keyPoints,
		actionItems,
		studyQuestions,
		metadata,
		note.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create study note",
			slog.String("error", err.Error()),
			slog.String("note_id", note.ID.String()))
		return mapError(err, store.ErrNoteNotFound)
	}
	return nil
}

// GetByID implements store.NoteStore.GetByID.
func (s *PostgresNoteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.StudyNote, error) {
	query := `
		SELECT id, transcription_id, title, summary, key_points, action_items,
			study_questions, metadata, created_at
		FROM study_notes
		WHERE id = $1
	`

	var note domain.StudyNote
	var keyPoints, actionItems, studyQuestions, metadata []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&note.ID,
		&note.TranscriptionID,
		&note.Title,
		&note.Summary,
		&keyPoints,
		&actionItems,
		&studyQuestions,
		&metadata,
		&note.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, store.ErrNoteNotFound)
	}

	if err := json.Unmarshal(keyPoints, &note.KeyPoints); err != nil {
		return nil, fmt.Errorf("failed to decode key points: %w", err)
	}
	if err := json.Unmarshal(actionItems, &note.ActionItems); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}
	if err := json.Unmarshal(studyQuestions, &note.StudyQuestions); err != nil {
		return nil, fmt.Errorf("failed to decode study questions: %w", err)
	}
	if err := json.Unmarshal(metadata, &note.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode note metadata: %w", err)
	}
	return &note, nil
}

// Delete implements store.NoteStore.Delete.
func (s *PostgresNoteStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM study_notes WHERE id = $1`, id)
	return err
}
