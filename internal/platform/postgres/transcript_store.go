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

// PostgresTranscriptStore implements the store.TranscriptStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTranscriptStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTranscriptStore creates a new PostgreSQL implementation of the
// TranscriptStore interface.
func NewPostgresTranscriptStore(db store.DBTX, logger *slog.Logger) *PostgresTranscriptStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTranscriptStore{
		db:     db,
		logger: logger.With(slog.String("component", "transcript_store")),
	}
}

// Ensure PostgresTranscriptStore implements store.TranscriptStore interface
var _ store.TranscriptStore = (*PostgresTranscriptStore)(nil)

// Create implements store.TranscriptStore.Create.
func (s *PostgresTranscriptStore) Create(ctx context.Context, transcript *domain.Transcript) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := transcript.Validate(); err != nil {
		log.Warn("transcript validation failed during create",
			slog.String("error", err.Error()),
			slog.String("transcript_id", transcript.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(transcript.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode transcript metadata: %w", err)
	}

	query := `
		INSERT INTO transcripts (id, text, audio_url, duration_ms, confidence, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		transcript.ID,
		transcript.Text,
		transcript.AudioURL,
		transcript.DurationMS,
		transcript.Confidence,
		metadata,
		transcript.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create transcript",
			slog.String("error", err.Error()),
			slog.String("transcript_id", transcript.ID.String()))
		return mapError(err, store.ErrTranscriptNotFound)
	}
	return nil
}

// GetByID implements store.TranscriptStore.GetByID.
func (s *PostgresTranscriptStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transcript, error) {
	query := `
		SELECT id, text, audio_url, duration_ms, confidence, metadata, created_at
		FROM transcripts
		WHERE id = $1
	`

	var transcript domain.Transcript
	var metadata []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&transcript.ID,
		&transcript.Text,
		&transcript.AudioURL,
		&transcript.DurationMS,
		&transcript.Confidence,
		&metadata,
		&transcript.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, store.ErrTranscriptNotFound)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &transcript.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transcript metadata: %w", err)
		}
	}
	return &transcript, nil
}

// Delete implements store.TranscriptStore.Delete.
func (s *PostgresTranscriptStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = $1`, id)
	return err
}
