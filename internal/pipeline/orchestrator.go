// Package pipeline drives a transcription job end to end: claim, download,
// normalize, segment, transcribe, generate the study note, and record the
// outcome. Failures are classified exactly once at the stage boundary and
// persisted on the job; the retry scheduler works from that record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/notegen"
	"github.com/lectio/lectio-api/internal/store"
	"github.com/lectio/lectio-api/internal/transcribe"
)

// Progress milestones. Chunk work advances linearly between claimed and
// transcribed; the note stage runs from transcribed to done.
const (
	progressDownloaded  = 10
	progressNormalized  = 15
	progressTranscribed = 85
)

const transcriptURLTTL = 24 * time.Hour

// audioProcessor is the slice of the audio package the orchestrator needs.
type audioProcessor interface {
	Normalize(ctx context.Context, path string) (string, error)
	Segment(ctx context.Context, src, chunkDir string) ([]string, error)
}

// chunkTranscriber is the slice of the transcribe pool the orchestrator needs.
type chunkTranscriber interface {
	Transcribe(ctx context.Context, jobID uuid.UUID, chunkPaths []string, onProgress func(done, total int)) ([]transcribe.Result, error)
}

// noteGenerator is the slice of the notegen chain the orchestrator needs.
type noteGenerator interface {
	Generate(ctx context.Context, transcript string) (notegen.Outcome, error)
}

// Orchestrator processes one job at a time through the full pipeline.
type Orchestrator struct {
	jobs        store.JobStore
	transcripts store.TranscriptStore
	notes       store.NoteStore
	blobs       blob.Store
	audio       audioProcessor
	transcriber chunkTranscriber
	generator   noteGenerator
	logger      *slog.Logger

	// downloadBackoff produces the wait policy for audio blob downloads.
	// Replaced in tests to avoid real sleeps.
	downloadBackoff func() backoff.BackOff

	tempDir func(dir, pattern string) (string, error)
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	jobs store.JobStore,
	transcripts store.TranscriptStore,
	notes store.NoteStore,
	blobs blob.Store,
	audio audioProcessor,
	transcriber chunkTranscriber,
	generator noteGenerator,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		jobs:        jobs,
		transcripts: transcripts,
		notes:       notes,
		blobs:       blobs,
		audio:       audio,
		transcriber: transcriber,
		generator:   generator,
		logger:      logger.With("component", "pipeline"),
		downloadBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = time.Second
			bo.Multiplier = 2
			bo.RandomizationFactor = 0
			bo.MaxElapsedTime = 0
			return backoff.WithMaxRetries(bo, 3)
		},
		tempDir: os.MkdirTemp,
	}
}

// Process runs the pipeline for one job. A job that is not in a processable
// state is skipped silently, which makes duplicate submissions harmless.
// Pipeline failures are classified, written to the job, and returned for
// logging; persistence errors are returned as-is.
func (o *Orchestrator) Process(ctx context.Context, jobID, workerID uuid.UUID) error {
	logger := o.logger.With("job_id", jobID, "worker_id", workerID)

	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if store.IsNotFoundError(err) {
			logger.Warn("job vanished before processing")
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	switch {
	case job.Status == domain.JobStatusUploaded:
		return o.processFull(ctx, logger, job, workerID)
	case job.Status == domain.JobStatusGeneratingNote && job.TranscriptID != nil:
		return o.processNoteOnly(ctx, logger, job)
	default:
		logger.Debug("job not in a processable state, skipping",
			"status", job.Status,
			"worker_status", job.WorkerStatus)
		return nil
	}
}

// processFull handles a freshly uploaded (or retried) job from claim to
// completion.
func (o *Orchestrator) processFull(ctx context.Context, logger *slog.Logger, job *domain.Job, workerID uuid.UUID) error {
	claimed, err := o.jobs.Claim(ctx, job.ID, workerID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		logger.Debug("job claimed by another worker, skipping")
		return nil
	}

	logger.Info("processing job", "audio_path", job.AudioPath)

	transcript, err := o.transcribeStage(ctx, logger, job)
	if err != nil {
		return o.failJob(ctx, logger, job.ID, err)
	}

	if err := o.jobs.SetTranscribed(ctx, job.ID, transcript.ID); err != nil {
		return fmt.Errorf("failed to record transcript on job: %w", err)
	}

	return o.noteStage(ctx, logger, job.ID, transcript)
}

// processNoteOnly resumes a job whose transcript already exists: a note
// regeneration request, or a crash between transcript and note.
func (o *Orchestrator) processNoteOnly(ctx context.Context, logger *slog.Logger, job *domain.Job) error {
	if job.WorkerStatus == domain.WorkerStatusRunning {
		logger.Debug("note generation already in flight, skipping")
		return nil
	}

	transcript, err := o.transcripts.GetByID(ctx, *job.TranscriptID)
	if err != nil {
		if store.IsNotFoundError(err) {
			// Transcript lost; the job cannot make progress on this path.
			return o.failJob(ctx, logger, job.ID,
				fault.New(fault.CodeUnknown, "transcript record missing for note generation"))
		}
		return fmt.Errorf("failed to load transcript: %w", err)
	}

	logger.Info("resuming note generation", "transcript_id", transcript.ID)
	return o.noteStage(ctx, logger, job.ID, transcript)
}

// transcribeStage covers download through transcript creation.
func (o *Orchestrator) transcribeStage(ctx context.Context, logger *slog.Logger, job *domain.Job) (*domain.Transcript, error) {
	workDir, err := o.tempDir("", "lectio-job-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove work directory", "dir", workDir, "error", err)
		}
	}()

	localAudio := filepath.Join(workDir, "source"+filepath.Ext(job.AudioPath))
	if err := o.downloadAudio(ctx, job.AudioPath, localAudio); err != nil {
		return nil, err
	}
	if err := o.jobs.UpdateProgress(ctx, job.ID, progressDownloaded); err != nil {
		logger.Warn("failed to update progress", "error", err)
	}

	normalized, err := o.audio.Normalize(ctx, localAudio)
	if err != nil {
		return nil, err
	}
	if err := o.jobs.UpdateProgress(ctx, job.ID, progressNormalized); err != nil {
		logger.Warn("failed to update progress", "error", err)
	}

	chunkDir := filepath.Join(workDir, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}

	chunks, err := o.audio.Segment(ctx, normalized, chunkDir)
	if err != nil {
		return nil, err
	}

	logger.Info("transcribing chunks", "chunk_count", len(chunks))

	results, err := o.transcriber.Transcribe(ctx, job.ID, chunks, func(done, total int) {
		progress := progressNormalized + int(float64(done)/float64(total)*float64(progressTranscribed-progressNormalized)+0.5)
		if err := o.jobs.UpdateProgress(ctx, job.ID, progress); err != nil {
			logger.Warn("failed to update progress", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	text := transcribe.Join(results)
	if text == "" {
		return nil, fault.New(fault.CodeBadAudio, "transcription produced empty text")
	}

	audioURL, err := o.blobs.SignedURL(ctx, job.AudioPath, transcriptURLTTL)
	if err != nil {
		logger.Warn("failed to sign source audio URL", "error", err)
		audioURL = job.AudioPath
	}

	transcript, err := domain.NewTranscript(
		text,
		audioURL,
		int64(job.DurationSeconds*1000),
		transcribe.AggregateConfidence(results),
		map[string]any{
			"source":            "soniox",
			"job_id":            job.ID.String(),
			"approx_size_bytes": job.ApproxSizeBytes,
			"chunks":            len(chunks),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transcript: %w", err)
	}

	if err := o.transcripts.Create(ctx, transcript); err != nil {
		return nil, fmt.Errorf("failed to save transcript: %w", err)
	}
	return transcript, nil
}

// noteStage generates and records the study note. Its failure mode is
// asymmetric: the transcript survived, so the job still completes, with the
// note marked independently retryable.
func (o *Orchestrator) noteStage(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, transcript *domain.Transcript) error {
	outcome, err := o.generator.Generate(ctx, transcript.Text)
	if err != nil {
		code, _ := fault.Classify(err)
		logger.Error("note generation failed", "code", code, "error", err)
		if markErr := o.jobs.MarkNoteFailed(ctx, jobID, code, err.Error()); markErr != nil {
			return fmt.Errorf("failed to record note failure: %w", markErr)
		}
		return nil
	}

	note, err := domain.NewStudyNote(
		transcript.ID,
		outcome.Note.Title,
		outcome.Note.Summary,
		outcome.Note.KeyPoints,
		outcome.Note.ActionItems,
		outcome.Note.StudyQuestions,
		domain.NoteMetadata{JobID: jobID, Provider: outcome.Provider, Attempts: outcome.Attempts},
	)
	if err != nil {
		return fmt.Errorf("failed to build study note: %w", err)
	}

	if err := o.notes.Create(ctx, note); err != nil {
		return fmt.Errorf("failed to save study note: %w", err)
	}
	if err := o.jobs.Complete(ctx, jobID, note.ID); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	logger.Info("job completed",
		"note_id", note.ID,
		"provider", outcome.Provider,
		"attempts", outcome.Attempts)
	return nil
}

// downloadAudio pulls the source audio out of blob storage, retrying
// transient failures with exponential backoff.
func (o *Orchestrator) downloadAudio(ctx context.Context, path, dest string) error {
	operation := func() error {
		return o.blobs.Download(ctx, path, dest)
	}
	if err := backoff.Retry(operation, backoff.WithContext(o.downloadBackoff(), ctx)); err != nil {
		return fmt.Errorf("failed to download audio %s: %w", path, err)
	}
	return nil
}

// failJob classifies the pipeline error once and persists it on the job.
// The original error is returned so callers can log it; the classification
// decides whether the retry scheduler will pick the job up.
func (o *Orchestrator) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, cause error) error {
	code, retryable := fault.Classify(cause)
	logger.Error("job failed", "code", code, "retryable", retryable, "error", cause)

	if err := o.jobs.MarkFailed(ctx, jobID, code, cause.Error(), retryable); err != nil {
		return fmt.Errorf("failed to record job failure (cause: %v): %w", cause, err)
	}
	return cause
}
