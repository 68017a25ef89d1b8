package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/notegen"
	"github.com/lectio/lectio-api/internal/store"
	"github.com/lectio/lectio-api/internal/transcribe"
)

type fakeAudio struct {
	normalizeErr error
	segmentErr   error
	chunks       []string
}

func (f *fakeAudio) Normalize(_ context.Context, path string) (string, error) {
	if f.normalizeErr != nil {
		return "", f.normalizeErr
	}
	return path, nil
}

func (f *fakeAudio) Segment(_ context.Context, _, _ string) ([]string, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	if f.chunks != nil {
		return f.chunks, nil
	}
	return []string{"/work/chunk_000.wav", "/work/chunk_001.wav"}, nil
}

type fakeTranscriber struct {
	err     error
	results []transcribe.Result
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ uuid.UUID, chunkPaths []string, onProgress func(done, total int)) ([]transcribe.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.results != nil {
		return f.results, nil
	}
	results := make([]transcribe.Result, len(chunkPaths))
	for i := range results {
		results[i] = transcribe.Result{Text: "chunk text"}
		if onProgress != nil {
			onProgress(i+1, len(chunkPaths))
		}
	}
	return results, nil
}

type fakeGenerator struct {
	err     error
	outcome notegen.Outcome
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (notegen.Outcome, error) {
	if f.err != nil {
		return notegen.Outcome{}, f.err
	}
	return f.outcome, nil
}

func validOutcome() notegen.Outcome {
	return notegen.Outcome{
		Note: notegen.Note{
			Title:          "Lecture",
			Summary:        "What was covered.",
			KeyPoints:      []string{"a", "b", "c", "d"},
			ActionItems:    []string{"x", "y"},
			StudyQuestions: []string{"q1", "q2", "q3"},
		},
		Provider: "gpt",
		Attempts: 1,
	}
}

type harness struct {
	jobs        *store.MockJobStore
	transcripts *store.MockTranscriptStore
	notes       *store.MockNoteStore
	blobs       *blob.MemoryStore
	audio       *fakeAudio
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	orch        *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		jobs:        store.NewMockJobStore(),
		transcripts: store.NewMockTranscriptStore(),
		notes:       store.NewMockNoteStore(),
		blobs:       blob.NewMemoryStore(),
		audio:       &fakeAudio{},
		transcriber: &fakeTranscriber{},
		generator:   &fakeGenerator{outcome: validOutcome()},
	}
	h.orch = NewOrchestrator(
		h.jobs, h.transcripts, h.notes, h.blobs,
		h.audio, h.transcriber, h.generator,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	h.orch.downloadBackoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	}
	h.orch.tempDir = func(_, _ string) (string, error) {
		return t.TempDir(), nil
	}
	return h
}

func (h *harness) addJob(t *testing.T) *domain.Job {
	t.Helper()
	job, err := domain.NewJob("audio/lecture.m4a", 720, 1<<20)
	require.NoError(t, err)
	h.jobs.Put(job)
	require.NoError(t, h.blobs.Save(context.Background(), job.AudioPath, []byte("audio-bytes"), "audio/mp4"))
	return job
}

func TestProcessHappyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, domain.NoteStatusReady, got.NoteStatus)
	assert.Equal(t, domain.WorkerStatusFinished, got.WorkerStatus)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.TranscriptID)
	require.NotNil(t, got.NoteID)
	require.NotNil(t, got.CompletedAt)

	transcript, err := h.transcripts.GetByID(context.Background(), *got.TranscriptID)
	require.NoError(t, err)
	assert.Equal(t, "chunk text chunk text", transcript.Text)
	assert.Equal(t, int64(720000), transcript.DurationMS)
	assert.Equal(t, "soniox", transcript.Metadata["source"])
	assert.Equal(t, job.ID.String(), transcript.Metadata["job_id"])
	assert.Equal(t, 2, transcript.Metadata["chunks"])

	note, err := h.notes.GetByID(context.Background(), *got.NoteID)
	require.NoError(t, err)
	assert.Equal(t, "Lecture", note.Title)
	assert.Equal(t, job.ID, note.Metadata.JobID)
	assert.Equal(t, "gpt", note.Metadata.Provider)
}

func TestProcessSkipsJobClaimedElsewhere(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	otherWorker := uuid.New()
	claimed, err := h.jobs.Claim(context.Background(), job.ID, otherWorker)
	require.NoError(t, err)
	require.True(t, claimed)

	err = h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, otherWorker, *got.WorkerID, "original claim must be untouched")
	assert.Zero(t, h.transcripts.Len())
}

func TestProcessMissingJobIsNoOp(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	err := h.orch.Process(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
}

func TestProcessBadAudioFailsPermanently(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.audio.normalizeErr = fault.New(fault.CodeBadAudio, "no audio stream found")
	job := h.addJob(t)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.Error(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, got.Status)
	assert.Equal(t, domain.WorkerStatusFailed, got.WorkerStatus)
	assert.Equal(t, string(fault.CodeBadAudio), got.ErrorCode)
	assert.False(t, got.CanRetry, "bad audio is not retryable")
}

func TestProcessEmptyTranscriptIsBadAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transcriber.results = []transcribe.Result{{}, {}}
	job := h.addJob(t)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.Error(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, got.Status)
	assert.Equal(t, string(fault.CodeBadAudio), got.ErrorCode)
	assert.False(t, got.CanRetry)
	assert.Equal(t, 0, h.transcripts.Len(), "no transcript should be saved for empty text")
}

func TestProcessTransientFailureIsRetryable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.transcriber.err = fault.New(fault.CodeProviderDown, "soniox 503")
	job := h.addJob(t)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.Error(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, got.Status)
	assert.Equal(t, string(fault.CodeProviderDown), got.ErrorCode)
	assert.True(t, got.CanRetry)
}

func TestProcessNoteFailureCompletesJobWithFailedNote(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generator.err = fault.New(fault.CodeProviderDown, "all note providers failed")
	job := h.addJob(t)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err, "note failure is recorded, not propagated")

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, domain.NoteStatusError, got.NoteStatus)
	assert.Equal(t, domain.WorkerStatusNoteFailed, got.WorkerStatus)
	assert.True(t, got.NoteCanRetry)
	assert.Equal(t, 100, got.Progress)

	assert.Empty(t, got.ErrorCode, "job error fields are reserved for status=error")
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, string(fault.CodeProviderDown), got.NoteErrorCode)
	assert.Equal(t, "all note providers failed", got.NoteErrorMessage)

	require.NotNil(t, got.TranscriptID, "transcript survives the note failure")
	assert.Equal(t, 1, h.transcripts.Len())
	assert.Zero(t, h.notes.Len())

	granted, err := h.jobs.RequestNoteRegeneration(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, granted)

	got, err = h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.NoteErrorCode, "regeneration clears the recorded note failure")
	assert.Empty(t, got.NoteErrorMessage)
}

func TestProcessNoteOnlyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	transcript, err := domain.NewTranscript("existing transcript", "url", 1000, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.transcripts.Create(context.Background(), transcript))

	job.Status = domain.JobStatusGeneratingNote
	job.NoteStatus = domain.NoteStatusProcessing
	job.TranscriptID = &transcript.ID
	h.jobs.Put(job)

	err = h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, domain.NoteStatusReady, got.NoteStatus)
	require.NotNil(t, got.NoteID)
	assert.Equal(t, 1, h.notes.Len())
}

func TestProcessNoteOnlySkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	transcriptID := uuid.New()
	job.Status = domain.JobStatusGeneratingNote
	job.TranscriptID = &transcriptID
	job.WorkerStatus = domain.WorkerStatusRunning
	h.jobs.Put(job)

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)
	assert.Zero(t, h.notes.Len())
}

func TestProcessRetriesDownload(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	attempts := 0
	h.blobs.DownloadFn = func(ctx context.Context, path, dest string) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		h.blobs.DownloadFn = nil
		return h.blobs.Download(ctx, path, dest)
	}

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
}

func TestProcessDownloadExhaustionFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	h.blobs.DownloadFn = func(context.Context, string, string) error {
		return errors.New("connection reset by peer")
	}

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.Error(t, err)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusError, got.Status)
	assert.Equal(t, string(fault.CodeTimeout), got.ErrorCode, "transport failures classify as timeout")
	assert.True(t, got.CanRetry)
}

func TestProcessProgressAdvancesThroughStages(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	var progressSeen []int
	h.jobs.UpdateProgressFn = func(ctx context.Context, id uuid.UUID, progress int) error {
		progressSeen = append(progressSeen, progress)
		return nil
	}

	err := h.orch.Process(context.Background(), job.ID, uuid.New())
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(progressSeen), 4)
	assert.Equal(t, 10, progressSeen[0], "after download")
	assert.Equal(t, 15, progressSeen[1], "after normalize")
	assert.Equal(t, 50, progressSeen[2], "first chunk of two lands halfway to 85")
	assert.Equal(t, 85, progressSeen[3], "all chunks done")
}
