package retry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/lectio-api/internal/blob"
	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
	"github.com/lectio/lectio-api/internal/store"
)

type cleanupHarness struct {
	jobs        *store.MockJobStore
	transcripts *store.MockTranscriptStore
	notes       *store.MockNoteStore
	blobs       *blob.MemoryStore
	cleaner     *Cleaner
	now         time.Time
}

func newCleanupHarness() *cleanupHarness {
	h := &cleanupHarness{
		jobs:        store.NewMockJobStore(),
		transcripts: store.NewMockTranscriptStore(),
		notes:       store.NewMockNoteStore(),
		blobs:       blob.NewMemoryStore(),
		now:         time.Now().UTC(),
	}
	h.cleaner = NewCleaner(h.jobs, h.transcripts, h.notes, h.blobs, CleanerConfig{
		CompletedTTL: 30 * 24 * time.Hour,
		FailedTTL:    7 * 24 * time.Hour,
	}, discardLogger())
	h.cleaner.now = func() time.Time { return h.now }
	return h
}

func (h *cleanupHarness) completedJob(t *testing.T, age time.Duration) *domain.Job {
	t.Helper()

	job, err := domain.NewJob("audio/"+uuid.NewString()+".m4a", 60, 1024)
	require.NoError(t, err)

	transcript, err := domain.NewTranscript("text", "url", 60000, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.transcripts.Create(context.Background(), transcript))

	note, err := domain.NewStudyNote(transcript.ID, "t", "s",
		[]string{"a", "b", "c", "d"}, []string{"x", "y"}, []string{"q1", "q2", "q3"},
		domain.NoteMetadata{JobID: job.ID, Provider: "gpt", Attempts: 1})
	require.NoError(t, err)
	require.NoError(t, h.notes.Create(context.Background(), note))

	job.Status = domain.JobStatusCompleted
	job.TranscriptID = &transcript.ID
	job.NoteID = &note.ID
	job.UpdatedAt = h.now.Add(-age)
	h.jobs.Put(job)

	require.NoError(t, h.blobs.Save(context.Background(), job.AudioPath, []byte("audio"), "audio/mp4"))
	return job
}

func TestCleanupExpiresOldCompletedJobs(t *testing.T) {
	t.Parallel()

	h := newCleanupHarness()
	old := h.completedJob(t, 31*24*time.Hour)
	fresh := h.completedJob(t, time.Hour)

	require.NoError(t, h.cleaner.Sweep(context.Background()))

	_, err := h.jobs.GetByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	_, ok := h.blobs.Get(old.AudioPath)
	assert.False(t, ok, "audio blob removed")
	_, err = h.transcripts.GetByID(context.Background(), *old.TranscriptID)
	assert.ErrorIs(t, err, store.ErrTranscriptNotFound)
	_, err = h.notes.GetByID(context.Background(), *old.NoteID)
	assert.ErrorIs(t, err, store.ErrNoteNotFound)

	_, err = h.jobs.GetByID(context.Background(), fresh.ID)
	assert.NoError(t, err, "recent job untouched")
}

func TestCleanupKeepsFailedJobsWithRetryBudget(t *testing.T) {
	t.Parallel()

	h := newCleanupHarness()

	job, err := domain.NewJob("audio/failing.m4a", 60, 1024)
	require.NoError(t, err)
	job.Status = domain.JobStatusError
	job.CanRetry = true
	job.RetryCount = 2
	job.ErrorCode = string(fault.CodeTimeout)
	job.UpdatedAt = h.now.Add(-8 * 24 * time.Hour)
	h.jobs.Put(job)

	require.NoError(t, h.cleaner.Sweep(context.Background()))

	_, err = h.jobs.GetByID(context.Background(), job.ID)
	assert.NoError(t, err, "retryable failure is not terminal, keep it")
}

func TestCleanupExpiresTerminalFailures(t *testing.T) {
	t.Parallel()

	h := newCleanupHarness()

	job, err := domain.NewJob("audio/dead.m4a", 60, 1024)
	require.NoError(t, err)
	job.Status = domain.JobStatusError
	job.CanRetry = false
	job.ErrorCode = string(fault.CodeBadAudio)
	job.UpdatedAt = h.now.Add(-8 * 24 * time.Hour)
	h.jobs.Put(job)
	require.NoError(t, h.blobs.Save(context.Background(), job.AudioPath, []byte("audio"), "audio/mp4"))

	require.NoError(t, h.cleaner.Sweep(context.Background()))

	_, err = h.jobs.GetByID(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Zero(t, h.blobs.Len())
}

func TestCleanupSkipsJobWhenBlobDeleteFails(t *testing.T) {
	t.Parallel()

	h := newCleanupHarness()
	old := h.completedJob(t, 31*24*time.Hour)

	h.blobs.DeleteFn = func(context.Context, string) error {
		return assert.AnError
	}

	require.NoError(t, h.cleaner.Sweep(context.Background()))

	_, err := h.jobs.GetByID(context.Background(), old.ID)
	assert.NoError(t, err, "record kept so the next sweep can finish the cleanup")
}

func TestCleanupHandlesJobsWithoutArtifacts(t *testing.T) {
	t.Parallel()

	h := newCleanupHarness()

	job, err := domain.NewJob("audio/bare.m4a", 60, 1024)
	require.NoError(t, err)
	job.Status = domain.JobStatusError
	job.CanRetry = false
	job.UpdatedAt = h.now.Add(-8 * 24 * time.Hour)
	h.jobs.Put(job)

	require.NoError(t, h.cleaner.Sweep(context.Background()))

	_, err = h.jobs.GetByID(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}
