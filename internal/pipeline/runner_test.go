package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/lectio-api/internal/domain"
)

func TestRunnerProcessesSubmittedJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	runner := NewRunner(h.jobs, h.orch, RunnerConfig{WorkerCount: 2, QueueSize: 10, StuckJobAge: time.Hour}, h.orch.logger)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.NoError(t, runner.Submit(context.Background(), job.ID))

	require.Eventually(t, func() bool {
		got, err := h.jobs.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerRecoversBacklogOnStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	runner := NewRunner(h.jobs, h.orch, RunnerConfig{WorkerCount: 1, QueueSize: 10, StuckJobAge: time.Hour}, h.orch.logger)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, err := h.jobs.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerReleasesStuckJobsOnStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	stale := time.Now().Add(-2 * time.Hour)
	job.Status = domain.JobStatusProcessing
	job.WorkerStatus = domain.WorkerStatusRunning
	job.WorkerHeartbeatAt = &stale
	h.jobs.Put(job)

	runner := NewRunner(h.jobs, h.orch, RunnerConfig{WorkerCount: 1, QueueSize: 10, StuckJobAge: time.Hour}, h.orch.logger)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, err := h.jobs.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerResumesStuckNoteGenerationOnStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	job := h.addJob(t)

	transcript, err := domain.NewTranscript("existing transcript", "url", 1000, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.transcripts.Create(context.Background(), transcript))

	stale := time.Now().Add(-2 * time.Hour)
	job.Status = domain.JobStatusGeneratingNote
	job.NoteStatus = domain.NoteStatusProcessing
	job.TranscriptID = &transcript.ID
	job.WorkerStatus = domain.WorkerStatusRunning
	job.WorkerHeartbeatAt = &stale
	h.jobs.Put(job)

	// A transcription attempt would fail loudly, so completion proves the
	// job resumed on the note-only path.
	h.transcriber.err = errors.New("transcriber must not be called")

	runner := NewRunner(h.jobs, h.orch, RunnerConfig{WorkerCount: 1, QueueSize: 10, StuckJobAge: time.Hour}, h.orch.logger)
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		got, err := h.jobs.GetByID(context.Background(), job.ID)
		return err == nil && got.Status == domain.JobStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	got, err := h.jobs.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NoteStatusReady, got.NoteStatus)
	require.NotNil(t, got.NoteID)
	assert.Equal(t, 1, h.transcripts.Len())
}

func TestRunnerSubmitFailsWhenQueueFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	// Runner never started: nothing drains the queue.
	runner := NewRunner(h.jobs, h.orch, RunnerConfig{WorkerCount: 1, QueueSize: 1, StuckJobAge: time.Hour}, h.orch.logger)

	job := h.addJob(t)
	require.NoError(t, runner.Submit(context.Background(), job.ID))

	other := h.addJob(t)
	err := runner.Submit(context.Background(), other.ID)
	assert.Error(t, err)
}
