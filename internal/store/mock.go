package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/fault"
)

// MockJobStore implements JobStore in memory for testing. The default
// behavior mirrors the Postgres implementation's transition semantics;
// individual methods can be overridden through the Fn fields to inject
// failures or observe calls.
type MockJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job

	GetByIDFn         func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	ClaimFn           func(ctx context.Context, id, workerID uuid.UUID) (bool, error)
	UpdateProgressFn  func(ctx context.Context, id uuid.UUID, progress int) error
	SetTranscribedFn  func(ctx context.Context, id, transcriptID uuid.UUID) error
	CompleteFn        func(ctx context.Context, id, noteID uuid.UUID) error
	MarkFailedFn      func(ctx context.Context, id uuid.UUID, code fault.Code, message string, canRetry bool) error
	MarkNoteFailedFn  func(ctx context.Context, id uuid.UUID, code fault.Code, message string) error
	ScheduleRetryFn   func(ctx context.Context, id uuid.UUID, at time.Time) error
	ReleaseForRetryFn func(ctx context.Context, id uuid.UUID) (bool, error)
}

// NewMockJobStore creates an empty MockJobStore.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	return &c
}

// Put inserts or replaces a job directly, bypassing validation. Test setup only.
func (s *MockJobStore) Put(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
}

// Create saves a new job after validating it.
func (s *MockJobStore) Create(_ context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return NewStoreError("job", "create", "validation failed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetByID returns a copy of the stored job.
func (s *MockJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if s.GetByIDFn != nil {
		return s.GetByIDFn(ctx, id)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// List returns jobs newest first.
func (s *MockJobStore) List(_ context.Context, limit, offset int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, cloneJob(job))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*domain.Job{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (s *MockJobStore) ListByStatus(_ context.Context, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Job
	for _, job := range s.jobs {
		if job.Status == status {
			matched = append(matched, cloneJob(job))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Claim transitions uploaded -> processing for one worker.
func (s *MockJobStore) Claim(ctx context.Context, id, workerID uuid.UUID) (bool, error) {
	if s.ClaimFn != nil {
		return s.ClaimFn(ctx, id, workerID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status != domain.JobStatusUploaded ||
		job.WorkerStatus == domain.WorkerStatusRunning ||
		job.WorkerStatus == domain.WorkerStatusFinished {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusProcessing
	job.WorkerStatus = domain.WorkerStatusRunning
	job.WorkerID = &workerID
	if job.Progress < 5 {
		job.Progress = 5
	}
	job.WorkerHeartbeatAt = &now
	job.UpdatedAt = now
	return true, nil
}

// UpdateProgress advances progress monotonically and refreshes the heartbeat.
func (s *MockJobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	if s.UpdateProgressFn != nil {
		return s.UpdateProgressFn(ctx, id, progress)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	if progress > job.Progress {
		job.Progress = progress
	}
	job.WorkerHeartbeatAt = &now
	job.UpdatedAt = now
	return nil
}

// SetTranscribed records the transcript and enters note generation.
func (s *MockJobStore) SetTranscribed(ctx context.Context, id, transcriptID uuid.UUID) error {
	if s.SetTranscribedFn != nil {
		return s.SetTranscribedFn(ctx, id, transcriptID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusGeneratingNote
	job.NoteStatus = domain.NoteStatusProcessing
	job.TranscriptID = &transcriptID
	if job.Progress < 85 {
		job.Progress = 85
	}
	job.UpdatedAt = now
	return nil
}

// Complete records the note and finishes the job.
func (s *MockJobStore) Complete(ctx context.Context, id, noteID uuid.UUID) error {
	if s.CompleteFn != nil {
		return s.CompleteFn(ctx, id, noteID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.NoteStatus = domain.NoteStatusReady
	job.WorkerStatus = domain.WorkerStatusFinished
	job.NoteID = &noteID
	job.Progress = 100
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// MarkFailed enters the error state with a classified failure.
func (s *MockJobStore) MarkFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string, canRetry bool) error {
	if s.MarkFailedFn != nil {
		return s.MarkFailedFn(ctx, id, code, message, canRetry)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusError
	job.WorkerStatus = domain.WorkerStatusFailed
	job.ErrorCode = string(code)
	job.ErrorMessage = message
	job.CanRetry = canRetry
	job.UpdatedAt = now
	return nil
}

// MarkNoteFailed finishes the job with a failed note stage.
func (s *MockJobStore) MarkNoteFailed(ctx context.Context, id uuid.UUID, code fault.Code, message string) error {
	if s.MarkNoteFailedFn != nil {
		return s.MarkNoteFailedFn(ctx, id, code, message)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.NoteStatus = domain.NoteStatusError
	job.NoteCanRetry = true
	job.WorkerStatus = domain.WorkerStatusNoteFailed
	job.NoteErrorCode = string(code)
	job.NoteErrorMessage = message
	job.Progress = 100
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// RequestNoteRegeneration re-enters note generation for a failed note.
func (s *MockJobStore) RequestNoteRegeneration(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status != domain.JobStatusCompleted ||
		job.NoteStatus != domain.NoteStatusError ||
		!job.NoteCanRetry {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusGeneratingNote
	job.NoteStatus = domain.NoteStatusProcessing
	job.NoteCanRetry = false
	job.WorkerStatus = domain.WorkerStatusNone
	job.NoteErrorCode = ""
	job.NoteErrorMessage = ""
	job.UpdatedAt = now
	return true, nil
}

// ListAwaitingRetrySchedule returns failed retryable jobs with no schedule yet.
func (s *MockJobStore) ListAwaitingRetrySchedule(_ context.Context, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusError &&
			job.CanRetry &&
			job.RetryScheduledAt == nil &&
			job.RetryCount < job.MaxRetries {
			matched = append(matched, cloneJob(job))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// ListRetryDue returns failed jobs whose scheduled retry time has passed.
func (s *MockJobStore) ListRetryDue(_ context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusError &&
			job.RetryScheduledAt != nil &&
			!job.RetryScheduledAt.After(now) {
			matched = append(matched, cloneJob(job))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// ScheduleRetry books a retry attempt.
func (s *MockJobStore) ScheduleRetry(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s.ScheduleRetryFn != nil {
		return s.ScheduleRetryFn(ctx, id, at)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	now := time.Now().UTC()
	job.RetryCount++
	job.LastRetryAt = &now
	job.RetryScheduledAt = &at
	job.UpdatedAt = now
	return nil
}

// ReleaseForRetry fires a scheduled retry.
func (s *MockJobStore) ReleaseForRetry(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.ReleaseForRetryFn != nil {
		return s.ReleaseForRetryFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status != domain.JobStatusError {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = domain.JobStatusUploaded
	job.WorkerStatus = domain.WorkerStatusNone
	job.WorkerID = nil
	job.RetryScheduledAt = nil
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.Progress = 0
	job.UpdatedAt = now
	return true, nil
}

// ResetStuck releases jobs whose worker heartbeat went stale. Processing
// jobs restart from uploaded; generating_note jobs keep their status so the
// note-only path resumes them without re-transcribing.
func (s *MockJobStore) ResetStuck(_ context.Context, staleBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	now := time.Now().UTC()
	for _, job := range s.jobs {
		noteStuck := job.Status == domain.JobStatusGeneratingNote &&
			job.WorkerStatus == domain.WorkerStatusRunning
		if job.Status != domain.JobStatusProcessing && !noteStuck {
			continue
		}
		if job.WorkerHeartbeatAt != nil && !job.WorkerHeartbeatAt.Before(staleBefore) {
			continue
		}
		if job.Status == domain.JobStatusProcessing {
			job.Status = domain.JobStatusUploaded
		}
		job.WorkerStatus = domain.WorkerStatusNone
		job.WorkerID = nil
		job.UpdatedAt = now
		count++
	}
	return count, nil
}

// ListFinishedBefore returns jobs in the status last touched before cutoff.
func (s *MockJobStore) ListFinishedBefore(_ context.Context, status domain.JobStatus, cutoff time.Time, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Job
	for _, job := range s.jobs {
		if job.Status == status && job.UpdatedAt.Before(cutoff) {
			matched = append(matched, cloneJob(job))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.Before(matched[j].UpdatedAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Delete removes a job record.
func (s *MockJobStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

// MockTranscriptStore implements TranscriptStore in memory for testing.
type MockTranscriptStore struct {
	mu          sync.RWMutex
	transcripts map[uuid.UUID]*domain.Transcript

	CreateFn func(ctx context.Context, transcript *domain.Transcript) error
}

// NewMockTranscriptStore creates an empty MockTranscriptStore.
func NewMockTranscriptStore() *MockTranscriptStore {
	return &MockTranscriptStore{transcripts: make(map[uuid.UUID]*domain.Transcript)}
}

// Create saves a transcript.
func (s *MockTranscriptStore) Create(ctx context.Context, transcript *domain.Transcript) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, transcript)
	}
	if err := transcript.Validate(); err != nil {
		return NewStoreError("transcript", "create", "validation failed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *transcript
	s.transcripts[transcript.ID] = &c
	return nil
}

// GetByID returns a copy of the stored transcript.
func (s *MockTranscriptStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Transcript, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transcript, ok := s.transcripts[id]
	if !ok {
		return nil, ErrTranscriptNotFound
	}
	c := *transcript
	return &c, nil
}

// Delete removes a transcript. Missing transcripts are a no-op.
func (s *MockTranscriptStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, id)
	return nil
}

// Len reports the number of stored transcripts, for test assertions.
func (s *MockTranscriptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcripts)
}

// MockNoteStore implements NoteStore in memory for testing.
type MockNoteStore struct {
	mu    sync.RWMutex
	notes map[uuid.UUID]*domain.StudyNote

	CreateFn func(ctx context.Context, note *domain.StudyNote) error
}

// NewMockNoteStore creates an empty MockNoteStore.
func NewMockNoteStore() *MockNoteStore {
	return &MockNoteStore{notes: make(map[uuid.UUID]*domain.StudyNote)}
}

// Create saves a study note.
func (s *MockNoteStore) Create(ctx context.Context, note *domain.StudyNote) error {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, note)
	}
	if err := note.Validate(); err != nil {
		return NewStoreError("study note", "create", "validation failed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *note
	s.notes[note.ID] = &c
	return nil
}

// GetByID returns a copy of the stored note.
func (s *MockNoteStore) GetByID(_ context.Context, id uuid.UUID) (*domain.StudyNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	note, ok := s.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	c := *note
	return &c, nil
}

// Delete removes a note. Missing notes are a no-op.
func (s *MockNoteStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notes, id)
	return nil
}

// Len reports the number of stored notes, for test assertions.
func (s *MockNoteStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}
