package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lectio/lectio-api/internal/api"
	"github.com/lectio/lectio-api/internal/api/middleware"
	"github.com/lectio/lectio-api/internal/auth"
	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/store"
)

const (
	testAPIKey    = "test-api-key"
	testJWTSecret = "test-jwt-secret-at-least-32-chars-long"
)

type apiHarness struct {
	jobs        *store.MockJobStore
	transcripts *store.MockTranscriptStore
	notes       *store.MockNoteStore
	server      *httptest.Server
	token       string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(testJWTSecret, time.Hour)
	require.NoError(t, err)

	h := &apiHarness{
		jobs:        store.NewMockJobStore(),
		transcripts: store.NewMockTranscriptStore(),
		notes:       store.NewMockNoteStore(),
	}

	authHandler := api.NewAuthHandler(auth.NewBcryptVerifier(string(hash)), jwtService)
	jobHandler := api.NewJobHandler(h.jobs, h.transcripts, h.notes, nil)
	router := api.NewRouter(authHandler, jobHandler, middleware.NewAuthMiddleware(jwtService))

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	token, _, err := jwtService.GenerateToken(context.Background())
	require.NoError(t, err)
	h.token = token

	return h
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, authed bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateJob(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPost, "/api/jobs", api.CreateJobRequest{
		AudioPath:       "audio/lecture-01.m4a",
		DurationSeconds: 1800,
		ApproxSizeBytes: 28_000_000,
	}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[api.JobResponse](t, resp)
	assert.Equal(t, "uploaded", body.Status)
	assert.Equal(t, "audio/lecture-01.m4a", body.AudioPath)
	assert.Equal(t, 0, body.Progress)
	assert.NotEqual(t, uuid.Nil, body.ID)

	stored, err := h.jobs.GetByID(context.Background(), body.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusUploaded, stored.Status)
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodPost, "/api/jobs", api.CreateJobRequest{
		DurationSeconds: 60,
	}, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	job, err := domain.NewJob("audio/a.m4a", 120, 1000)
	require.NoError(t, err)
	h.jobs.Put(job)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+job.ID.String(), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.JobResponse](t, resp)
	assert.Equal(t, job.ID, body.ID)
	assert.Equal(t, "pending", body.NoteStatus)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+uuid.NewString(), nil, true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "Job not found", body.Error)
}

func TestGetJobBadID(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/jobs/not-a-uuid", nil, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	for i := 0; i < 3; i++ {
		job, err := domain.NewJob("audio/a.m4a", 60, 100)
		require.NoError(t, err)
		h.jobs.Put(job)
	}

	resp := h.do(t, http.MethodGet, "/api/jobs?limit=2", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.JobListResponse](t, resp)
	assert.Len(t, body.Jobs, 2)
}

func TestRegenerateNote(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	transcriptID := uuid.New()
	job, err := domain.NewJob("audio/a.m4a", 60, 100)
	require.NoError(t, err)
	job.Status = domain.JobStatusCompleted
	job.NoteStatus = domain.NoteStatusError
	job.NoteCanRetry = true
	job.TranscriptID = &transcriptID
	h.jobs.Put(job)

	resp := h.do(t, http.MethodPost, "/api/jobs/"+job.ID.String()+"/note", nil, true)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decodeBody[api.JobResponse](t, resp)
	assert.Equal(t, "generating_note", body.Status)
}

func TestRegenerateNoteNotEligible(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	job, err := domain.NewJob("audio/a.m4a", 60, 100)
	require.NoError(t, err)
	h.jobs.Put(job)

	resp := h.do(t, http.MethodPost, "/api/jobs/"+job.ID.String()+"/note", nil, true)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetTranscript(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	transcript, err := domain.NewTranscript("hello world", "https://signed/a.wav", 60000, nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.transcripts.Create(context.Background(), transcript))

	resp := h.do(t, http.MethodGet, "/api/transcripts/"+transcript.ID.String(), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.TranscriptResponse](t, resp)
	assert.Equal(t, "hello world", body.Text)
	assert.Equal(t, int64(60000), body.DurationMS)
}

func TestGetNote(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	note, err := domain.NewStudyNote(
		uuid.New(),
		"Title", "Summary",
		[]string{"k1", "k2", "k3", "k4"},
		[]string{"a1", "a2"},
		[]string{"q1", "q2", "q3"},
		domain.NoteMetadata{JobID: uuid.New(), Provider: "gpt", Attempts: 1},
	)
	require.NoError(t, err)
	require.NoError(t, h.notes.Create(context.Background(), note))

	resp := h.do(t, http.MethodGet, "/api/notes/"+note.ID.String(), nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[api.NoteResponse](t, resp)
	assert.Equal(t, "Title", body.Title)
	assert.Equal(t, "gpt", body.Provider)
	assert.Len(t, body.KeyPoints, 4)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/api/jobs", nil, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := newAPIHarness(t)

	resp := h.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
