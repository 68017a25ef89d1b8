package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/lectio/lectio-api/internal/domain"
	"github.com/lectio/lectio-api/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// JobHandler handles job, transcript, and study-note API requests.
type JobHandler struct {
	jobs        store.JobStore
	transcripts store.TranscriptStore
	notes       store.NoteStore
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewJobHandler creates a new JobHandler with the given dependencies.
func NewJobHandler(
	jobs store.JobStore,
	transcripts store.TranscriptStore,
	notes store.NoteStore,
	logger *slog.Logger,
) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{
		jobs:        jobs,
		transcripts: transcripts,
		notes:       notes,
		validator:   validator.New(),
		logger:      logger,
	}
}

// CreateJob handles POST /jobs. The audio object must already be present in
// the blob store; the new job enters the uploaded state, which triggers a
// pipeline run.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest

	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	job, err := domain.NewJob(req.AudioPath, req.DurationSeconds, req.ApproxSizeBytes)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid job data: "+err.Error())
		return
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), "Failed to create job", err)
		return
	}

	h.logger.Info("job created",
		"job_id", job.ID,
		"audio_path", job.AudioPath,
		"duration_seconds", job.DurationSeconds)

	RespondWithJSON(w, r, http.StatusCreated, NewJobResponse(job))
}

// GetJob handles GET /jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewJobResponse(job))
}

// ListJobs handles GET /jobs. Supports limit and offset query parameters.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), "Failed to list jobs", err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, NewJobResponse(job))
	}

	RespondWithJSON(w, r, http.StatusOK, resp)
}

// RegenerateNote handles POST /jobs/{id}/note. It requests a fresh
// note-generation run for a completed job whose note stage failed.
func (h *JobHandler) RegenerateNote(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	granted, err := h.jobs.RequestNoteRegeneration(r.Context(), id)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}
	if !granted {
		RespondWithError(w, r, http.StatusConflict,
			"Job is not eligible for note regeneration")
		return
	}

	h.logger.Info("note regeneration requested", "job_id", id)

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	RespondWithJSON(w, r, http.StatusAccepted, NewJobResponse(job))
}

// GetTranscript handles GET /transcripts/{id}.
func (h *JobHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	transcript, err := h.transcripts.GetByID(r.Context(), id)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewTranscriptResponse(transcript))
}

// GetNote handles GET /notes/{id}.
func (h *JobHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	note, err := h.notes.GetByID(r.Context(), id)
	if err != nil {
		RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	RespondWithJSON(w, r, http.StatusOK, NewNoteResponse(note))
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
