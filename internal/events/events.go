// Package events decouples job state changes from the workers that react to
// them. Stores emit events after a write lands; the pipeline runner picks
// jobs up through a registered handler, without the store and the runner
// knowing about each other.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lectio/lectio-api/internal/domain"
)

// JobStatusEvent announces that a job entered a status that needs worker
// attention (a fresh upload, a fired retry, a note regeneration request).
type JobStatusEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// JobID identifies the job whose status changed
	JobID uuid.UUID `json:"job_id"`

	// Status is the status the job just entered
	Status domain.JobStatus `json:"status"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewJobStatusEvent creates a JobStatusEvent for the given job and status.
func NewJobStatusEvent(jobID uuid.UUID, status domain.JobStatus) *JobStatusEvent {
	return &JobStatusEvent{
		ID:        uuid.New(),
		JobID:     jobID,
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobStatusEvent) error
}

// EventHandlerFunc adapts a plain function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *JobStatusEvent) error

// HandleEvent calls the wrapped function.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *JobStatusEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows stores to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobStatusEvent) error
}
