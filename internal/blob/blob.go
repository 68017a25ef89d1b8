// Package blob defines the abstract file store the pipeline depends on.
// Implementations live under internal/platform.
package blob

import (
	"context"
	"time"
)

// Store is the persistent byte store for audio: source files, temporary
// chunk uploads, and signed read access for clients.
// Version: 1.0
type Store interface {
	// Save stores data at the given path with the given content type,
	// overwriting any existing object.
	Save(ctx context.Context, path string, data []byte, contentType string) error

	// Download copies the object at path into the local file at dest.
	Download(ctx context.Context, path string, dest string) error

	// SignedURL returns a time-limited read URL for the object at path.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Delete removes the object at path. Deleting an object that does not
	// exist is not an error.
	Delete(ctx context.Context, path string) error
}
