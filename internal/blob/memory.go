package blob

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests. Optional hook functions
// let tests inject failures per operation.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	SaveFn      func(ctx context.Context, path string, data []byte, contentType string) error
	DownloadFn  func(ctx context.Context, path string, dest string) error
	SignedURLFn func(ctx context.Context, path string, ttl time.Duration) (string, error)
	DeleteFn    func(ctx context.Context, path string) error
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// Save implements Store.Save.
func (s *MemoryStore) Save(ctx context.Context, path string, data []byte, contentType string) error {
	if s.SaveFn != nil {
		return s.SaveFn(ctx, path, data, contentType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[path] = buf
	return nil
}

// Download implements Store.Download.
func (s *MemoryStore) Download(ctx context.Context, path string, dest string) error {
	if s.DownloadFn != nil {
		return s.DownloadFn(ctx, path, dest)
	}

	s.mu.Lock()
	data, ok := s.objects[path]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("blob not found: %s", path)
	}
	return os.WriteFile(dest, data, 0o644)
}

// SignedURL implements Store.SignedURL.
func (s *MemoryStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if s.SignedURLFn != nil {
		return s.SignedURLFn(ctx, path, ttl)
	}
	return fmt.Sprintf("memory://%s?expires=%d", path, int64(ttl.Seconds())), nil
}

// Delete implements Store.Delete. Deleting a missing object is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Get returns the stored bytes at path, for test assertions.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len returns the number of stored objects, for test assertions.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
