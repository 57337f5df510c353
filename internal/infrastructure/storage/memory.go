package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	billingapp "github.com/erp/billing/internal/application/billing"
)

var _ billingapp.DocumentStore = (*MemoryDocumentStore)(nil)

// MemoryDocumentStore is an in-process DocumentStore for development and tests.
// Presigned URLs point at BaseURL and are never served.
type MemoryDocumentStore struct {
	BaseURL string
	Expiry  time.Duration

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		BaseURL: "https://storage.invalid",
		Expiry:  15 * time.Minute,
		objects: make(map[string][]byte),
	}
}

// PresignUpload returns a fake upload URL for key.
func (s *MemoryDocumentStore) PresignUpload(_ context.Context, key, _ string) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrEmptyKey
	}
	expiresAt := time.Now().Add(s.Expiry)
	return s.BaseURL + "/upload/" + url.PathEscape(key) + "?expires=" + expiresAt.UTC().Format(time.RFC3339), expiresAt, nil
}

// Exists reports whether key was uploaded.
func (s *MemoryDocumentStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Upload stores data under key.
func (s *MemoryDocumentStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}
