// Package artifact persists rendered report artifacts (HTML pages, SVG
// graphs) under opaque keys.
package artifact

import (
	"context"
	"sync"

	"github.com/depsight/depsight/pkg/errors"
)

// Store holds rendered artifacts. Keys are opaque and chosen by the caller.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Close() error
}

// MemoryStore is the default in-process artifact store.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

type object struct {
	contentType string
	data        []byte
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]object)}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[key] = object{contentType: contentType, data: buf}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New(errors.ErrCodeNotFound, "artifact %q not found", key)
	}
	return obj.data, obj.contentType, nil
}

func (s *MemoryStore) Close() error { return nil }
