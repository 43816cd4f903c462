package blob

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and the /test endpoint.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// FailPuts makes every Put fail; tests use it to exercise the
	// persistence-failure branch of the pipeline.
	FailPuts error
}

type memoryObject struct {
	content     []byte
	contentType string
	uploaded    time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

// Get returns a copy of the stored content.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), o.content...), nil
}

// Put stores a copy of content under key.
func (s *MemoryStore) Put(ctx context.Context, key string, content []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPuts != nil {
		return s.FailPuts
	}
	s.objects[key] = memoryObject{
		content:     append([]byte(nil), content...),
		contentType: contentType,
		uploaded:    time.Now().UTC(),
	}
	return nil
}

// List returns objects under prefix, newest first.
func (s *MemoryStore) List(ctx context.Context, prefix string, limit int) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var objects []Object
	for key, o := range s.objects {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, Object{Key: key, Uploaded: o.uploaded})
		}
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Uploaded.After(objects[j].Uploaded)
	})
	if limit > 0 && len(objects) > limit {
		objects = objects[:limit]
	}
	return objects, nil
}
