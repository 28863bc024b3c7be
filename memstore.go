package canvaslease

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory ObjectStore. A single instance can be shared
// by several sessions to simulate multiple clients editing one canvas, which
// is how the scenario tests and the demo binary exercise the lease protocol.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*CanvasObject
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*CanvasObject),
	}
}

// Get returns the object, or nil when it does not exist.
func (s *MemoryStore) Get(ctx context.Context, objectID string) (*CanvasObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var obj, exists = s.objects[objectID]
	if !exists {
		return nil, nil
	}
	return obj.Clone(), nil
}

// List returns every object on the canvas.
func (s *MemoryStore) List(ctx context.Context) ([]*CanvasObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var objects = make([]*CanvasObject, 0, len(s.objects))
	for _, obj := range s.objects {
		objects = append(objects, obj.Clone())
	}
	return objects, nil
}

// Create persists a new object, honoring a pre-assigned ID.
func (s *MemoryStore) Create(ctx context.Context, obj *CanvasObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[obj.ID]; exists {
		return fmt.Errorf("object %s already exists", obj.ID)
	}
	s.objects[obj.ID] = obj.Clone()
	return nil
}

// Write applies a partial field update to one object.
func (s *MemoryStore) Write(ctx context.Context, objectID string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var obj, exists = s.objects[objectID]
	if !exists {
		return fmt.Errorf("object %s does not exist", objectID)
	}
	return applyFields(obj, fields)
}

// BatchWrite applies the same field update to several objects atomically.
func (s *MemoryStore) BatchWrite(ctx context.Context, objectIDs []string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range objectIDs {
		if _, exists := s.objects[id]; !exists {
			return fmt.Errorf("object %s does not exist", id)
		}
	}
	for _, id := range objectIDs {
		if err := applyFields(s.objects[id], fields); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes an object. Deleting a missing object is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, objectID)
	return nil
}
