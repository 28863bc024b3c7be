package canvaslease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newRect returns a rectangle object for tests.
func newRect(id string, x, y, w, h float64) *CanvasObject {
	return &CanvasObject{
		ID:     id,
		Type:   TypeRectangle,
		X:      x,
		Y:      y,
		Width:  w,
		Height: h,
		Fill:   "#cccccc",
	}
}

// seedObjects creates the given objects in the store.
func seedObjects(t *testing.T, store ObjectStore, objects ...*CanvasObject) {
	t.Helper()
	for _, obj := range objects {
		require.NoError(t, store.Create(context.Background(), obj))
	}
}

// lockedBy marks an object as locked by another user at the given time.
func lockedBy(obj *CanvasObject, userID string, at time.Time) *CanvasObject {
	obj.LockedBy = userID
	obj.LockedAt = at
	return obj
}

// failingStore wraps a store and fails selected operations.
type failingStore struct {
	ObjectStore
	mu         sync.Mutex
	failWrites bool
	failBatch  bool
	failCreate bool
}

func (f *failingStore) setFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

func (f *failingStore) Write(ctx context.Context, objectID string, fields Fields) error {
	f.mu.Lock()
	var fail = f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("store write rejected")
	}
	return f.ObjectStore.Write(ctx, objectID, fields)
}

func (f *failingStore) BatchWrite(ctx context.Context, objectIDs []string, fields Fields) error {
	f.mu.Lock()
	var fail = f.failBatch || f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("store batch write rejected")
	}
	return f.ObjectStore.BatchWrite(ctx, objectIDs, fields)
}

func (f *failingStore) Create(ctx context.Context, obj *CanvasObject) error {
	f.mu.Lock()
	var fail = f.failCreate
	f.mu.Unlock()
	if fail {
		return errors.New("store create rejected")
	}
	return f.ObjectStore.Create(ctx, obj)
}

// hookStore runs a callback just before each single-object write.
type hookStore struct {
	ObjectStore
	beforeWrite func()
}

func (h *hookStore) Write(ctx context.Context, objectID string, fields Fields) error {
	if h.beforeWrite != nil {
		h.beforeWrite()
	}
	return h.ObjectStore.Write(ctx, objectID, fields)
}

// interleavingPath wraps a mutation path and runs a callback before each
// update, simulating work that lands mid-replay.
type interleavingPath struct {
	MutationPath
	beforeUpdate func()
}

func (p *interleavingPath) UpdateObject(ctx context.Context, objectID string, fields Fields) error {
	if p.beforeUpdate != nil {
		p.beforeUpdate()
	}
	return p.MutationPath.UpdateObject(ctx, objectID, fields)
}

// countingStore counts remote traffic per operation.
type countingStore struct {
	ObjectStore
	mu          sync.Mutex
	writes      int
	batchWrites int
}

func (c *countingStore) Write(ctx context.Context, objectID string, fields Fields) error {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.ObjectStore.Write(ctx, objectID, fields)
}

func (c *countingStore) BatchWrite(ctx context.Context, objectIDs []string, fields Fields) error {
	c.mu.Lock()
	c.batchWrites++
	c.mu.Unlock()
	return c.ObjectStore.BatchWrite(ctx, objectIDs, fields)
}

func (c *countingStore) counts() (writes, batchWrites int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes, c.batchWrites
}

// testOptions returns defaults tweaked for fast tests.
func testOptions(opts ...Option) options {
	var o = defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
