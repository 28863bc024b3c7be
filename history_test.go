package canvaslease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEngine(t *testing.T) {
	var (
		newCtx = func() context.Context {
			return context.Background()
		}
		// newEngine wires a mutator and an engine the way a session does:
		// live edits record onto the stack, replay runs silently.
		newEngine = func(store ObjectStore, user string, opts ...Option) (*HistoryEngine, *Mutator) {
			var (
				o        = testOptions(opts...)
				actor    = Actor{ID: user, Name: user}
				mutator  = newMutator(store, actor, o)
				editable = func(obj *CanvasObject) bool {
					return obj.LockedBy == "" || obj.LockedBy == user || time.Since(obj.LockedAt) > o.staleAfter
				}
			)
			var engine = newHistoryEngine(mutator.Silent(), actor, editable, o)
			mutator.onRecord = engine.RecordAction
			return engine, mutator
		}
		objectsOf = func(t *testing.T, store ObjectStore) map[string]*CanvasObject {
			t.Helper()
			var list, err = store.List(context.Background())
			require.NoError(t, err)
			var objects = make(map[string]*CanvasObject, len(list))
			for _, obj := range list {
				objects[obj.ID] = obj
			}
			return objects
		}
	)

	t.Run("should undo a move and restore the previous position", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 10, 10, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 100.0, FieldY: 120.0}))
		require.Equal(t, "Undo: Move Rectangle", sut.UndoDescription())

		// Act
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// Assert
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 10.0, obj.X)
		assert.Equal(t, 10.0, obj.Y)

		assert.False(t, sut.CanUndo())
		assert.True(t, sut.CanRedo())
		assert.Equal(t, "Redo: Move Rectangle", sut.RedoDescription())
	})

	t.Run("should redo an undone move", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 10, 10, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 100.0}))
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// Act
		require.NoError(t, sut.Redo(ctx, objectsOf(t, store)))

		// Assert
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 100.0, obj.X)
		assert.True(t, sut.CanUndo())
		assert.False(t, sut.CanRedo())
	})

	t.Run("should evict the oldest command past the stack capacity", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 0, 0, 50, 50))

		// Act: six moves onto a five-entry stack
		for i := 1; i <= 6; i++ {
			require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: float64(i * 10)}))
		}

		// Assert
		undoDepth, _ := sut.Depth()
		assert.Equal(t, 5, undoDepth)

		// Unwinding everything stops at the first surviving command's state
		for sut.CanUndo() {
			require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))
		}
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 10.0, obj.X, "the first move fell off the stack and stays applied")
	})

	t.Run("should clear the redo stack when a new action is recorded", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 0, 0, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 10.0}))
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))
		require.True(t, sut.CanRedo())

		// Act
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 99.0}))

		// Assert
		assert.False(t, sut.CanRedo())
		assert.Empty(t, sut.RedoDescription())
	})

	t.Run("should recreate a deleted object with its original id", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		id, err := mutator.CreateObject(ctx, &CanvasObject{Type: TypeCircle, X: 30, Y: 40, Radius: 25, Fill: "#3498db"})
		require.NoError(t, err)

		created, err := store.Get(ctx, id)
		require.NoError(t, err)
		var want = SnapshotOf(created)

		// Act: undo removes it, redo brings it back
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))
		gone, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Nil(t, gone)

		require.NoError(t, sut.Redo(ctx, objectsOf(t, store)))

		// Assert
		restored, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, restored, "the recreated object keeps its id")
		assert.Equal(t, *want, *SnapshotOf(restored))
	})

	t.Run("should restore a deleted object on undo", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 10, 20, 50, 60))
		require.NoError(t, mutator.DeleteObject(ctx, "r1"))
		require.Equal(t, "Undo: Delete Rectangle", sut.UndoDescription())

		// Act
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// Assert
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, obj)
		assert.Equal(t, 10.0, obj.X)
		assert.Equal(t, 50.0, obj.Width)
	})

	t.Run("should block undoing a create when the object is already gone", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			messages     []string
			sut, mutator = newEngine(store, "alice", WithErrorSink(func(message string) {
				messages = append(messages, message)
			}))
		)
		id, err := mutator.CreateObject(ctx, &CanvasObject{Type: TypeRectangle, Width: 10, Height: 10})
		require.NoError(t, err)

		// Someone else already removed it
		require.NoError(t, store.Delete(ctx, id))

		// Act
		err = sut.Undo(ctx, objectsOf(t, store))

		// Assert: blocked, reported, and retryable
		require.ErrorIs(t, err, ErrReplayBlocked)
		assert.Contains(t, messages, "Cannot undo create: object no longer exists")

		undoDepth, redoDepth := sut.Depth()
		assert.Equal(t, 1, undoDepth)
		assert.Equal(t, 0, redoDepth)
	})

	t.Run("should block replay onto an object locked by another user", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			messages     []string
			sut, mutator = newEngine(store, "alice", WithErrorSink(func(message string) {
				messages = append(messages, message)
			}))
		)
		seedObjects(t, store, newRect("r1", 0, 0, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 100.0}))

		// Bob grabs the object before the undo
		require.NoError(t, store.Write(ctx, "r1", lockFields("bob", time.Now())))

		// Act
		var err = sut.Undo(ctx, objectsOf(t, store))

		// Assert
		require.ErrorIs(t, err, ErrReplayBlocked)
		assert.Contains(t, messages, "Cannot undo move: object is locked by another user")
		assert.True(t, sut.CanUndo(), "a blocked undo is retryable")

		obj, getErr := store.Get(ctx, "r1")
		require.NoError(t, getErr)
		assert.Equal(t, 100.0, obj.X, "no write may happen on a blocked replay")
	})

	t.Run("should block redoing a create when the object was recreated", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		id, err := mutator.CreateObject(ctx, &CanvasObject{Type: TypeStar, InnerRadius: 10, OuterRadius: 20})
		require.NoError(t, err)
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// A concurrent editor recreated the same id in the meantime
		seedObjects(t, store, newRect(id, 0, 0, 5, 5))

		// Act & Assert
		require.ErrorIs(t, sut.Redo(ctx, objectsOf(t, store)), ErrReplayBlocked)
		assert.True(t, sut.CanRedo())
	})

	t.Run("should leave both stacks unchanged when the replay write fails", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			inner        = NewMemoryStore()
			store        = &failingStore{ObjectStore: inner}
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, inner, newRect("r1", 0, 0, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 100.0}))
		store.setFailWrites(true)

		// Act
		var err = sut.Undo(ctx, objectsOf(t, inner))

		// Assert: the failure does not consume the command
		require.Error(t, err)
		assert.True(t, sut.CanUndo())
		assert.False(t, sut.CanRedo())

		// The same undo succeeds once the store recovers
		store.setFailWrites(false)
		require.NoError(t, sut.Undo(ctx, objectsOf(t, inner)))
		obj, getErr := inner.Get(ctx, "r1")
		require.NoError(t, getErr)
		assert.Equal(t, 0.0, obj.X)
	})

	t.Run("should keep a command recorded during replay at the head", func(t *testing.T) {
		// Arrange
		var (
			ctx     = newCtx()
			store   = NewMemoryStore()
			o       = testOptions()
			actor   = Actor{ID: "alice", Name: "Alice"}
			mutator = newMutator(store, actor, o)
			path    = &interleavingPath{MutationPath: mutator.Silent()}
		)
		var sut = newHistoryEngine(path, actor, func(*CanvasObject) bool { return true }, o)
		mutator.onRecord = sut.RecordAction

		seedObjects(t, store, newRect("r1", 0, 0, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 100.0}))

		// Another goroutine's edit lands while the undo replay is in flight
		path.beforeUpdate = func() {
			path.beforeUpdate = nil
			var (
				before = SnapshotOf(newRect("r2", 0, 0, 10, 10))
				after  = SnapshotOf(newRect("r2", 5, 0, 10, 10))
			)
			sut.RecordAction(CommandMove, "r2", before, after, nil)
		}

		// Act
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// Assert: the interleaved command is not discarded
		undoDepth, redoDepth := sut.Depth()
		assert.Equal(t, 2, undoDepth)
		assert.Equal(t, 0, redoDepth)
		assert.Equal(t, "Undo: Move Rectangle", sut.UndoDescription())

		// The replay itself still happened
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 0.0, obj.X)
	})

	t.Run("should report an empty undo stack through the error sink", func(t *testing.T) {
		// Arrange
		var (
			store    = NewMemoryStore()
			messages []string
			sut, _   = newEngine(store, "alice", WithErrorSink(func(message string) {
				messages = append(messages, message)
			}))
		)

		// Act & Assert
		require.ErrorIs(t, sut.Undo(newCtx(), nil), ErrNothingToUndo)
		require.ErrorIs(t, sut.Redo(newCtx(), nil), ErrNothingToRedo)
		assert.Equal(t, []string{"Nothing to undo", "Nothing to redo"}, messages)
	})

	t.Run("should drop recorded actions without an authenticated user", func(t *testing.T) {
		// Arrange
		var (
			store  = NewMemoryStore()
			o      = testOptions()
			sut    = newHistoryEngine(newMutator(store, Actor{}, o), Actor{}, func(*CanvasObject) bool { return true }, o)
			before = SnapshotOf(newRect("r1", 0, 0, 10, 10))
		)

		// Act
		sut.RecordAction(CommandMove, "r1", before, before, nil)

		// Assert
		assert.False(t, sut.CanUndo())
	})

	t.Run("should drop both stacks on clear", func(t *testing.T) {
		// Arrange
		var (
			ctx          = newCtx()
			store        = NewMemoryStore()
			sut, mutator = newEngine(store, "alice")
		)
		seedObjects(t, store, newRect("r1", 0, 0, 50, 50))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 10.0}))
		require.NoError(t, mutator.UpdateObject(ctx, "r1", Fields{FieldX: 20.0}))
		require.NoError(t, sut.Undo(ctx, objectsOf(t, store)))

		// Act
		sut.ClearHistory()

		// Assert
		undoDepth, redoDepth := sut.Depth()
		assert.Zero(t, undoDepth)
		assert.Zero(t, redoDepth)
		assert.Empty(t, sut.UndoDescription())
	})
}

func TestMutator(t *testing.T) {
	var ctx = context.Background()

	t.Run("should classify updates by the touched fields", func(t *testing.T) {
		assert.Equal(t, CommandResize, classifyUpdate(Fields{FieldWidth: 10.0, FieldX: 5.0}))
		assert.Equal(t, CommandResize, classifyUpdate(Fields{FieldRadius: 10.0}))
		assert.Equal(t, CommandRotate, classifyUpdate(Fields{FieldRotation: 45.0}))
		assert.Equal(t, CommandMove, classifyUpdate(Fields{FieldX: 1.0, FieldY: 2.0}))
		assert.Equal(t, CommandUpdateProperties, classifyUpdate(Fields{FieldFill: "#fff"}))
	})

	t.Run("should stamp modification metadata on every write", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore()
			sut   = newMutator(store, Actor{ID: "alice", Name: "Alice"}, testOptions())
		)
		seedObjects(t, store, newRect("r1", 0, 0, 10, 10))

		// Act
		require.NoError(t, sut.UpdateObject(ctx, "r1", Fields{FieldX: 5.0}))

		// Assert
		obj, err := store.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "alice", obj.LastModifiedBy)
		assert.WithinDuration(t, time.Now(), obj.LastModifiedAt, time.Second)
	})

	t.Run("should reject a mistyped field value without writing or recording", func(t *testing.T) {
		// Arrange
		var (
			recorded int
			store    = NewMemoryStore()
			sut      = newMutator(store, Actor{ID: "alice"}, testOptions())
		)
		seedObjects(t, store, newRect("r1", 10, 0, 10, 10))
		sut.onRecord = func(CommandType, string, *Snapshot, *Snapshot, map[string]any) {
			recorded++
		}

		// Act: an int where float64 is expected
		var err = sut.UpdateObject(ctx, "r1", Fields{FieldX: 100})

		// Assert: refused with an error, never a panic
		require.Error(t, err)
		assert.Zero(t, recorded)

		obj, getErr := store.Get(ctx, "r1")
		require.NoError(t, getErr)
		assert.Equal(t, 10.0, obj.X)
	})

	t.Run("should refuse mutations without an authenticated user", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore()
			sut   = newMutator(store, Actor{}, testOptions())
		)
		seedObjects(t, store, newRect("r1", 0, 0, 10, 10))

		// Act & Assert
		_, err := sut.CreateObject(ctx, newRect("r2", 0, 0, 10, 10))
		assert.ErrorIs(t, err, ErrMissingActor)
		assert.ErrorIs(t, sut.UpdateObject(ctx, "r1", Fields{FieldX: 1.0}), ErrMissingActor)
		assert.ErrorIs(t, sut.DeleteObject(ctx, "r1"), ErrMissingActor)
	})

	t.Run("should treat deleting a missing object as a no-op", func(t *testing.T) {
		// Arrange
		var (
			recorded int
			sut      = newMutator(NewMemoryStore(), Actor{ID: "alice"}, testOptions())
		)
		sut.onRecord = func(CommandType, string, *Snapshot, *Snapshot, map[string]any) {
			recorded++
		}

		// Act & Assert
		require.NoError(t, sut.DeleteObject(ctx, "ghost"))
		assert.Zero(t, recorded)
	})

	t.Run("should survive a panicking recorded-action sink", func(t *testing.T) {
		// Arrange
		var (
			store = NewMemoryStore()
			sut   = newMutator(store, Actor{ID: "alice"}, testOptions())
		)
		sut.onRecord = func(CommandType, string, *Snapshot, *Snapshot, map[string]any) {
			panic("sink exploded")
		}

		// Act
		id, err := sut.CreateObject(ctx, &CanvasObject{Type: TypeRectangle, Width: 10, Height: 10})

		// Assert
		require.NoError(t, err)
		obj, getErr := store.Get(ctx, id)
		require.NoError(t, getErr)
		assert.NotNil(t, obj)
	})

	t.Run("should not record through a silent clone", func(t *testing.T) {
		// Arrange
		var (
			recorded int
			store    = NewMemoryStore()
			sut      = newMutator(store, Actor{ID: "alice"}, testOptions())
		)
		sut.onRecord = func(CommandType, string, *Snapshot, *Snapshot, map[string]any) {
			recorded++
		}

		// Act
		var _, err = sut.Silent().CreateObject(ctx, &CanvasObject{Type: TypeCircle, Radius: 5})

		// Assert
		require.NoError(t, err)
		assert.Zero(t, recorded)
	})
}
