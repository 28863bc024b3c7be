package canvaslease

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Session is the per-client composition root: one editor joined to one
// canvas. It wires the mutation path, the ownership manager, the selection
// manager, and the history engine together, and owns their teardown. State
// is constructed per session and torn down explicitly; nothing lives at
// module level.
type Session struct {
	store     ObjectStore
	actor     Actor
	options   options
	mutator   *Mutator
	ownership *OwnershipManager
	selection *SelectionManager
	history   *HistoryEngine

	mu     sync.Mutex
	closed bool
}

// NewSession creates a session for the given actor on the given store.
func NewSession(store ObjectStore, actor Actor, opts ...Option) *Session {
	var options = defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	var (
		mutator   = newMutator(store, actor, options)
		ownership = newOwnershipManager(store, actor, options)
		selection = newSelectionManager(ownership, options)
		editable  = func(obj *CanvasObject) bool {
			if obj.LockedBy == "" || obj.LockedBy == actor.ID {
				return true
			}
			return time.Since(obj.LockedAt) > options.staleAfter
		}
		history = newHistoryEngine(mutator.Silent(), actor, editable, options)
	)

	// Live edits feed the history engine; replay runs through the silent
	// mutator and stays off the stack.
	mutator.onRecord = history.RecordAction

	return &Session{
		store:     store,
		actor:     actor,
		options:   options,
		mutator:   mutator,
		ownership: ownership,
		selection: selection,
		history:   history,
	}
}

// Ownership returns the session's ownership manager.
func (s *Session) Ownership() *OwnershipManager { return s.ownership }

// Selection returns the session's selection manager.
func (s *Session) Selection() *SelectionManager { return s.selection }

// History returns the session's history engine.
func (s *Session) History() *HistoryEngine { return s.history }

// Mutator returns the session's recording mutation path.
func (s *Session) Mutator() *Mutator { return s.mutator }

// Actor returns the authenticated user behind the session.
func (s *Session) Actor() Actor { return s.actor }

// CanEdit reports whether the object may be edited by this user: it is
// unlocked, locked by this user, or its lock has gone stale.
func (s *Session) CanEdit(ctx context.Context, objectID string) bool {
	var obj, err = s.store.Get(ctx, objectID)
	if err != nil || obj == nil {
		return false
	}
	return s.editableNow(obj)
}

func (s *Session) editableNow(obj *CanvasObject) bool {
	if obj.LockedBy == "" || obj.LockedBy == s.actor.ID {
		return true
	}
	return time.Since(obj.LockedAt) > s.options.staleAfter
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Objects returns the live object map, keyed by id. This is the snapshot
// undo/redo validates replay against.
func (s *Session) Objects(ctx context.Context) (map[string]*CanvasObject, error) {
	var objects, err = s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	var byID = make(map[string]*CanvasObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}
	return byID, nil
}

// CreateObject persists a new object through the recording mutation path.
func (s *Session) CreateObject(ctx context.Context, obj *CanvasObject) (string, error) {
	if s.isClosed() {
		return "", ErrSessionClosed
	}
	return s.mutator.CreateObject(ctx, obj)
}

// UpdateObject applies an edit gesture to one object. When this client
// holds the object's lease the gesture also extends it, resetting the
// auto-expire clock. Editing an object another user holds a live lock on
// is refused.
func (s *Session) UpdateObject(ctx context.Context, objectID string, fields Fields) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if s.ownership.IsOwnedByMe(objectID) {
		s.ownership.Extend(objectID)
	} else if err := s.checkRemoteLock(ctx, objectID); err != nil {
		return err
	}
	return s.mutator.UpdateObject(ctx, objectID, fields)
}

// DeleteObject removes an object through the recording mutation path.
func (s *Session) DeleteObject(ctx context.Context, objectID string) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if !s.ownership.IsOwnedByMe(objectID) {
		if err := s.checkRemoteLock(ctx, objectID); err != nil {
			return err
		}
	}
	return s.mutator.DeleteObject(ctx, objectID)
}

// checkRemoteLock refuses an edit on an object another user holds a live
// lock on. Missing objects and read failures fall through to the mutation
// path, which owns those errors.
func (s *Session) checkRemoteLock(ctx context.Context, objectID string) error {
	var obj, err = s.store.Get(ctx, objectID)
	if err != nil || obj == nil {
		return nil
	}
	if !s.editableNow(obj) {
		return fmt.Errorf("object %s: %w", objectID, ErrLeaseUnavailable)
	}
	return nil
}

// Undo replays the inverse of the most recent command against the current
// store state.
func (s *Session) Undo(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	var current, err = s.Objects(ctx)
	if err != nil {
		return err
	}
	return s.history.Undo(ctx, current)
}

// Redo replays the most recently undone command forward.
func (s *Session) Redo(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	var current, err = s.Objects(ctx)
	if err != nil {
		return err
	}
	return s.history.Redo(ctx, current)
}

// Close tears the session down. Local selection state and lease timers are
// cleared synchronously so nothing fires after teardown; the remote lease
// release is best-effort and retried in the background a bounded number of
// times without blocking the caller. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.selection.reset()
	s.ownership.close()

	var remaining = s.ownership.ReleaseAll(ctx)
	if len(remaining) > 0 {
		go s.retryRelease(remaining)
	}

	s.options.logger.Info("session closed",
		"user_id", s.actor.ID,
		"pending_releases", len(remaining))
	return nil
}

// retryRelease retries the remote unlock of leases whose release failed
// during teardown. Bounded: after the configured retries the 30s staleness
// window is the fallback that frees the objects for other clients.
func (s *Session) retryRelease(objectIDs []string) {
	for attempt := 1; attempt <= s.options.teardownRetries; attempt++ {
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)

		if s.ownership.clearRemoteLocks(context.Background(), objectIDs) {
			return
		}
	}

	s.options.logger.Warn("giving up on remote lease release, staleness window will free the objects",
		"object_ids", objectIDs)
}

// String returns a status view of the canvas as seen by this session.
func (s *Session) String() string {
	var b strings.Builder

	var undoDepth, redoDepth = s.history.Depth()
	fmt.Fprintf(&b, "Canvas session (user: %s)\n", s.actor.Name)

	var objects, err = s.store.List(context.Background())
	if err != nil {
		fmt.Fprintf(&b, "  [store unavailable: %v]\n", err)
		return b.String()
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].ID < objects[j].ID })

	fmt.Fprintf(&b, "Objects: %d | Held leases: %d | Undo: %d | Redo: %d\n",
		len(objects), len(s.ownership.Owned()), undoDepth, redoDepth)

	if len(objects) == 0 {
		b.WriteString("\n[Empty Canvas]\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, obj := range objects {
		var marker = " "
		if s.selection.IsSelected(obj.ID) {
			marker = "●"
		}

		var lockInfo = "free"
		if obj.LockedBy != "" {
			lockInfo = "locked-by:" + obj.LockedBy
		}
		if expiry, held := s.ownership.LeaseExpiry(obj.ID); held {
			lockInfo += fmt.Sprintf(" ttl:%s", time.Until(expiry).Round(time.Second))
		}

		fmt.Fprintf(&b, " %s %-28s %-9s (%.0f,%.0f)  %s\n",
			marker, obj.ID, obj.Type, obj.X, obj.Y, lockInfo)
	}

	if d := s.history.UndoDescription(); d != "" {
		fmt.Fprintf(&b, "\n%s", d)
	}
	if d := s.history.RedoDescription(); d != "" {
		fmt.Fprintf(&b, " | %s", d)
	}
	b.WriteString("\n")

	return b.String()
}
