package canvaslease

import (
	"context"
	"sort"
	"sync"
	"time"
)

// SelectionManager coordinates which objects the local user has selected,
// holding a lease for every member of the selection. A selection is always
// fully unwound, releasing all member leases, before a new one replaces it,
// so leases cannot leak across selection gestures.
type SelectionManager struct {
	mu        sync.Mutex
	ownership *OwnershipManager
	options   options
	selected  map[string]struct{}
	drag      *dragState
}

// dragState tracks an in-progress rectangle drag and its live preview.
type dragState struct {
	origin  Point
	current Point
	preview []string
}

// newSelectionManager creates a manager with an empty selection.
func newSelectionManager(ownership *OwnershipManager, opts options) *SelectionManager {
	return &SelectionManager{
		ownership: ownership,
		options:   opts,
		selected:  make(map[string]struct{}),
	}
}

// SelectSingle replaces the whole selection with one object. When the claim
// fails, because the object is locked by someone else or gone, the selection
// ends up empty and false is returned.
func (s *SelectionManager) SelectSingle(ctx context.Context, objectID string) bool {
	s.Clear(ctx)

	if !s.ownership.Claim(ctx, objectID) {
		return false
	}

	s.mu.Lock()
	s.selected[objectID] = struct{}{}
	s.mu.Unlock()
	return true
}

// Toggle adds or removes one object from the multi-selection. Adding
// attempts a claim; removing releases only that object's lease. It reports
// whether the object is part of the selection after the call.
func (s *SelectionManager) Toggle(ctx context.Context, objectID string) bool {
	s.mu.Lock()
	var _, selected = s.selected[objectID]
	if selected {
		delete(s.selected, objectID)
	}
	s.mu.Unlock()

	if selected {
		s.ownership.Release(ctx, objectID)
		return false
	}

	if !s.ownership.Claim(ctx, objectID) {
		return false
	}

	s.mu.Lock()
	s.selected[objectID] = struct{}{}
	s.mu.Unlock()
	return true
}

// SelectMultiple replaces the entire selection with as many of the given
// objects as can be locked, acquiring the leases in a single batched remote
// write. Objects locked by another user are silently excluded. The locked
// selection is returned.
func (s *SelectionManager) SelectMultiple(ctx context.Context, objectIDs []string) []string {
	s.Clear(ctx)

	var acquired = s.ownership.ClaimBatch(ctx, objectIDs)
	if len(acquired) == 0 {
		return nil
	}

	s.mu.Lock()
	for _, id := range acquired {
		s.selected[id] = struct{}{}
	}
	s.mu.Unlock()
	return acquired
}

// SelectAll replaces the selection with every selectable object among the
// given ids.
func (s *SelectionManager) SelectAll(ctx context.Context, objectIDs []string) []string {
	return s.SelectMultiple(ctx, objectIDs)
}

// Clear unwinds the whole selection, releasing every member lease in one
// batched write. Clearing an already-empty selection is a no-op and issues
// no remote traffic.
func (s *SelectionManager) Clear(ctx context.Context) {
	s.mu.Lock()
	if len(s.selected) == 0 {
		s.mu.Unlock()
		return
	}
	var ids = make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	s.selected = make(map[string]struct{})
	s.mu.Unlock()

	s.ownership.ReleaseBatch(ctx, ids)
}

// StartDragSelection begins a rectangle drag at the given point.
func (s *SelectionManager) StartDragSelection(origin Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drag = &dragState{origin: origin, current: origin}
}

// UpdateDragSelection moves the drag corner and recomputes the live preview
// against the candidate objects. An object is included only when its
// bounding box lies entirely within the drag rectangle (contained, not
// merely intersecting) and it is selectable by this user. The preview is
// pure local state; no leases move until the drag completes.
func (s *SelectionManager) UpdateDragSelection(current Point, candidates []*CanvasObject) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag == nil {
		return nil
	}
	s.drag.current = current

	var (
		rect    = RectFromPoints(s.drag.origin, current)
		now     = time.Now()
		preview = make([]string, 0, len(candidates))
	)
	for _, obj := range candidates {
		if !rect.Contains(BoundingBox(obj)) {
			continue
		}
		if !s.ownership.claimable(obj, now) {
			continue
		}
		preview = append(preview, obj.ID)
	}
	sort.Strings(preview)

	s.drag.preview = preview
	return preview
}

// CompleteDragSelection converts the drag preview into a locked selection,
// either replacing the existing selection or unioning with it. The locked
// selection is returned.
func (s *SelectionManager) CompleteDragSelection(ctx context.Context, addToExisting bool) []string {
	s.mu.Lock()
	if s.drag == nil {
		s.mu.Unlock()
		return s.Selected()
	}
	var preview = s.drag.preview
	s.drag = nil
	s.mu.Unlock()

	if !addToExisting {
		s.Clear(ctx)
	}

	var acquired = s.ownership.ClaimBatch(ctx, preview)

	s.mu.Lock()
	for _, id := range acquired {
		s.selected[id] = struct{}{}
	}
	s.mu.Unlock()

	return s.Selected()
}

// CancelDragSelection discards the drag preview without touching any lease.
func (s *SelectionManager) CancelDragSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drag = nil
}

// DragPreview returns the current drag preview, or nil when no drag is in
// progress.
func (s *SelectionManager) DragPreview() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag == nil {
		return nil
	}
	return append([]string(nil), s.drag.preview...)
}

// Selected returns the ids of the current selection, sorted.
func (s *SelectionManager) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids = make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reset drops local selection state without touching any lease. Teardown
// releases the leases wholesale through the ownership manager.
func (s *SelectionManager) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[string]struct{})
	s.drag = nil
}

// IsSelected reports whether the object is part of the current selection.
func (s *SelectionManager) IsSelected(objectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var _, selected = s.selected[objectID]
	return selected
}
