package canvaslease

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MutationPath is the write surface history replay shares with live edits.
type MutationPath interface {
	// CreateObject persists a new object, honoring a pre-assigned ID.
	CreateObject(ctx context.Context, obj *CanvasObject) (string, error)

	// UpdateObject applies a partial field update.
	UpdateObject(ctx context.Context, objectID string, fields Fields) error

	// DeleteObject removes an object.
	DeleteObject(ctx context.Context, objectID string) error
}

// HistoryEngine records reversible commands on a bounded per-user stack and
// replays them, forward or backward, through the mutation path. Replay is
// two-phase: the live object state is checked against the command's
// expectations before any write happens, so undo/redo can never silently
// clobber another user's concurrent edit. A failed or blocked replay leaves
// both stacks unchanged; undo and redo are retryable, not consumed on
// failure.
type HistoryEngine struct {
	mu       sync.Mutex
	actor    Actor
	options  options
	mutator  MutationPath
	editable func(obj *CanvasObject) bool
	undo     []*Command // most-recent-first
	redo     []*Command // most-recent-first
}

// newHistoryEngine creates an engine with empty stacks. The editable
// predicate decides whether a live object may be touched by this user.
func newHistoryEngine(mutator MutationPath, actor Actor, editable func(obj *CanvasObject) bool, opts options) *HistoryEngine {
	return &HistoryEngine{
		actor:    actor,
		options:  opts,
		mutator:  mutator,
		editable: editable,
	}
}

// RecordAction pushes a new command onto the undo stack, evicting the
// oldest entry beyond the capacity bound, and unconditionally clears the
// redo stack. Recording never fails: with no authenticated actor it warns
// and drops the command rather than blocking the mutation that triggered
// it.
func (h *HistoryEngine) RecordAction(cmdType CommandType, objectID string, before, after *Snapshot, metadata map[string]any) {
	if h.actor.ID == "" {
		h.options.logger.Warn("recordAction without authenticated user, dropping command",
			"type", cmdType,
			"object_id", objectID)
		return
	}

	var objType ObjectType
	if after != nil {
		objType = after.Type
	} else if before != nil {
		objType = before.Type
	}

	var cmd = &Command{
		ID:          ulid.Make().String(),
		Type:        cmdType,
		UserID:      h.actor.ID,
		Timestamp:   time.Now(),
		ObjectID:    objectID,
		Before:      before,
		After:       after,
		Description: describeCommand(cmdType, objType, before, after),
		Metadata:    metadata,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = pushCapped(h.undo, cmd, h.options.historyLimit)
	h.redo = nil
}

// Undo replays the inverse of the most recent command against the live
// object map. On success the command moves to the head of the redo stack.
// Blocked or failed replays are reported through the error sink and leave
// both stacks unchanged.
func (h *HistoryEngine) Undo(ctx context.Context, current map[string]*CanvasObject) error {
	h.mu.Lock()
	if len(h.undo) == 0 {
		h.mu.Unlock()
		return h.report(ErrNothingToUndo, "Nothing to undo")
	}
	var cmd = h.undo[0]
	h.mu.Unlock()

	if err := h.checkReplay("undo", cmd, cmd.Before, current); err != nil {
		return err
	}

	if err := h.replay(ctx, cmd, cmd.Before); err != nil {
		return h.report(err, fmt.Sprintf("Undo failed: %v", err))
	}

	h.mu.Lock()
	// A command recorded while the replay was in flight owns the head now;
	// pop only when the head is still the replayed command.
	if len(h.undo) > 0 && h.undo[0] == cmd {
		h.undo = h.undo[1:]
		h.redo = pushCapped(h.redo, cmd, h.options.historyLimit)
	}
	h.mu.Unlock()
	return nil
}

// Redo replays the most recently undone command forward. On success the
// command moves back to the head of the undo stack.
func (h *HistoryEngine) Redo(ctx context.Context, current map[string]*CanvasObject) error {
	h.mu.Lock()
	if len(h.redo) == 0 {
		h.mu.Unlock()
		return h.report(ErrNothingToRedo, "Nothing to redo")
	}
	var cmd = h.redo[0]
	h.mu.Unlock()

	if err := h.checkReplay("redo", cmd, cmd.After, current); err != nil {
		return err
	}

	if err := h.replay(ctx, cmd, cmd.After); err != nil {
		return h.report(err, fmt.Sprintf("Redo failed: %v", err))
	}

	h.mu.Lock()
	// A record during the replay clears the redo stack entirely; move the
	// command only when it still sits at the head.
	if len(h.redo) > 0 && h.redo[0] == cmd {
		h.redo = h.redo[1:]
		h.undo = pushCapped(h.undo, cmd, h.options.historyLimit)
	}
	h.mu.Unlock()
	return nil
}

// CanUndo reports whether the undo stack is non-empty.
func (h *HistoryEngine) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo) > 0
}

// CanRedo reports whether the redo stack is non-empty.
func (h *HistoryEngine) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo) > 0
}

// UndoDescription returns e.g. "Undo: Move Rectangle" for the head of the
// undo stack, or an empty string when there is nothing to undo.
func (h *HistoryEngine) UndoDescription() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return ""
	}
	return "Undo: " + h.undo[0].Description
}

// RedoDescription returns e.g. "Redo: Move Rectangle" for the head of the
// redo stack, or an empty string when there is nothing to redo.
func (h *HistoryEngine) RedoDescription() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return ""
	}
	return "Redo: " + h.redo[0].Description
}

// Depth returns the sizes of the undo and redo stacks.
func (h *HistoryEngine) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}

// ClearHistory drops both stacks.
func (h *HistoryEngine) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = nil
	h.redo = nil
}

// checkReplay is the permission phase: given the snapshot about to be
// applied, decide whether replay is safe against the live object map.
// Applying a nil snapshot deletes the object (it must exist and be
// editable); recreating from a DELETE/CREATE boundary requires the object
// to be absent; every other replay requires the object to exist and not be
// locked by another user.
func (h *HistoryEngine) checkReplay(verb string, cmd *Command, applied *Snapshot, current map[string]*CanvasObject) error {
	var (
		obj, exists = current[cmd.ObjectID]
		what        = fmt.Sprintf("%s %s", verb, strings.ToLower(string(cmd.Type)))
	)

	// A nil snapshot means this replay deletes the object.
	if applied == nil {
		if !exists {
			return h.report(ErrReplayBlocked, fmt.Sprintf("Cannot %s: object no longer exists", what))
		}
		if !h.editable(obj) {
			return h.report(ErrReplayBlocked, fmt.Sprintf("Cannot %s: object is locked by another user", what))
		}
		return nil
	}

	// Recreating across a create/delete boundary requires the object to be
	// gone; anything else would conflict with a concurrent recreation.
	if cmd.Type == CommandCreate || cmd.Type == CommandDelete {
		if exists {
			return h.report(ErrReplayBlocked, fmt.Sprintf("Cannot %s: object already exists", what))
		}
		return nil
	}

	if !exists {
		return h.report(ErrReplayBlocked, fmt.Sprintf("Cannot %s: object no longer exists", what))
	}
	if !h.editable(obj) {
		return h.report(ErrReplayBlocked, fmt.Sprintf("Cannot %s: object is locked by another user", what))
	}
	return nil
}

// replay is the apply phase: dispatch the snapshot through the shared
// mutation path.
func (h *HistoryEngine) replay(ctx context.Context, cmd *Command, applied *Snapshot) error {
	if applied == nil {
		return h.mutator.DeleteObject(ctx, cmd.ObjectID)
	}
	if cmd.Type == CommandCreate || cmd.Type == CommandDelete {
		var _, err = h.mutator.CreateObject(ctx, applied.Object(cmd.ObjectID))
		return err
	}
	return h.mutator.UpdateObject(ctx, cmd.ObjectID, applied.Fields())
}

// report surfaces a failure through the error sink and returns the error.
func (h *HistoryEngine) report(err error, message string) error {
	h.options.errorSink(message)
	return fmt.Errorf("%s: %w", message, err)
}

// pushCapped prepends a command, evicting the oldest entry beyond limit.
func pushCapped(stack []*Command, cmd *Command, limit int) []*Command {
	var out = append([]*Command{cmd}, stack...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
