package canvaslease

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// RecordFunc is the recorded-action sink the mutation path invokes after a
// successful write so the history engine can build its stack.
type RecordFunc func(cmdType CommandType, objectID string, before, after *Snapshot, metadata map[string]any)

// Mutator is the mutation path shared by live edits and history replay. It
// stamps modification metadata, assigns ids to new objects, and reports
// every successful write to the optional recorded-action sink. A mutation
// succeeds even when the sink is absent or panics.
type Mutator struct {
	store    ObjectStore
	actor    Actor
	options  options
	onRecord RecordFunc
}

// newMutator creates a mutation path with no recorded-action sink.
func newMutator(store ObjectStore, actor Actor, opts options) *Mutator {
	return &Mutator{
		store:   store,
		actor:   actor,
		options: opts,
	}
}

// Silent returns a clone with recording disabled. History replay runs
// through the silent clone so that undoing does not record onto the stack
// being unwound.
func (m *Mutator) Silent() *Mutator {
	var clone = *m
	clone.onRecord = nil
	return &clone
}

// CreateObject persists a new object and returns its id. An empty id gets a
// fresh ulid; a pre-assigned id is honored, which keeps undo/redo id-stable
// when history recreates a deleted object.
func (m *Mutator) CreateObject(ctx context.Context, obj *CanvasObject) (string, error) {
	if m.actor.ID == "" {
		return "", ErrMissingActor
	}

	var created = obj.Clone()
	if created.ID == "" {
		created.ID = ulid.Make().String()
	}
	created.LastModifiedBy = m.actor.ID
	created.LastModifiedAt = time.Now()

	if err := m.store.Create(ctx, created); err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}

	m.record(CommandCreate, created.ID, nil, SnapshotOf(created), nil)
	return created.ID, nil
}

// UpdateObject applies a partial field update to one object, stamping the
// modification metadata. The command type recorded for the update is
// inferred from the touched fields.
func (m *Mutator) UpdateObject(ctx context.Context, objectID string, fields Fields) error {
	if m.actor.ID == "" {
		return ErrMissingActor
	}

	var obj, err = m.store.Get(ctx, objectID)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", objectID, err)
	}
	if obj == nil {
		return fmt.Errorf("object %s does not exist", objectID)
	}

	var stamped = make(Fields, len(fields)+2)
	for key, value := range fields {
		stamped[key] = value
	}
	stamped[FieldLastModifiedBy] = m.actor.ID
	stamped[FieldLastModifiedAt] = time.Now()

	// Building the after snapshot first also validates the field values, so
	// a mistyped value is rejected before anything reaches the store.
	var after = obj.Clone()
	if err := applyFields(after, stamped); err != nil {
		return fmt.Errorf("invalid update for object %s: %w", objectID, err)
	}

	if err := m.store.Write(ctx, objectID, stamped); err != nil {
		return fmt.Errorf("failed to update object %s: %w", objectID, err)
	}

	m.record(classifyUpdate(fields), objectID, SnapshotOf(obj), SnapshotOf(after), nil)
	return nil
}

// DeleteObject removes an object. Deleting a missing object is a no-op and
// records nothing.
func (m *Mutator) DeleteObject(ctx context.Context, objectID string) error {
	if m.actor.ID == "" {
		return ErrMissingActor
	}

	var obj, err = m.store.Get(ctx, objectID)
	if err != nil {
		return fmt.Errorf("failed to read object %s: %w", objectID, err)
	}
	if obj == nil {
		return nil
	}

	if err := m.store.Delete(ctx, objectID); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectID, err)
	}

	m.record(CommandDelete, objectID, SnapshotOf(obj), nil, nil)
	return nil
}

// record invokes the recorded-action sink, recovering a panicking sink so
// it can never fail the mutation that triggered it.
func (m *Mutator) record(cmdType CommandType, objectID string, before, after *Snapshot, metadata map[string]any) {
	if m.onRecord == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.options.logger.Warn("recorded-action sink panicked",
				"type", cmdType,
				"object_id", objectID,
				"panic", r)
		}
	}()

	m.onRecord(cmdType, objectID, before, after, metadata)
}

// classifyUpdate infers the command type from the touched fields, in fixed
// priority order: any size field makes it a RESIZE (resize gestures move
// the origin too), then rotation, then position, else a property update.
func classifyUpdate(fields Fields) CommandType {
	var (
		_, width  = fields[FieldWidth]
		_, height = fields[FieldHeight]
		_, radius = fields[FieldRadius]
		_, inner  = fields[FieldInnerRadius]
		_, outer  = fields[FieldOuterRadius]
	)
	if width || height || radius || inner || outer {
		return CommandResize
	}

	if _, rotation := fields[FieldRotation]; rotation {
		return CommandRotate
	}

	var (
		_, x = fields[FieldX]
		_, y = fields[FieldY]
	)
	if x || y {
		return CommandMove
	}

	return CommandUpdateProperties
}
