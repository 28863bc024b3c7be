package canvaslease

import (
	"context"
	"fmt"
	"time"
)

// Fields is a partial update of a canvas object record, keyed by the field
// names below.
type Fields map[string]any

// Field names accepted by ObjectStore.Write and ObjectStore.BatchWrite.
const (
	FieldX           = "x"
	FieldY           = "y"
	FieldWidth       = "width"
	FieldHeight      = "height"
	FieldRadius      = "radius"
	FieldInnerRadius = "innerRadius"
	FieldOuterRadius = "outerRadius"
	FieldText        = "text"
	FieldFontSize    = "fontSize"
	FieldFill        = "fill"
	FieldRotation    = "rotation"
	FieldZIndex      = "zIndex"

	FieldLockedBy       = "lockedBy"
	FieldLockedAt       = "lockedAt"
	FieldLastModifiedBy = "lastModifiedBy"
	FieldLastModifiedAt = "lastModifiedAt"
)

// ObjectStore is the persistence boundary for canvas objects and their lock
// fields. The lease protocol assumes nothing beyond last-write-wins
// semantics from the store; cross-client safety comes from the staleness
// window on LockedAt.
type ObjectStore interface {
	// Get returns the object, or nil (with a nil error) when it does not
	// exist.
	Get(ctx context.Context, objectID string) (*CanvasObject, error)

	// List returns every object on the canvas.
	List(ctx context.Context) ([]*CanvasObject, error)

	// Create persists a new object, honoring a pre-assigned ID.
	Create(ctx context.Context, obj *CanvasObject) error

	// Write applies a partial field update to one object.
	Write(ctx context.Context, objectID string, fields Fields) error

	// BatchWrite applies the same field update to several objects in a
	// single round-trip.
	BatchWrite(ctx context.Context, objectIDs []string, fields Fields) error

	// Delete removes an object. Deleting a missing object is a no-op.
	Delete(ctx context.Context, objectID string) error
}

// lockFields builds the field update that claims an object.
func lockFields(ownerID string, at time.Time) Fields {
	return Fields{
		FieldLockedBy: ownerID,
		FieldLockedAt: at,
	}
}

// unlockFields builds the field update that releases an object.
func unlockFields() Fields {
	return Fields{
		FieldLockedBy: "",
		FieldLockedAt: time.Time{},
	}
}

// checkFieldValue verifies a field value carries the expected type. Fields
// arrives as map[string]any from the edit surface, so a mistyped value is a
// caller mistake to reject, not to panic on.
func checkFieldValue(key string, value any) error {
	var ok bool
	switch key {
	case FieldX, FieldY, FieldWidth, FieldHeight, FieldRadius,
		FieldInnerRadius, FieldOuterRadius, FieldFontSize, FieldRotation:
		_, ok = value.(float64)
	case FieldText, FieldFill, FieldLockedBy, FieldLastModifiedBy:
		_, ok = value.(string)
	case FieldZIndex:
		_, ok = value.(int)
	case FieldLockedAt, FieldLastModifiedAt:
		_, ok = value.(time.Time)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("unexpected value type %T for field %q", value, key)
	}
	return nil
}

// applyFields mutates an object in place with the given partial update.
// Unknown keys are ignored; a mistyped value is rejected before anything is
// applied.
func applyFields(o *CanvasObject, fields Fields) error {
	for key, value := range fields {
		if err := checkFieldValue(key, value); err != nil {
			return err
		}
	}

	for key, value := range fields {
		switch key {
		case FieldX:
			o.X = value.(float64)
		case FieldY:
			o.Y = value.(float64)
		case FieldWidth:
			o.Width = value.(float64)
		case FieldHeight:
			o.Height = value.(float64)
		case FieldRadius:
			o.Radius = value.(float64)
		case FieldInnerRadius:
			o.InnerRadius = value.(float64)
		case FieldOuterRadius:
			o.OuterRadius = value.(float64)
		case FieldText:
			o.Text = value.(string)
		case FieldFontSize:
			o.FontSize = value.(float64)
		case FieldFill:
			o.Fill = value.(string)
		case FieldRotation:
			o.Rotation = value.(float64)
		case FieldZIndex:
			o.ZIndex = value.(int)
		case FieldLockedBy:
			o.LockedBy = value.(string)
		case FieldLockedAt:
			o.LockedAt = value.(time.Time)
		case FieldLastModifiedBy:
			o.LastModifiedBy = value.(string)
		case FieldLastModifiedAt:
			o.LastModifiedAt = value.(time.Time)
		}
	}
	return nil
}
