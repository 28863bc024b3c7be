package canvaslease

import "time"

// ObjectType identifies the shape variant of a canvas object.
type ObjectType string

const (
	TypeRectangle ObjectType = "rectangle"
	TypeCircle    ObjectType = "circle"
	TypeStar      ObjectType = "star"
	TypeText      ObjectType = "text"
)

// Actor identifies the authenticated user behind a session. Every lease
// claim and every recorded command carries the actor's ID.
type Actor struct {
	ID   string
	Name string
}

// CanvasObject is a persisted canvas record. LockedBy/LockedAt carry the
// lease protocol: a lock is stale once now - LockedAt exceeds the staleness
// window, after which any client may treat the object as free regardless of
// LockedBy.
type CanvasObject struct {
	ID   string
	Type ObjectType

	X      float64
	Y      float64
	Width  float64
	Height float64

	Radius      float64 // circle only
	InnerRadius float64 // star only
	OuterRadius float64 // star only

	Text     string // text only
	FontSize float64

	Fill     string
	Rotation float64
	ZIndex   int

	LockedBy string    // empty when unlocked
	LockedAt time.Time // zero when unlocked

	LastModifiedBy string
	LastModifiedAt time.Time
}

// Clone returns a copy of the object.
func (o *CanvasObject) Clone() *CanvasObject {
	var c = *o
	return &c
}

// lease is the client-local record of a held lock. Owned exclusively by the
// ownership manager of the acquiring session; never persisted.
type lease struct {
	objectID   string
	acquiredAt time.Time
	timer      *time.Timer
}

// CommandType classifies a reversible mutation.
type CommandType string

const (
	CommandCreate           CommandType = "CREATE"
	CommandDelete           CommandType = "DELETE"
	CommandMove             CommandType = "MOVE"
	CommandResize           CommandType = "RESIZE"
	CommandRotate           CommandType = "ROTATE"
	CommandUpdateProperties CommandType = "UPDATE_PROPERTIES"
)

// Command is an immutable record of a single reversible mutation. Before and
// After are both set except for CREATE (Before nil) and DELETE (After nil).
type Command struct {
	ID          string
	Type        CommandType
	UserID      string
	Timestamp   time.Time
	ObjectID    string
	Before      *Snapshot
	After       *Snapshot
	Description string
	Metadata    map[string]any
}

// Snapshot captures the replayable state of an object at one instant.
type Snapshot struct {
	Type        ObjectType
	X           float64
	Y           float64
	Width       float64
	Height      float64
	Radius      float64
	InnerRadius float64
	OuterRadius float64
	Text        string
	FontSize    float64
	Fill        string
	Rotation    float64
	ZIndex      int
}

// SnapshotOf captures the replayable fields of an object.
func SnapshotOf(o *CanvasObject) *Snapshot {
	return &Snapshot{
		Type:        o.Type,
		X:           o.X,
		Y:           o.Y,
		Width:       o.Width,
		Height:      o.Height,
		Radius:      o.Radius,
		InnerRadius: o.InnerRadius,
		OuterRadius: o.OuterRadius,
		Text:        o.Text,
		FontSize:    o.FontSize,
		Fill:        o.Fill,
		Rotation:    o.Rotation,
		ZIndex:      o.ZIndex,
	}
}

// Fields returns the type-specific replay field set. Text carries width but
// not height, since height is derived from the font size.
func (s *Snapshot) Fields() Fields {
	var fields = Fields{
		FieldX:        s.X,
		FieldY:        s.Y,
		FieldFill:     s.Fill,
		FieldRotation: s.Rotation,
		FieldZIndex:   s.ZIndex,
	}

	switch s.Type {
	case TypeCircle:
		fields[FieldRadius] = s.Radius
	case TypeStar:
		fields[FieldInnerRadius] = s.InnerRadius
		fields[FieldOuterRadius] = s.OuterRadius
	case TypeText:
		fields[FieldWidth] = s.Width
		fields[FieldText] = s.Text
		fields[FieldFontSize] = s.FontSize
	default:
		fields[FieldWidth] = s.Width
		fields[FieldHeight] = s.Height
	}

	return fields
}

// Object materializes a full object carrying the given id. Used to recreate
// a deleted object id-stable during replay.
func (s *Snapshot) Object(id string) *CanvasObject {
	return &CanvasObject{
		ID:          id,
		Type:        s.Type,
		X:           s.X,
		Y:           s.Y,
		Width:       s.Width,
		Height:      s.Height,
		Radius:      s.Radius,
		InnerRadius: s.InnerRadius,
		OuterRadius: s.OuterRadius,
		Text:        s.Text,
		FontSize:    s.FontSize,
		Fill:        s.Fill,
		Rotation:    s.Rotation,
		ZIndex:      s.ZIndex,
	}
}
