package database

import (
	"database/sql"
	"time"
)

// ObjectRecord represents a canvas object row in the database.
type ObjectRecord struct {
	CanvasID string
	ObjectID string
	Kind     string

	X      float64
	Y      float64
	Width  float64
	Height float64

	Radius      float64
	InnerRadius float64
	OuterRadius float64

	Text     string
	FontSize float64

	Fill     string
	Rotation float64
	ZIndex   int

	LockedBy sql.NullString
	LockedAt sql.NullTime

	LastModifiedBy string
	LastModifiedAt time.Time
}
