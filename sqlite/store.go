// Package sqlite provides a single-binary ObjectStore backend. It speaks
// the same boundary as the Postgres store, so a local canvas and a hosted
// one are interchangeable to the session.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	canvaslease "go-canvaslease"

	_ "modernc.org/sqlite"
)

// Store is the sqlite-backed ObjectStore, scoped to one canvas.
type Store struct {
	db       *sql.DB
	canvasID string
}

const createObjectsTableSQL = `
CREATE TABLE IF NOT EXISTS canvas_objects (
    canvas_id          TEXT    NOT NULL,
    object_id          TEXT    NOT NULL,
    kind               TEXT    NOT NULL,
    x                  REAL    NOT NULL DEFAULT 0,
    y                  REAL    NOT NULL DEFAULT 0,
    width              REAL    NOT NULL DEFAULT 0,
    height             REAL    NOT NULL DEFAULT 0,
    radius             REAL    NOT NULL DEFAULT 0,
    inner_radius       REAL    NOT NULL DEFAULT 0,
    outer_radius       REAL    NOT NULL DEFAULT 0,
    text               TEXT    NOT NULL DEFAULT '',
    font_size          REAL    NOT NULL DEFAULT 0,
    fill               TEXT    NOT NULL DEFAULT '',
    rotation           REAL    NOT NULL DEFAULT 0,
    z_index            INTEGER NOT NULL DEFAULT 0,
    locked_by          TEXT,
    locked_at          DATETIME,
    last_modified_by   TEXT    NOT NULL DEFAULT '',
    last_modified_at   DATETIME NOT NULL,

    PRIMARY KEY (canvas_id, object_id)
);`

// NewStore opens (or creates) the sqlite database and returns a store for
// the canvas.
func NewStore(dataSourceName, canvasID string) (*Store, error) {
	var db, err = sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if _, err := db.Exec(createObjectsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create objects table: %w", err)
	}

	return &Store{db: db, canvasID: canvasID}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const objectColumns = `object_id, kind, x, y, width, height, radius, inner_radius, outer_radius,
text, font_size, fill, rotation, z_index, locked_by, locked_at, last_modified_by, last_modified_at`

// Get returns the object, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, objectID string) (*canvaslease.CanvasObject, error) {
	var row = s.db.QueryRowContext(ctx,
		"SELECT "+objectColumns+" FROM canvas_objects WHERE canvas_id = ? AND object_id = ?",
		s.canvasID, objectID)

	var obj, err = scanObject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectID, err)
	}
	return obj, nil
}

// List returns every object on the canvas.
func (s *Store) List(ctx context.Context) ([]*canvaslease.CanvasObject, error) {
	var rows, err = s.db.QueryContext(ctx,
		"SELECT "+objectColumns+" FROM canvas_objects WHERE canvas_id = ? ORDER BY object_id ASC",
		s.canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []*canvaslease.CanvasObject
	for rows.Next() {
		var obj, scanErr = scanObject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan object: %w", scanErr)
		}
		objects = append(objects, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return objects, nil
}

// Create persists a new object.
func (s *Store) Create(ctx context.Context, obj *canvaslease.CanvasObject) error {
	var lockedBy, lockedAt = lockValues(obj.LockedBy, obj.LockedAt)

	var _, err = s.db.ExecContext(ctx,
		"INSERT INTO canvas_objects (canvas_id, "+objectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.canvasID, obj.ID, string(obj.Type),
		obj.X, obj.Y, obj.Width, obj.Height,
		obj.Radius, obj.InnerRadius, obj.OuterRadius,
		obj.Text, obj.FontSize, obj.Fill, obj.Rotation, obj.ZIndex,
		lockedBy, lockedAt,
		obj.LastModifiedBy, obj.LastModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create object %s: %w", obj.ID, err)
	}
	return nil
}

// Write applies a partial field update to one object.
func (s *Store) Write(ctx context.Context, objectID string, fields canvaslease.Fields) error {
	var assignments, values, err = assignmentsFromFields(fields)
	if err != nil {
		return err
	}

	var query = fmt.Sprintf(
		"UPDATE canvas_objects SET %s WHERE canvas_id = ? AND object_id = ?",
		strings.Join(assignments, ", "))
	if _, err := s.db.ExecContext(ctx, query, append(values, s.canvasID, objectID)...); err != nil {
		return fmt.Errorf("failed to update object %s: %w", objectID, err)
	}
	return nil
}

// BatchWrite applies the same field update to several objects inside one
// transaction.
func (s *Store) BatchWrite(ctx context.Context, objectIDs []string, fields canvaslease.Fields) error {
	var assignments, values, err = assignmentsFromFields(fields)
	if err != nil {
		return err
	}

	var (
		placeholders = strings.TrimSuffix(strings.Repeat("?, ", len(objectIDs)), ", ")
		query        = fmt.Sprintf(
			"UPDATE canvas_objects SET %s WHERE canvas_id = ? AND object_id IN (%s)",
			strings.Join(assignments, ", "), placeholders)
		args = append(values, s.canvasID)
	)
	for _, id := range objectIDs {
		args = append(args, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch write: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to batch update %d objects: %w", len(objectIDs), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch write: %w", err)
	}
	return nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, objectID string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM canvas_objects WHERE canvas_id = ? AND object_id = ?",
		s.canvasID, objectID); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectID, err)
	}
	return nil
}

// fieldColumns maps field names to their database columns.
var fieldColumns = map[string]string{
	canvaslease.FieldX:              "x",
	canvaslease.FieldY:              "y",
	canvaslease.FieldWidth:          "width",
	canvaslease.FieldHeight:         "height",
	canvaslease.FieldRadius:         "radius",
	canvaslease.FieldInnerRadius:    "inner_radius",
	canvaslease.FieldOuterRadius:    "outer_radius",
	canvaslease.FieldText:           "text",
	canvaslease.FieldFontSize:       "font_size",
	canvaslease.FieldFill:           "fill",
	canvaslease.FieldRotation:       "rotation",
	canvaslease.FieldZIndex:         "z_index",
	canvaslease.FieldLockedBy:       "locked_by",
	canvaslease.FieldLockedAt:       "locked_at",
	canvaslease.FieldLastModifiedBy: "last_modified_by",
	canvaslease.FieldLastModifiedAt: "last_modified_at",
}

// assignmentsFromFields converts a field update into SET clauses and values
// in deterministic order. Empty lock fields become NULLs.
func assignmentsFromFields(fields canvaslease.Fields) ([]string, []any, error) {
	var keys = make([]string, 0, len(fields))
	for key := range fields {
		if _, known := fieldColumns[key]; !known {
			return nil, nil, fmt.Errorf("unknown object field %q", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		assignments = make([]string, len(keys))
		values      = make([]any, len(keys))
	)
	for i, key := range keys {
		assignments[i] = fieldColumns[key] + " = ?"

		var value = fields[key]
		switch key {
		case canvaslease.FieldLockedBy:
			var lockedBy, ok = value.(string)
			if !ok {
				return nil, nil, fmt.Errorf("unexpected value type %T for field %q", value, key)
			}
			if lockedBy == "" {
				value = nil
			}
		case canvaslease.FieldLockedAt:
			var lockedAt, ok = value.(time.Time)
			if !ok {
				return nil, nil, fmt.Errorf("unexpected value type %T for field %q", value, key)
			}
			if lockedAt.IsZero() {
				value = nil
			}
		}
		values[i] = value
	}
	return assignments, values, nil
}

// lockValues converts domain lock fields to their nullable column values.
func lockValues(lockedBy string, lockedAt time.Time) (any, any) {
	var by, at any
	if lockedBy != "" {
		by = lockedBy
	}
	if !lockedAt.IsZero() {
		at = lockedAt
	}
	return by, at
}

// scanObject reads one object row.
func scanObject(row interface{ Scan(dest ...any) error }) (*canvaslease.CanvasObject, error) {
	var (
		obj      canvaslease.CanvasObject
		kind     string
		lockedBy sql.NullString
		lockedAt sql.NullTime
	)
	var err = row.Scan(
		&obj.ID, &kind,
		&obj.X, &obj.Y, &obj.Width, &obj.Height,
		&obj.Radius, &obj.InnerRadius, &obj.OuterRadius,
		&obj.Text, &obj.FontSize, &obj.Fill, &obj.Rotation, &obj.ZIndex,
		&lockedBy, &lockedAt,
		&obj.LastModifiedBy, &obj.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}

	obj.Type = canvaslease.ObjectType(kind)
	if lockedBy.Valid {
		obj.LockedBy = lockedBy.String
	}
	if lockedAt.Valid {
		obj.LockedAt = lockedAt.Time
	}
	return &obj, nil
}
