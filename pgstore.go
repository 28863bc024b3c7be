package canvaslease

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go-canvaslease/database"
)

// PostgresStore is the Postgres-backed ObjectStore, scoped to one canvas.
type PostgresStore struct {
	queries *database.Queries
}

// NewPostgresStore migrates the schema and returns a store for the canvas.
func NewPostgresStore(db *sql.DB, canvasID string) (*PostgresStore, error) {
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresStore{
		queries: database.NewQueries(db, canvasID),
	}, nil
}

// Get returns the object, or nil when it does not exist.
func (s *PostgresStore) Get(ctx context.Context, objectID string) (*CanvasObject, error) {
	var record, err = s.queries.GetObject(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectID, err)
	}
	if record == nil {
		return nil, nil
	}
	return objectFromRecord(record), nil
}

// List returns every object on the canvas.
func (s *PostgresStore) List(ctx context.Context) ([]*CanvasObject, error) {
	var records, err = s.queries.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	var objects = make([]*CanvasObject, len(records))
	for i, record := range records {
		objects[i] = objectFromRecord(record)
	}
	return objects, nil
}

// Create persists a new object.
func (s *PostgresStore) Create(ctx context.Context, obj *CanvasObject) error {
	if err := s.queries.InsertObject(ctx, recordFromObject(obj)); err != nil {
		return fmt.Errorf("failed to create object %s: %w", obj.ID, err)
	}
	return nil
}

// Write applies a partial field update to one object.
func (s *PostgresStore) Write(ctx context.Context, objectID string, fields Fields) error {
	var columns, values, err = columnsFromFields(fields)
	if err != nil {
		return err
	}
	return s.queries.UpdateObject(ctx, objectID, columns, values)
}

// BatchWrite applies the same field update to several objects in a single
// statement.
func (s *PostgresStore) BatchWrite(ctx context.Context, objectIDs []string, fields Fields) error {
	var columns, values, err = columnsFromFields(fields)
	if err != nil {
		return err
	}
	return s.queries.UpdateObjects(ctx, objectIDs, columns, values)
}

// Delete removes an object.
func (s *PostgresStore) Delete(ctx context.Context, objectID string) error {
	return s.queries.DeleteObject(ctx, objectID)
}

// fieldColumns maps field names to their database columns.
var fieldColumns = map[string]string{
	FieldX:              "x",
	FieldY:              "y",
	FieldWidth:          "width",
	FieldHeight:         "height",
	FieldRadius:         "radius",
	FieldInnerRadius:    "inner_radius",
	FieldOuterRadius:    "outer_radius",
	FieldText:           "text",
	FieldFontSize:       "font_size",
	FieldFill:           "fill",
	FieldRotation:       "rotation",
	FieldZIndex:         "z_index",
	FieldLockedBy:       "locked_by",
	FieldLockedAt:       "locked_at",
	FieldLastModifiedBy: "last_modified_by",
	FieldLastModifiedAt: "last_modified_at",
}

// columnsFromFields converts a field update into column/value pairs in
// deterministic order. Empty lock fields become NULLs.
func columnsFromFields(fields Fields) ([]string, []any, error) {
	var keys = make([]string, 0, len(fields))
	for key := range fields {
		if _, known := fieldColumns[key]; !known {
			return nil, nil, fmt.Errorf("unknown object field %q", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var (
		columns = make([]string, len(keys))
		values  = make([]any, len(keys))
	)
	for i, key := range keys {
		columns[i] = fieldColumns[key]

		var value = fields[key]
		if err := checkFieldValue(key, value); err != nil {
			return nil, nil, err
		}
		switch key {
		case FieldLockedBy:
			if value.(string) == "" {
				value = nil
			}
		case FieldLockedAt:
			if value.(time.Time).IsZero() {
				value = nil
			}
		}
		values[i] = value
	}
	return columns, values, nil
}

// objectFromRecord converts a database row to a domain object.
func objectFromRecord(r *database.ObjectRecord) *CanvasObject {
	var obj = &CanvasObject{
		ID:             r.ObjectID,
		Type:           ObjectType(r.Kind),
		X:              r.X,
		Y:              r.Y,
		Width:          r.Width,
		Height:         r.Height,
		Radius:         r.Radius,
		InnerRadius:    r.InnerRadius,
		OuterRadius:    r.OuterRadius,
		Text:           r.Text,
		FontSize:       r.FontSize,
		Fill:           r.Fill,
		Rotation:       r.Rotation,
		ZIndex:         r.ZIndex,
		LastModifiedBy: r.LastModifiedBy,
		LastModifiedAt: r.LastModifiedAt,
	}
	if r.LockedBy.Valid {
		obj.LockedBy = r.LockedBy.String
	}
	if r.LockedAt.Valid {
		obj.LockedAt = r.LockedAt.Time
	}
	return obj
}

// recordFromObject converts a domain object to a database row.
func recordFromObject(o *CanvasObject) *database.ObjectRecord {
	var record = &database.ObjectRecord{
		ObjectID:       o.ID,
		Kind:           string(o.Type),
		X:              o.X,
		Y:              o.Y,
		Width:          o.Width,
		Height:         o.Height,
		Radius:         o.Radius,
		InnerRadius:    o.InnerRadius,
		OuterRadius:    o.OuterRadius,
		Text:           o.Text,
		FontSize:       o.FontSize,
		Fill:           o.Fill,
		Rotation:       o.Rotation,
		ZIndex:         o.ZIndex,
		LastModifiedBy: o.LastModifiedBy,
		LastModifiedAt: o.LastModifiedAt,
	}
	if o.LockedBy != "" {
		record.LockedBy = sql.NullString{String: o.LockedBy, Valid: true}
	}
	if !o.LockedAt.IsZero() {
		record.LockedAt = sql.NullTime{Time: o.LockedAt, Valid: true}
	}
	return record
}
