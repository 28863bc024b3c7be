package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// DBTX is an interface that both sql.DB and sql.Tx implement.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries provides canvas-scoped database operations.
type Queries struct {
	db       DBTX
	canvasID string
}

// NewQueries creates a new Queries instance scoped to one canvas.
func NewQueries(db DBTX, canvasID string) *Queries {
	return &Queries{
		db:       db,
		canvasID: canvasID,
	}
}

const objectColumns = `canvas_id, object_id, kind, x, y, width, height, radius, inner_radius, outer_radius,
text, font_size, fill, rotation, z_index, locked_by, locked_at, last_modified_by, last_modified_at`

var (
	listObjectsSQL = `
SELECT ` + objectColumns + `
FROM canvas_objects
WHERE canvas_id = $1
ORDER BY object_id ASC;`

	getObjectSQL = `
SELECT ` + objectColumns + `
FROM canvas_objects
WHERE canvas_id = $1 AND object_id = $2;`

	insertObjectSQL = `
INSERT INTO canvas_objects (` + objectColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19);`

	deleteObjectSQL = `
DELETE FROM canvas_objects
WHERE canvas_id = $1 AND object_id = $2;`
)

// scanObject reads one object row.
func scanObject(row interface{ Scan(dest ...any) error }) (*ObjectRecord, error) {
	var o ObjectRecord
	var err = row.Scan(
		&o.CanvasID, &o.ObjectID, &o.Kind,
		&o.X, &o.Y, &o.Width, &o.Height,
		&o.Radius, &o.InnerRadius, &o.OuterRadius,
		&o.Text, &o.FontSize, &o.Fill, &o.Rotation, &o.ZIndex,
		&o.LockedBy, &o.LockedAt,
		&o.LastModifiedBy, &o.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListObjects returns all objects on the canvas, ordered by object id.
func (q *Queries) ListObjects(ctx context.Context) ([]*ObjectRecord, error) {
	var rows, err = q.db.QueryContext(ctx, listObjectsSQL, q.canvasID)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objects []*ObjectRecord
	for rows.Next() {
		var object, scanErr = scanObject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan object: %w", scanErr)
		}
		objects = append(objects, object)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return objects, nil
}

// GetObject retrieves a single object, or nil if not found.
func (q *Queries) GetObject(ctx context.Context, objectID string) (*ObjectRecord, error) {
	var object, err = scanObject(q.db.QueryRowContext(ctx, getObjectSQL, q.canvasID, objectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return object, nil
}

// InsertObject persists a new object row.
func (q *Queries) InsertObject(ctx context.Context, o *ObjectRecord) error {
	var _, err = q.db.ExecContext(ctx, insertObjectSQL,
		q.canvasID, o.ObjectID, o.Kind,
		o.X, o.Y, o.Width, o.Height,
		o.Radius, o.InnerRadius, o.OuterRadius,
		o.Text, o.FontSize, o.Fill, o.Rotation, o.ZIndex,
		o.LockedBy, o.LockedAt,
		o.LastModifiedBy, o.LastModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert object: %w", err)
	}
	return nil
}

// UpdateObject applies a partial column update to one object. Columns and
// values run in lockstep.
func (q *Queries) UpdateObject(ctx context.Context, objectID string, columns []string, values []any) error {
	var query, args = buildUpdate(q.canvasID, columns, values, "object_id = $2", []any{objectID})
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update object %s: %w", objectID, err)
	}
	return nil
}

// UpdateObjects applies the same partial column update to several objects
// in one statement.
func (q *Queries) UpdateObjects(ctx context.Context, objectIDs []string, columns []string, values []any) error {
	var query, args = buildUpdate(q.canvasID, columns, values, "object_id = ANY($2)", []any{pq.Array(objectIDs)})
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %d objects: %w", len(objectIDs), err)
	}
	return nil
}

// DeleteObject removes an object row.
func (q *Queries) DeleteObject(ctx context.Context, objectID string) error {
	if _, err := q.db.ExecContext(ctx, deleteObjectSQL, q.canvasID, objectID); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// buildUpdate assembles an UPDATE statement over the given columns. The
// match clause refers to $2 for the object id argument; SET placeholders
// start at $3.
func buildUpdate(canvasID string, columns []string, values []any, match string, matchArgs []any) (string, []any) {
	var (
		assignments = make([]string, len(columns))
		args        = append([]any{canvasID}, matchArgs...)
	)
	for i, column := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", column, len(args)+1)
		args = append(args, values[i])
	}

	var query = fmt.Sprintf(
		"UPDATE canvas_objects SET %s WHERE canvas_id = $1 AND %s;",
		strings.Join(assignments, ", "), match)
	return query, args
}
