package database

import (
	"database/sql"
	"fmt"
)

var (
	createObjectsTableSQL = `
CREATE TABLE IF NOT EXISTS canvas_objects (
    canvas_id          VARCHAR          NOT NULL,
    object_id          VARCHAR          NOT NULL,
    kind               VARCHAR          NOT NULL,
    x                  DOUBLE PRECISION NOT NULL DEFAULT 0,
    y                  DOUBLE PRECISION NOT NULL DEFAULT 0,
    width              DOUBLE PRECISION NOT NULL DEFAULT 0,
    height             DOUBLE PRECISION NOT NULL DEFAULT 0,
    radius             DOUBLE PRECISION NOT NULL DEFAULT 0,
    inner_radius       DOUBLE PRECISION NOT NULL DEFAULT 0,
    outer_radius       DOUBLE PRECISION NOT NULL DEFAULT 0,
    text               VARCHAR          NOT NULL DEFAULT '',
    font_size          DOUBLE PRECISION NOT NULL DEFAULT 0,
    fill               VARCHAR          NOT NULL DEFAULT '',
    rotation           DOUBLE PRECISION NOT NULL DEFAULT 0,
    z_index            INTEGER          NOT NULL DEFAULT 0,
    locked_by          VARCHAR,
    locked_at          TIMESTAMPTZ,
    last_modified_by   VARCHAR          NOT NULL DEFAULT '',
    last_modified_at   TIMESTAMPTZ      NOT NULL,

    PRIMARY KEY (canvas_id, object_id)
);`

	createLockedByIndexSQL = `
CREATE INDEX IF NOT EXISTS canvas_objects_locked_by_idx
ON canvas_objects (canvas_id, locked_by);`
)

// Migrate creates the canvas objects table with indexes.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(createObjectsTableSQL); err != nil {
		return fmt.Errorf("failed to create objects table: %w", err)
	}

	if _, err := db.Exec(createLockedByIndexSQL); err != nil {
		return fmt.Errorf("failed to create locked_by index: %w", err)
	}

	return nil
}
