// Package store keeps track of the event packages known to this host: a
// SQLite table of records (name, source uri, local path, version, active
// flag) plus the zip packages themselves on disk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("store: event record not found")

const schema = `
CREATE TABLE IF NOT EXISTS stored_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL,
    uri        TEXT NOT NULL DEFAULT '',
    path       TEXT NOT NULL,
    version    INTEGER NOT NULL DEFAULT 0,
    active     INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS stored_events_uri ON stored_events(uri);
`

// StoredEvent is one known event package.
type StoredEvent struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	URI     string `json:"uri"`
	Path    string `json:"path"`
	Version int64  `json:"version"`
	Active  bool   `json:"active"`
}

// Records is the SQLite-backed record store.
type Records struct {
	db *sql.DB
}

// OpenRecords opens (or creates) the database at dbPath in WAL mode and
// creates the schema if needed.
func OpenRecords(ctx context.Context, dbPath string) (*Records, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection avoids SQLITE_BUSY
	// between connections that each need their own PRAGMA setup.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Records{db: db}, nil
}

// Close closes the database.
func (r *Records) Close() error {
	return r.db.Close()
}

// Insert adds a record and sets its ID. Inserting an active record
// deactivates every other one.
func (r *Records) Insert(ctx context.Context, se *StoredEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insert: %w", err)
	}
	defer tx.Rollback()

	if se.Active {
		if _, err := tx.ExecContext(ctx, "UPDATE stored_events SET active = 0"); err != nil {
			return fmt.Errorf("store: clear active: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO stored_events (name, uri, path, version, active) VALUES (?, ?, ?, ?, ?)",
		se.Name, se.URI, se.Path, se.Version, se.Active)
	if err != nil {
		return fmt.Errorf("store: insert %q: %w", se.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: insert %q: %w", se.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit insert: %w", err)
	}
	se.ID = id
	return nil
}

// Update overwrites the record with se.ID.
func (r *Records) Update(ctx context.Context, se StoredEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update: %w", err)
	}
	defer tx.Rollback()

	if se.Active {
		if _, err := tx.ExecContext(ctx, "UPDATE stored_events SET active = 0 WHERE id <> ?", se.ID); err != nil {
			return fmt.Errorf("store: clear active: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE stored_events
		SET name = ?, uri = ?, path = ?, version = ?, active = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		se.Name, se.URI, se.Path, se.Version, se.Active, se.ID)
	if err != nil {
		return fmt.Errorf("store: update %d: %w", se.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit update: %w", err)
	}
	return nil
}

// SetActive makes id the only active record.
func (r *Records) SetActive(ctx context.Context, id int64) error {
	se, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	se.Active = true
	return r.Update(ctx, se)
}

// Delete removes the record with id.
func (r *Records) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM stored_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every record and returns how many there were.
func (r *Records) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM stored_events")
	if err != nil {
		return 0, fmt.Errorf("store: delete all: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectColumns = "SELECT id, name, uri, path, version, active FROM stored_events"

func scanRecord(row interface{ Scan(...any) error }) (StoredEvent, error) {
	var se StoredEvent
	err := row.Scan(&se.ID, &se.Name, &se.URI, &se.Path, &se.Version, &se.Active)
	return se, err
}

func (r *Records) one(ctx context.Context, q string, args ...any) (StoredEvent, error) {
	se, err := scanRecord(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return StoredEvent{}, ErrNotFound
	}
	if err != nil {
		return StoredEvent{}, fmt.Errorf("store: query record: %w", err)
	}
	return se, nil
}

// Get returns the record with id.
func (r *Records) Get(ctx context.Context, id int64) (StoredEvent, error) {
	return r.one(ctx, selectColumns+" WHERE id = ?", id)
}

// FindByURI returns the most recently added record with the given source uri.
func (r *Records) FindByURI(ctx context.Context, uri string) (StoredEvent, error) {
	return r.one(ctx, selectColumns+" WHERE uri = ? ORDER BY id DESC LIMIT 1", uri)
}

// Active returns the active record.
func (r *Records) Active(ctx context.Context) (StoredEvent, error) {
	return r.one(ctx, selectColumns+" WHERE active = 1 ORDER BY id LIMIT 1")
}

// List returns all records ordered by name.
func (r *Records) List(ctx context.Context) ([]StoredEvent, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+" ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		se, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, se)
	}
	return out, rows.Err()
}
