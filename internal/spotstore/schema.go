// Package spotstore is the SQLite-backed record of room spots and pinned plans.
package spotstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS spots (
	id                 TEXT PRIMARY KEY,
	room_id            TEXT NOT NULL,
	name               TEXT NOT NULL DEFAULT '',
	description        TEXT NOT NULL DEFAULT '',
	day                INTEGER NOT NULL DEFAULT 0,
	sort_order         INTEGER NOT NULL DEFAULT 0,
	stay_time          INTEGER,
	status             TEXT NOT NULL DEFAULT 'candidate',
	is_hotel           INTEGER NOT NULL DEFAULT 0,
	reservation_status TEXT NOT NULL DEFAULT '',
	reserved_by        TEXT,
	price              REAL,
	comment            TEXT,
	link               TEXT,
	image_url          TEXT,
	lng                REAL NOT NULL DEFAULT 0,
	lat                REAL NOT NULL DEFAULT 0,
	votes              INTEGER NOT NULL DEFAULT 0,
	updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_spots_room ON spots(room_id);

CREATE TABLE IF NOT EXISTS pinned_plans (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	day        INTEGER NOT NULL,
	timeline   TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pinned_room ON pinned_plans(room_id);

CREATE TABLE IF NOT EXISTS rooms (
	id             TEXT PRIMARY KEY,
	travel_days    INTEGER NOT NULL DEFAULT 1,
	optimize_count INTEGER NOT NULL DEFAULT 0
);
`

// DB wraps a sql.DB with spot-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("spotstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("spotstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("spotstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}
