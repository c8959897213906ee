package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("duplicate record")
	ErrDatabaseInit = errors.New("database initialization failed")
)

// DB represents the database connection.
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema.
func New(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", ErrDatabaseInit, err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrDatabaseInit, err)
	}

	// Connection pool limits. SQLite handles concurrency differently than
	// other databases, but these still prevent file descriptor exhaustion.
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: failed to set pragma: %w", ErrDatabaseInit, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks the database connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate creates the database schema.
func (db *DB) migrate() error {
	migrations := []string{
		// Calendar events: the natural key (owner_id, external_id, source) is
		// what inbound reconciliation matches on, so the store enforces its
		// uniqueness instead of the reconciler taking locks.
		`CREATE TABLE IF NOT EXISTS calendar_events (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			source TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			all_day INTEGER NOT NULL DEFAULT 0,
			attendees TEXT NOT NULL DEFAULT '[]',
			recurrence_id TEXT NOT NULL DEFAULT '',
			raw_data TEXT NOT NULL DEFAULT '',
			linked_client_id TEXT,
			linked_session_id TEXT,
			sync_status TEXT NOT NULL DEFAULT 'synced',
			pending_intent TEXT NOT NULL DEFAULT '',
			last_synced_at DATETIME,
			sync_error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(owner_id, external_id, source)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_calendar_events_owner_source ON calendar_events(owner_id, source)`,
		`CREATE INDEX IF NOT EXISTS idx_calendar_events_status ON calendar_events(owner_id, sync_status)`,

		// Clients and sessions are owned by the wider platform; the sync
		// engine only reads them for link resolution. No FK from
		// calendar_events: links are weak references and must not cascade.
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			name TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			client_id TEXT NOT NULL,
			scheduled_at DATETIME NOT NULL,
			duration_min INTEGER NOT NULL DEFAULT 50,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_owner_scheduled ON sessions(owner_id, scheduled_at)`,

		`CREATE TABLE IF NOT EXISTS sync_logs (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			source TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL DEFAULT '',
			events_created INTEGER NOT NULL DEFAULT 0,
			events_updated INTEGER NOT NULL DEFAULT 0,
			events_deleted INTEGER NOT NULL DEFAULT 0,
			events_skipped INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_logs_owner ON sync_logs(owner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_created_at ON sync_logs(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := db.conn.Exec(migration); err != nil {
			if !isDuplicateColumnError(err) {
				return fmt.Errorf("%w: migration failed: %w", ErrDatabaseInit, err)
			}
		}
	}

	return nil
}

// isDuplicateColumnError checks if the error is due to a duplicate column in ALTER TABLE.
func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate column") || strings.Contains(errStr, "already exists")
}
