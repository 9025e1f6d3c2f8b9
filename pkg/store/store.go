// Package store owns the embedded sqlite database: schema, migrations, the
// single read-write handle used by the indexer, and the read-only handle used
// by everything else. One process writes; any number read.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // sqlite driver for database/sql
)

// DB is the read-write database handle used by the indexer and watcher.
// Exactly one process should hold one of these at a time; that discipline is
// operational, not enforced by the store.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the database at path, applies the writer pragmas,
// and initializes the schema.
func Open(path string) (*DB, error) {
	if parent := filepath.Dir(path); parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// All writes are serialized on the control thread; a single pooled
	// connection keeps pragmas and savepoints on one session.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = OFF",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", p, err)
		}
	}

	if err := InitSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, path: path}, nil
}

// Conn returns the underlying connection for queries and statements.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	return d.conn.Close()
}

// ReadDB is a read-only database handle for queries. It refuses to open a
// store whose schema version differs from DBVersion.
type ReadDB struct {
	conn *sql.DB
	path string
}

// OpenRead opens the database at path read-only and verifies the schema
// version. Returns NotFoundError if the file does not exist,
// ErrNotInitialized if there is no version row, and VersionMismatchError on
// any version difference.
func OpenRead(path string) (*ReadDB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &NotFoundError{Path: path}
	}

	conn, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &ReadDB{conn: conn, path: path}
	if err := db.checkVersion(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *ReadDB) checkVersion() error {
	var version int
	err := d.conn.QueryRow(
		"SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'version'",
	).Scan(&version)
	if err != nil {
		return ErrNotInitialized
	}
	if version != DBVersion {
		return &VersionMismatchError{Expected: DBVersion, Found: version}
	}
	return nil
}

// Conn returns the underlying connection for custom queries.
func (d *ReadDB) Conn() *sql.DB {
	return d.conn
}

// Path returns the database file path.
func (d *ReadDB) Path() string {
	return d.path
}

// Close closes the database.
func (d *ReadDB) Close() error {
	return d.conn.Close()
}

// Stats describes the current state of the store.
type Stats struct {
	Version        int
	LineCount      int64
	SessionCount   int64
	HookEventCount int64
	LastIndexed    string // empty if never indexed
	DBPath         string
	DBSizeBytes    int64
}

// Stats returns database statistics.
func (d *ReadDB) Stats() (Stats, error) {
	stats := Stats{DBPath: d.path}

	d.conn.QueryRow(
		"SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'version'",
	).Scan(&stats.Version)

	if err := d.conn.QueryRow("SELECT COUNT(*) FROM lines").Scan(&stats.LineCount); err != nil {
		return stats, fmt.Errorf("count lines: %w", err)
	}
	if err := d.conn.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.SessionCount); err != nil {
		return stats, fmt.Errorf("count sessions: %w", err)
	}
	d.conn.QueryRow("SELECT COUNT(*) FROM hook_events").Scan(&stats.HookEventCount)

	d.conn.QueryRow(
		"SELECT value FROM metadata WHERE key = 'last_indexed'",
	).Scan(&stats.LastIndexed)

	if info, err := os.Stat(d.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	return stats, nil
}

// FormatSize renders the database size as a human-readable string.
func (s Stats) FormatSize() string {
	bytes := float64(s.DBSizeBytes)
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%.0f B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", bytes/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", bytes/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", bytes/(1024*1024*1024))
	}
}
