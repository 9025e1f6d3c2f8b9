package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/ConfabulousDev/recall/pkg/logger"
)

// DBVersion is the current database schema version.
const DBVersion = 10

// createStatements is the full schema at the current version. Every statement
// is idempotent so InitSchema can run on both fresh and existing databases.
var createStatements = []string{
	// Metadata table
	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	)`,

	// Main lines table
	`CREATE TABLE IF NOT EXISTS lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		uuid TEXT NOT NULL,
		parent_uuid TEXT,
		line_number INTEGER NOT NULL,
		type TEXT NOT NULL,
		subtype TEXT,
		timestamp TEXT NOT NULL,
		slug TEXT,
		role TEXT,
		model TEXT,
		cwd TEXT,
		content TEXT,
		raw TEXT NOT NULL,
		file_path TEXT NOT NULL,
		turn_id TEXT,
		turn_sequence INTEGER,
		session_name TEXT,
		git_hash TEXT,
		git_branch TEXT,
		git_dirty INTEGER,
		UNIQUE(session_id, uuid)
	)`,

	// Indexes for common queries
	`CREATE INDEX IF NOT EXISTS idx_session_id ON lines(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_type ON lines(type)`,
	`CREATE INDEX IF NOT EXISTS idx_timestamp ON lines(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_slug ON lines(slug)`,
	`CREATE INDEX IF NOT EXISTS idx_line_number ON lines(line_number)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_turn_id ON lines(turn_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_session_name ON lines(session_name)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_git_hash ON lines(git_hash)`,

	// FTS5 virtual table for full-text search on lines
	`CREATE VIRTUAL TABLE IF NOT EXISTS lines_fts USING fts5(
		content,
		session_id UNINDEXED,
		slug UNINDEXED,
		type UNINDEXED,
		content='lines',
		content_rowid='id'
	)`,

	// Triggers to keep lines_fts in sync
	`CREATE TRIGGER IF NOT EXISTS lines_ai AFTER INSERT ON lines BEGIN
		INSERT INTO lines_fts(rowid, content, session_id, slug, type)
		VALUES (new.id, new.content, new.session_id, new.slug, new.type);
	END`,
	`CREATE TRIGGER IF NOT EXISTS lines_ad AFTER DELETE ON lines BEGIN
		INSERT INTO lines_fts(lines_fts, rowid, content, session_id, slug, type)
		VALUES ('delete', old.id, old.content, old.session_id, old.slug, old.type);
	END`,
	`CREATE TRIGGER IF NOT EXISTS lines_au AFTER UPDATE ON lines BEGIN
		INSERT INTO lines_fts(lines_fts, rowid, content, session_id, slug, type)
		VALUES ('delete', old.id, old.content, old.session_id, old.slug, old.type);
		INSERT INTO lines_fts(rowid, content, session_id, slug, type)
		VALUES (new.id, new.content, new.session_id, new.slug, new.type);
	END`,

	// Sessions table for quick lookups and delta tracking
	`CREATE TABLE IF NOT EXISTS sessions (
		file_path TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		slug TEXT,
		line_count INTEGER NOT NULL,
		byte_offset INTEGER NOT NULL DEFAULT 0,
		first_timestamp TEXT,
		last_timestamp TEXT,
		indexed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_session_id ON sessions(session_id)`,

	// Hook events table
	`CREATE TABLE IF NOT EXISTS hook_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		event_type TEXT NOT NULL,
		tool_use_id TEXT,
		tool_name TEXT,
		decision TEXT,
		handler_results TEXT,
		input_json TEXT,
		context_json TEXT,
		file_path TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		turn_id TEXT,
		turn_sequence INTEGER,
		session_name TEXT,
		git_hash TEXT,
		git_branch TEXT,
		git_dirty INTEGER
	)`,

	// Indexes for hook events
	`CREATE INDEX IF NOT EXISTS idx_hook_session ON hook_events(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_tool_use ON hook_events(tool_use_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_event_type ON hook_events(event_type)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_timestamp ON hook_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_turn_id ON hook_events(turn_id)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_session_name ON hook_events(session_name)`,
	`CREATE INDEX IF NOT EXISTS idx_hook_git_hash ON hook_events(git_hash)`,

	// Standalone FTS table for hook events
	`CREATE VIRTUAL TABLE IF NOT EXISTS hook_events_fts USING fts5(
		content
	)`,

	// Triggers to keep hook_events_fts in sync
	`CREATE TRIGGER IF NOT EXISTS hook_events_ai AFTER INSERT ON hook_events BEGIN
		INSERT INTO hook_events_fts(rowid, content)
		VALUES (new.id, COALESCE(new.event_type, '') || ' ' || COALESCE(new.tool_name, '') || ' ' || COALESCE(new.input_json, ''));
	END`,
	`CREATE TRIGGER IF NOT EXISTS hook_events_ad AFTER DELETE ON hook_events BEGIN
		DELETE FROM hook_events_fts WHERE rowid = old.id;
	END`,
	`CREATE TRIGGER IF NOT EXISTS hook_events_au AFTER UPDATE ON hook_events BEGIN
		DELETE FROM hook_events_fts WHERE rowid = old.id;
		INSERT INTO hook_events_fts(rowid, content)
		VALUES (new.id, COALESCE(new.event_type, '') || ' ' || COALESCE(new.tool_name, '') || ' ' || COALESCE(new.input_json, ''));
	END`,

	// Hook files tracking table (for delta updates)
	`CREATE TABLE IF NOT EXISTS hook_files (
		file_path TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		event_count INTEGER NOT NULL,
		byte_offset INTEGER NOT NULL DEFAULT 0,
		first_timestamp TEXT,
		last_timestamp TEXT,
		indexed_at TEXT NOT NULL
	)`,

	// Adapter cursors table (for external adapter delta tracking)
	`CREATE TABLE IF NOT EXISTS adapter_cursors (
		file_path TEXT NOT NULL,
		adapter_name TEXT NOT NULL,
		byte_offset INTEGER NOT NULL DEFAULT 0,
		line_count INTEGER NOT NULL DEFAULT 0,
		last_processed TEXT,
		PRIMARY KEY (file_path, adapter_name)
	)`,
}

// InitSchema creates all tables, indexes, FTS tables, and triggers, then runs
// any pending migrations and stamps the current version. Idempotent.
func InitSchema(conn *sql.DB) error {
	for _, stmt := range createStatements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema init: %w", err)
		}
	}

	if err := migrateSchema(conn); err != nil {
		return err
	}

	if _, err := conn.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('version', ?)",
		strconv.Itoa(DBVersion),
	); err != nil {
		return fmt.Errorf("set version: %w", err)
	}

	return nil
}

// migrateSchema upgrades an existing database from older versions to the
// current one. Each step is re-runnable; a fresh database (no version row)
// skips migration entirely and gets stamped by InitSchema.
func migrateSchema(conn *sql.DB) error {
	var version int
	err := conn.QueryRow(
		"SELECT CAST(value AS INTEGER) FROM metadata WHERE key = 'version'",
	).Scan(&version)
	if err != nil {
		// No version row yet - schema is fresh
		return nil
	}

	// Migration v4 -> v5: Add turn_id, turn_sequence, session_name columns
	if version == 4 {
		logger.Info("Migrating schema from v4 to v5...")
		columns := []string{"turn_id TEXT", "turn_sequence INTEGER", "session_name TEXT"}
		for _, col := range columns {
			// Errors ignored: the column may already exist from a partial run
			conn.Exec("ALTER TABLE lines ADD COLUMN " + col)
			conn.Exec("ALTER TABLE hook_events ADD COLUMN " + col)
		}
		stmts := []string{
			"CREATE INDEX IF NOT EXISTS idx_lines_turn_id ON lines(turn_id)",
			"CREATE INDEX IF NOT EXISTS idx_lines_session_name ON lines(session_name)",
			"CREATE INDEX IF NOT EXISTS idx_hook_turn_id ON hook_events(turn_id)",
			"CREATE INDEX IF NOT EXISTS idx_hook_session_name ON hook_events(session_name)",
		}
		for _, stmt := range stmts {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("migration v4->v5: %w", err)
			}
		}
		version = 5
	}

	// Migration v5 -> v6: shipped with a broken hook FTS schema, just bump
	// (repaired in v7)
	if version == 5 {
		logger.Info("Migrating schema from v5 to v6...")
		version = 6
	}

	// Migration v6 -> v7: Fix hook_events_fts (standalone instead of content table)
	if version == 6 {
		logger.Info("Migrating schema from v6 to v7...")
		drops := []string{
			"DROP TRIGGER IF EXISTS hook_events_ai",
			"DROP TRIGGER IF EXISTS hook_events_ad",
			"DROP TRIGGER IF EXISTS hook_events_au",
			"DROP TABLE IF EXISTS hook_events_fts",
		}
		for _, stmt := range drops {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("migration v6->v7: %w", err)
			}
		}

		recreate := []string{
			`CREATE VIRTUAL TABLE IF NOT EXISTS hook_events_fts USING fts5(
				content
			)`,
			`CREATE TRIGGER IF NOT EXISTS hook_events_ai AFTER INSERT ON hook_events BEGIN
				INSERT INTO hook_events_fts(rowid, content)
				VALUES (new.id, COALESCE(new.event_type, '') || ' ' || COALESCE(new.tool_name, '') || ' ' || COALESCE(new.input_json, ''));
			END`,
			`CREATE TRIGGER IF NOT EXISTS hook_events_ad AFTER DELETE ON hook_events BEGIN
				DELETE FROM hook_events_fts WHERE rowid = old.id;
			END`,
			`CREATE TRIGGER IF NOT EXISTS hook_events_au AFTER UPDATE ON hook_events BEGIN
				DELETE FROM hook_events_fts WHERE rowid = old.id;
				INSERT INTO hook_events_fts(rowid, content)
				VALUES (new.id, COALESCE(new.event_type, '') || ' ' || COALESCE(new.tool_name, '') || ' ' || COALESCE(new.input_json, ''));
			END`,
			// Populate FTS from existing data
			`INSERT INTO hook_events_fts(rowid, content)
			 SELECT id, COALESCE(event_type, '') || ' ' || COALESCE(tool_name, '') || ' ' || COALESCE(input_json, '')
			 FROM hook_events`,
		}
		for _, stmt := range recreate {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("migration v6->v7: %w", err)
			}
		}
		version = 7
	}

	// Migration v7 -> v8: Add git tracking columns
	if version == 7 {
		logger.Info("Migrating schema from v7 to v8...")
		gitColumns := []string{"git_hash TEXT", "git_branch TEXT", "git_dirty INTEGER"}
		for _, col := range gitColumns {
			conn.Exec("ALTER TABLE lines ADD COLUMN " + col)
			conn.Exec("ALTER TABLE hook_events ADD COLUMN " + col)
		}
		conn.Exec("CREATE INDEX IF NOT EXISTS idx_lines_git_hash ON lines(git_hash)")
		conn.Exec("CREATE INDEX IF NOT EXISTS idx_hook_git_hash ON hook_events(git_hash)")
		version = 8
	}

	// Migration v8 -> v9: Content trimming (no schema change, data convention
	// change). Indexed data now stores trimmed previews instead of full blobs;
	// run "recall rebuild" to apply trimming to historical data.
	if version == 8 {
		logger.Info("Migrating schema from v8 to v9 (content trimming convention)...")
		version = 9
	}

	// Migration v9 -> v10: Drop non-searchable line types. These rows have zero
	// searchable content but consume ~44% of database size.
	if version == 9 {
		logger.Info("Migrating schema from v9 to v10 (drop non-searchable line types)...")

		res, err := conn.Exec(
			"DELETE FROM lines WHERE type IN ('progress', 'file-history-snapshot', 'queue-operation')",
		)
		if err != nil {
			return fmt.Errorf("migration v9->v10: %w", err)
		}
		if deleted, err := res.RowsAffected(); err == nil {
			logger.Info("Deleted %d non-searchable rows", deleted)
		}

		// Rebuild FTS to remove orphaned entries
		rebuild := []string{
			"INSERT INTO lines_fts(lines_fts) VALUES('delete-all')",
			`INSERT INTO lines_fts(rowid, content, session_id, slug, type)
			 SELECT id, content, session_id, slug, type FROM lines`,
			// Session line counts are stale after the DELETE
			`UPDATE sessions SET line_count = (
				SELECT COUNT(*) FROM lines WHERE lines.file_path = sessions.file_path
			)`,
		}
		for _, stmt := range rebuild {
			if _, err := conn.Exec(stmt); err != nil {
				return fmt.Errorf("migration v9->v10: %w", err)
			}
		}
		version = 10
	}

	_ = version
	return nil
}
