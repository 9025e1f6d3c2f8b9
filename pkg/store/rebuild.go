package store

import (
	"fmt"
)

// Rebuild drops and recreates the entire index. All data tables, FTS tables,
// and triggers are removed, then the schema is reinitialized at the current
// version. The metadata version row is retained; only last_indexed is
// cleared. The caller is expected to run full indexing and correlation
// afterwards.
func (d *DB) Rebuild() error {
	// Drop triggers first (they reference tables)
	drops := []string{
		"DROP TRIGGER IF EXISTS lines_ai",
		"DROP TRIGGER IF EXISTS lines_ad",
		"DROP TRIGGER IF EXISTS lines_au",
		"DROP TRIGGER IF EXISTS hook_events_ai",
		"DROP TRIGGER IF EXISTS hook_events_ad",
		"DROP TRIGGER IF EXISTS hook_events_au",

		// FTS tables
		"DROP TABLE IF EXISTS lines_fts",
		"DROP TABLE IF EXISTS hook_events_fts",

		// Data tables
		"DROP TABLE IF EXISTS lines",
		"DROP TABLE IF EXISTS sessions",
		"DROP TABLE IF EXISTS hook_events",
		"DROP TABLE IF EXISTS hook_files",
		"DROP TABLE IF EXISTS adapter_cursors",
	}
	for _, stmt := range drops {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}

	// Clear last_indexed from metadata (keep the table and version)
	if _, err := d.conn.Exec("DELETE FROM metadata WHERE key = 'last_indexed'"); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	return InitSchema(d.conn)
}
