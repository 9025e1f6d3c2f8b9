package store

import (
	"database/sql"
	"fmt"

	"github.com/ConfabulousDev/recall/pkg/types"
)

const sessionColumns = `
	session_id, slug, file_path, line_count, byte_offset,
	first_timestamp, last_timestamp, indexed_at`

// GetSessions returns all indexed sessions, most recently active first.
// recentDays > 0 restricts to sessions active within that window.
func (d *ReadDB) GetSessions(recentDays int64) ([]types.SessionInfo, error) {
	query := "SELECT" + sessionColumns + " FROM sessions"
	var args []interface{}
	if recentDays > 0 {
		query += " WHERE last_timestamp >= datetime('now', ? || ' days')"
		args = append(args, fmt.Sprintf("-%d", recentDays))
	}
	query += " ORDER BY last_timestamp DESC"

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.SessionInfo
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession looks up a session by exact session ID or slug.
func (d *ReadDB) GetSession(idOrSlug string) (*types.SessionInfo, error) {
	rows, err := d.conn.Query(
		"SELECT"+sessionColumns+" FROM sessions WHERE session_id = ? OR slug = ? LIMIT 1",
		idOrSlug, idOrSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSessions returns sessions whose session_id or slug contains the
// pattern, most recently active first (capped at 20).
func (d *ReadDB) FindSessions(pattern string) ([]types.SessionInfo, error) {
	like := "%" + pattern + "%"
	rows, err := d.conn.Query(`
		SELECT`+sessionColumns+`
		FROM sessions
		WHERE session_id LIKE ? OR slug LIKE ?
		ORDER BY last_timestamp DESC
		LIMIT 20`,
		like, like,
	)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.SessionInfo
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ResolveSession resolves a session from an identifier, trying in order:
// exact session ID or slug, then session_name via the lines table.
// Returns nil when nothing matches.
func (d *ReadDB) ResolveSession(nameOrID string) (*types.SessionInfo, error) {
	if session, err := d.GetSession(nameOrID); err != nil || session != nil {
		return session, err
	}

	rows, err := d.conn.Query(`
		SELECT DISTINCT
			s.session_id, s.slug, s.file_path, s.line_count, s.byte_offset,
			s.first_timestamp, s.last_timestamp, s.indexed_at
		FROM sessions s
		JOIN lines l ON s.session_id = l.session_id
		WHERE l.session_name = ?
		LIMIT 1`,
		nameOrID,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSession(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionIDsByName returns session IDs carrying the given session name in
// hook_events, most recent first.
func (d *ReadDB) GetSessionIDsByName(name string) ([]string, error) {
	rows, err := d.conn.Query(`
		SELECT DISTINCT session_id
		FROM hook_events
		WHERE session_name = ?
		ORDER BY timestamp DESC`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("sessions by name: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSession(rows *sql.Rows) (types.SessionInfo, error) {
	var s types.SessionInfo
	var slug, first, last sql.NullString
	err := rows.Scan(
		&s.SessionID, &slug, &s.FilePath, &s.LineCount, &s.ByteOffset,
		&first, &last, &s.IndexedAt,
	)
	if err != nil {
		return s, fmt.Errorf("scan session: %w", err)
	}
	s.Slug = nullableString(slug)
	s.FirstTimestamp = nullableString(first)
	s.LastTimestamp = nullableString(last)
	return s, nil
}
