package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ConfabulousDev/recall/pkg/types"
)

// HookEventFilter filters a hook event query. Zero values mean "no filter".
type HookEventFilter struct {
	SessionID  string
	EventTypes []string
	ToolNames  []string
	FromTime   string
	ToTime     string
	Limit      int64
	Offset     int64
	Order      Order
}

const hookColumns = `
	id, session_id, timestamp, event_type, tool_use_id, tool_name,
	decision, handler_results, input_json, context_json,
	file_path, line_number, turn_id, turn_sequence, session_name,
	git_hash, git_branch, git_dirty`

// GetHookEvents returns hook events matching the filter, sorted by timestamp
// (id as tiebreaker).
func (d *ReadDB) GetHookEvents(filter HookEventFilter) ([]types.HookEvent, error) {
	var sb strings.Builder
	sb.WriteString("SELECT" + hookColumns + " FROM hook_events WHERE 1=1")
	var args []interface{}

	if filter.SessionID != "" {
		sb.WriteString(" AND session_id = ?")
		args = append(args, filter.SessionID)
	}
	if len(filter.EventTypes) > 0 {
		sb.WriteString(" AND event_type IN (" + placeholders(len(filter.EventTypes)) + ")")
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if len(filter.ToolNames) > 0 {
		sb.WriteString(" AND tool_name IN (" + placeholders(len(filter.ToolNames)) + ")")
		for _, t := range filter.ToolNames {
			args = append(args, t)
		}
	}
	if filter.FromTime != "" {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, filter.FromTime)
	}
	if filter.ToTime != "" {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, filter.ToTime)
	}

	order := filter.Order.String()
	sb.WriteString(fmt.Sprintf(" ORDER BY timestamp %s, id %s", order, order))

	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	return d.queryHookEvents(sb.String(), args...)
}

// SearchHookEvents runs a ranked full-text search over the hook event index
// (event type, tool name, input payload). Ordered by bm25, lower is better.
func (d *ReadDB) SearchHookEvents(query string, limit int64) ([]types.HookEvent, error) {
	ftsQuery := BuildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	stmt := `
		SELECT` + prefixColumns("he", hookColumns) + `
		FROM hook_events_fts fts
		JOIN hook_events he ON fts.rowid = he.id
		WHERE hook_events_fts MATCH ?
		ORDER BY bm25(hook_events_fts)
		LIMIT ?`

	return d.queryHookEvents(stmt, ftsQuery, limit)
}

// GetHookEventsAfterID returns hook events with id strictly greater than
// afterID in ascending id order, with optional session/type/tool filters.
// Used by tailing consumers.
func (d *ReadDB) GetHookEventsAfterID(afterID int64, sessionID string, eventTypes, toolNames []string) ([]types.HookEvent, error) {
	var sb strings.Builder
	sb.WriteString("SELECT" + hookColumns + " FROM hook_events WHERE id > ?")
	args := []interface{}{afterID}

	if sessionID != "" {
		sb.WriteString(" AND session_id = ?")
		args = append(args, sessionID)
	}
	if len(eventTypes) > 0 {
		sb.WriteString(" AND event_type IN (" + placeholders(len(eventTypes)) + ")")
		for _, t := range eventTypes {
			args = append(args, t)
		}
	}
	if len(toolNames) > 0 {
		sb.WriteString(" AND tool_name IN (" + placeholders(len(toolNames)) + ")")
		for _, t := range toolNames {
			args = append(args, t)
		}
	}

	sb.WriteString(" ORDER BY id ASC")
	return d.queryHookEvents(sb.String(), args...)
}

// GetMaxHookEventID returns the maximum hook event id, optionally scoped to a
// session. Returns 0 for an empty table.
func (d *ReadDB) GetMaxHookEventID(sessionID string) (int64, error) {
	var id int64
	var err error
	if sessionID != "" {
		err = d.conn.QueryRow(
			"SELECT COALESCE(MAX(id), 0) FROM hook_events WHERE session_id = ?", sessionID,
		).Scan(&id)
	} else {
		err = d.conn.QueryRow("SELECT COALESCE(MAX(id), 0) FROM hook_events").Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("max hook event id: %w", err)
	}
	return id, nil
}

// GetHookEventCount returns the number of hook events, optionally scoped to a
// session.
func (d *ReadDB) GetHookEventCount(sessionID string) (int64, error) {
	var count int64
	var err error
	if sessionID != "" {
		err = d.conn.QueryRow(
			"SELECT COUNT(*) FROM hook_events WHERE session_id = ?", sessionID,
		).Scan(&count)
	} else {
		err = d.conn.QueryRow("SELECT COUNT(*) FROM hook_events").Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("hook event count: %w", err)
	}
	return count, nil
}

// GetHookSessions lists sessions from the hook_files cursor table, most
// recent first. When namesOnly is false, the latest known session name is
// joined in from hook_events.
func (d *ReadDB) GetHookSessions(recentDays int64, namesOnly bool) ([]types.HookSession, error) {
	query := `
		SELECT session_id, file_path, event_count, first_timestamp, last_timestamp, indexed_at
		FROM hook_files
		WHERE 1=1`
	var args []interface{}
	if recentDays > 0 {
		query += " AND last_timestamp >= datetime('now', ? || ' days')"
		args = append(args, fmt.Sprintf("-%d", recentDays))
	}
	query += " ORDER BY last_timestamp DESC"

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hook sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.HookSession
	for rows.Next() {
		var s types.HookSession
		var first, last sql.NullString
		if err := rows.Scan(&s.SessionID, &s.FilePath, &s.EventCount, &first, &last, &s.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan hook session: %w", err)
		}
		s.FirstTimestamp = nullableString(first)
		s.LastTimestamp = nullableString(last)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !namesOnly {
		for i := range sessions {
			var name sql.NullString
			d.conn.QueryRow(`
				SELECT session_name FROM hook_events
				WHERE session_id = ? AND session_name IS NOT NULL
				ORDER BY timestamp DESC LIMIT 1`,
				sessions[i].SessionID,
			).Scan(&name)
			sessions[i].SessionName = nullableString(name)
		}
	}

	return sessions, nil
}

// HookSessionInfo aggregates per-session hook statistics.
type HookSessionInfo struct {
	SessionID      string
	FilePath       string
	TotalEvents    int64
	FirstTimestamp *string
	LastTimestamp  *string
	SessionName    *string
	EventCounts    []NameCount
	ToolCounts     []NameCount
}

// NameCount is a (name, count) aggregation pair.
type NameCount struct {
	Name  string
	Count int64
}

// GetHookSessionInfo returns aggregated event-type and tool-name counts for a
// session, or nil if the session has no hook events.
func (d *ReadDB) GetHookSessionInfo(sessionID string) (*HookSessionInfo, error) {
	eventCounts, err := d.nameCounts(
		`SELECT event_type, COUNT(*) AS cnt FROM hook_events
		 WHERE session_id = ? GROUP BY event_type ORDER BY cnt DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(eventCounts) == 0 {
		return nil, nil
	}

	toolCounts, err := d.nameCounts(
		`SELECT tool_name, COUNT(*) AS cnt FROM hook_events
		 WHERE session_id = ? AND tool_name IS NOT NULL
		 GROUP BY tool_name ORDER BY cnt DESC`, sessionID)
	if err != nil {
		return nil, err
	}

	info := &HookSessionInfo{
		SessionID:   sessionID,
		EventCounts: eventCounts,
		ToolCounts:  toolCounts,
	}

	var first, last, name sql.NullString
	err = d.conn.QueryRow(`
		SELECT MIN(timestamp), MAX(timestamp), COUNT(*), file_path
		FROM hook_events WHERE session_id = ?`,
		sessionID,
	).Scan(&first, &last, &info.TotalEvents, &info.FilePath)
	if err != nil {
		return nil, fmt.Errorf("hook session info: %w", err)
	}
	info.FirstTimestamp = nullableString(first)
	info.LastTimestamp = nullableString(last)

	d.conn.QueryRow(`
		SELECT session_name FROM hook_events
		WHERE session_id = ? AND session_name IS NOT NULL
		ORDER BY timestamp DESC LIMIT 1`,
		sessionID,
	).Scan(&name)
	info.SessionName = nullableString(name)

	return info, nil
}

func (d *ReadDB) nameCounts(query, sessionID string) ([]NameCount, error) {
	rows, err := d.conn.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("aggregate counts: %w", err)
	}
	defer rows.Close()

	var counts []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, nc)
	}
	return counts, rows.Err()
}

// ResolveHookSession resolves a session identifier for hook queries.
// Supports "." (most recent hook session), a raw session ID, a session name,
// or anything resolve-session understands that also has hook events.
// Returns "" when nothing matches.
func (d *ReadDB) ResolveHookSession(nameOrID string) (string, error) {
	if nameOrID == "." {
		var sid string
		err := d.conn.QueryRow(
			"SELECT session_id FROM hook_files ORDER BY last_timestamp DESC LIMIT 1",
		).Scan(&sid)
		if err == sql.ErrNoRows {
			return "", nil
		}
		return sid, err
	}

	// Direct match in hook_files
	var direct string
	err := d.conn.QueryRow(
		"SELECT session_id FROM hook_files WHERE session_id = ? LIMIT 1", nameOrID,
	).Scan(&direct)
	if err == nil {
		return direct, nil
	}

	// Session name lookup in hook_events
	var byName string
	err = d.conn.QueryRow(
		"SELECT session_id FROM hook_events WHERE session_name = ? ORDER BY timestamp DESC LIMIT 1",
		nameOrID,
	).Scan(&byName)
	if err == nil {
		return byName, nil
	}

	// Transcript-side resolution, verified against hook events
	if session, err := d.ResolveSession(nameOrID); err == nil && session != nil {
		if d.hasHookEvents(session.SessionID) {
			return session.SessionID, nil
		}
	}

	// Raw session ID present only in hook_events
	if d.hasHookEvents(nameOrID) {
		return nameOrID, nil
	}

	return "", nil
}

func (d *ReadDB) hasHookEvents(sessionID string) bool {
	var exists bool
	d.conn.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM hook_events WHERE session_id = ?)", sessionID,
	).Scan(&exists)
	return exists
}

// FileEdit aggregates PostToolUse events for file-modifying tools by edited
// path.
type FileEdit struct {
	FilePath       string
	EditCount      int64
	ToolsUsed      []string
	FirstTimestamp string
	LastTimestamp  string
}

// GetSessionFileEdits reduces PostToolUse events for Edit/Write/NotebookEdit
// over the given sessions into per-file edit summaries, sorted by path.
func (d *ReadDB) GetSessionFileEdits(sessionIDs []string) ([]FileEdit, error) {
	fileMap := make(map[string]*FileEdit)

	for _, sessionID := range sessionIDs {
		events, err := d.GetHookEvents(HookEventFilter{
			SessionID:  sessionID,
			EventTypes: []string{"PostToolUse"},
			ToolNames:  []string{"Edit", "Write", "NotebookEdit"},
			Limit:      10000,
		})
		if err != nil {
			return nil, err
		}

		for _, event := range events {
			path := extractEditedFilePath(event)
			if path == "" {
				continue
			}
			tool := "unknown"
			if event.ToolName != nil {
				tool = *event.ToolName
			}
			entry, ok := fileMap[path]
			if !ok {
				entry = &FileEdit{
					FilePath:       path,
					FirstTimestamp: event.Timestamp,
					LastTimestamp:  event.Timestamp,
				}
				fileMap[path] = entry
			}
			entry.EditCount++
			if !contains(entry.ToolsUsed, tool) {
				entry.ToolsUsed = append(entry.ToolsUsed, tool)
			}
			if event.Timestamp < entry.FirstTimestamp {
				entry.FirstTimestamp = event.Timestamp
			}
			if event.Timestamp > entry.LastTimestamp {
				entry.LastTimestamp = event.Timestamp
			}
		}
	}

	edits := make([]FileEdit, 0, len(fileMap))
	for _, e := range fileMap {
		edits = append(edits, *e)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].FilePath < edits[j].FilePath })
	return edits, nil
}

// extractEditedFilePath pulls the edited file path out of a hook event's
// input payload, checking tool_input.file_path, file_path,
// tool_input.notebook_path, and notebook_path in that order.
func extractEditedFilePath(event types.HookEvent) string {
	if event.InputJSON == nil {
		return ""
	}
	var input map[string]interface{}
	if err := json.Unmarshal([]byte(*event.InputJSON), &input); err != nil {
		return ""
	}

	toolInput, _ := input["tool_input"].(map[string]interface{})
	for _, candidate := range []interface{}{
		mapGet(toolInput, "file_path"),
		input["file_path"],
		mapGet(toolInput, "notebook_path"),
		input["notebook_path"],
	} {
		if path, ok := candidate.(string); ok && path != "" {
			return path
		}
	}
	return ""
}

func mapGet(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}

func contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func (d *ReadDB) queryHookEvents(query string, args ...interface{}) ([]types.HookEvent, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hook events: %w", err)
	}
	defer rows.Close()

	var events []types.HookEvent
	for rows.Next() {
		event, err := scanHookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanHookEvent(rows *sql.Rows) (types.HookEvent, error) {
	var e types.HookEvent
	var toolUseID, toolName, decision, handlerResults, inputJSON, contextJSON sql.NullString
	var turnID, sessionName, gitHash, gitBranch sql.NullString
	var turnSequence, gitDirty sql.NullInt64

	err := rows.Scan(
		&e.ID, &e.SessionID, &e.Timestamp, &e.EventType, &toolUseID, &toolName,
		&decision, &handlerResults, &inputJSON, &contextJSON, &e.FilePath,
		&e.LineNumber, &turnID, &turnSequence, &sessionName, &gitHash,
		&gitBranch, &gitDirty,
	)
	if err != nil {
		return e, fmt.Errorf("scan hook event: %w", err)
	}

	e.ToolUseID = nullableString(toolUseID)
	e.ToolName = nullableString(toolName)
	e.Decision = nullableString(decision)
	e.HandlerResults = nullableString(handlerResults)
	e.InputJSON = nullableString(inputJSON)
	e.ContextJSON = nullableString(contextJSON)
	e.TurnID = nullableString(turnID)
	e.TurnSequence = nullableInt(turnSequence)
	e.SessionName = nullableString(sessionName)
	e.GitHash = nullableString(gitHash)
	e.GitBranch = nullableString(gitBranch)
	e.GitDirty = nullableBool(gitDirty)
	return e, nil
}
