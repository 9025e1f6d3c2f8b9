package store

import (
	"testing"
)

func seedHookEvents(t *testing.T, db *DB) {
	t.Helper()
	rows := []struct {
		session   string
		ts        string
		eventType string
		toolName  interface{}
		inputJSON interface{}
		name      interface{}
	}{
		{"s1", "2024-01-01T00:00:00Z", "SessionStart", nil, nil, "happy-dog"},
		{"s1", "2024-01-01T00:00:01Z", "PreToolUse", "Bash", `{"tool_input":{"command":"cargo test"}}`, nil},
		{"s1", "2024-01-01T00:00:02Z", "PostToolUse", "Edit", `{"tool_input":{"file_path":"/src/main.go"}}`, nil},
		{"s1", "2024-01-01T00:00:03Z", "PostToolUse", "Write", `{"tool_input":{"file_path":"/src/main.go"}}`, nil},
		{"s1", "2024-01-01T00:00:04Z", "Stop", nil, nil, nil},
		{"s2", "2024-01-02T00:00:00Z", "PreToolUse", "Read", `{"tool_input":{"file_path":"/etc/hosts"}}`, nil},
	}
	for _, r := range rows {
		mustExec(t, db, `INSERT INTO hook_events
			(session_id, timestamp, event_type, tool_name, input_json, session_name, file_path, line_number)
			VALUES (?, ?, ?, ?, ?, ?, '/hooks', 1)`,
			r.session, r.ts, r.eventType, r.toolName, r.inputJSON, r.name)
	}
	mustExec(t, db, `INSERT INTO hook_files (file_path, session_id, event_count, byte_offset, last_timestamp, indexed_at)
		VALUES ('/hooks/s1.hooks.jsonl', 's1', 5, 100, '2024-01-01T00:00:04Z', '2024-01-01')`)
	mustExec(t, db, `INSERT INTO hook_files (file_path, session_id, event_count, byte_offset, last_timestamp, indexed_at)
		VALUES ('/hooks/s2.hooks.jsonl', 's2', 1, 50, '2024-01-02T00:00:00Z', '2024-01-02')`)
}

func TestGetHookEventsFilters(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	events, err := rdb.GetHookEvents(HookEventFilter{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Fatalf("session filter: got %d", len(events))
	}

	events, _ = rdb.GetHookEvents(HookEventFilter{SessionID: "s1", EventTypes: []string{"PreToolUse", "PostToolUse"}})
	if len(events) != 3 {
		t.Errorf("event type filter: got %d", len(events))
	}

	events, _ = rdb.GetHookEvents(HookEventFilter{ToolNames: []string{"Bash"}})
	if len(events) != 1 {
		t.Errorf("tool name filter: got %d", len(events))
	}

	events, _ = rdb.GetHookEvents(HookEventFilter{SessionID: "s1", Order: Desc, Limit: 1})
	if len(events) != 1 || events[0].EventType != "Stop" {
		t.Errorf("desc limit: got %v", events)
	}

	events, _ = rdb.GetHookEvents(HookEventFilter{FromTime: "2024-01-01T00:00:02Z", ToTime: "2024-01-01T00:00:03Z"})
	if len(events) != 2 {
		t.Errorf("time window: got %d", len(events))
	}
}

func TestSearchHookEvents(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	events, err := rdb.SearchHookEvents("cargo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d results", len(events))
	}
	if events[0].ToolName == nil || *events[0].ToolName != "Bash" {
		t.Errorf("wrong event: %v", events[0])
	}

	// Tool names are indexed too
	events, _ = rdb.SearchHookEvents("Edit", 10)
	if len(events) != 1 {
		t.Errorf("tool name search: got %d", len(events))
	}

	// Empty query yields no results, not an error
	events, err = rdb.SearchHookEvents("   ", 10)
	if err != nil || len(events) != 0 {
		t.Errorf("empty query: events=%d err=%v", len(events), err)
	}
}

func TestHookEventsAfterID(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	maxID, err := rdb.GetMaxHookEventID("")
	if err != nil {
		t.Fatal(err)
	}
	if maxID != 6 {
		t.Fatalf("max id = %d", maxID)
	}

	events, err := rdb.GetHookEventsAfterID(4, "", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("after id 4: got %d", len(events))
	}
	if events[0].ID != 5 || events[1].ID != 6 {
		t.Errorf("ascending ids: %d, %d", events[0].ID, events[1].ID)
	}

	events, _ = rdb.GetHookEventsAfterID(0, "s1", []string{"PostToolUse"}, []string{"Edit"})
	if len(events) != 1 {
		t.Errorf("filtered tail: got %d", len(events))
	}
}

func TestGetHookSessions(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	sessions, err := rdb.GetHookSessions(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	// Most recent first
	if sessions[0].SessionID != "s2" {
		t.Errorf("order: first = %s", sessions[0].SessionID)
	}
	// Name joined in from hook_events
	for _, s := range sessions {
		if s.SessionID == "s1" {
			if s.SessionName == nil || *s.SessionName != "happy-dog" {
				t.Errorf("session name not joined: %v", s.SessionName)
			}
		}
	}
}

func TestGetHookSessionInfo(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	info, err := rdb.GetHookSessionInfo("s1")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("expected info")
	}
	if info.TotalEvents != 5 {
		t.Errorf("total events = %d", info.TotalEvents)
	}
	if info.SessionName == nil || *info.SessionName != "happy-dog" {
		t.Errorf("session name: %v", info.SessionName)
	}

	counts := make(map[string]int64)
	for _, c := range info.EventCounts {
		counts[c.Name] = c.Count
	}
	if counts["PostToolUse"] != 2 || counts["Stop"] != 1 {
		t.Errorf("event counts: %v", counts)
	}

	toolCounts := make(map[string]int64)
	for _, c := range info.ToolCounts {
		toolCounts[c.Name] = c.Count
	}
	if toolCounts["Edit"] != 1 || toolCounts["Write"] != 1 || toolCounts["Bash"] != 1 {
		t.Errorf("tool counts: %v", toolCounts)
	}

	// Unknown session
	info, err = rdb.GetHookSessionInfo("nope")
	if err != nil || info != nil {
		t.Errorf("unknown session: info=%v err=%v", info, err)
	}
}

func TestResolveHookSession(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	// Most recent
	sid, err := rdb.ResolveHookSession(".")
	if err != nil || sid != "s2" {
		t.Errorf("dot resolution: %q err=%v", sid, err)
	}

	// Direct id
	sid, _ = rdb.ResolveHookSession("s1")
	if sid != "s1" {
		t.Errorf("direct resolution: %q", sid)
	}

	// Session name
	sid, _ = rdb.ResolveHookSession("happy-dog")
	if sid != "s1" {
		t.Errorf("name resolution: %q", sid)
	}

	// Nothing
	sid, _ = rdb.ResolveHookSession("no-such-session")
	if sid != "" {
		t.Errorf("missing resolution: %q", sid)
	}
}

func TestGetSessionFileEdits(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)
	rdb := openReadFrom(t, db)

	edits, err := rdb.GetSessionFileEdits([]string{"s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(edits) != 1 {
		t.Fatalf("got %d files", len(edits))
	}
	edit := edits[0]
	if edit.FilePath != "/src/main.go" {
		t.Errorf("path: %s", edit.FilePath)
	}
	if edit.EditCount != 2 {
		t.Errorf("edit count: %d", edit.EditCount)
	}
	if len(edit.ToolsUsed) != 2 {
		t.Errorf("tools: %v", edit.ToolsUsed)
	}
	if edit.FirstTimestamp != "2024-01-01T00:00:02Z" || edit.LastTimestamp != "2024-01-01T00:00:03Z" {
		t.Errorf("timestamps: %s..%s", edit.FirstTimestamp, edit.LastTimestamp)
	}
}

func TestHookFTSCoherence(t *testing.T) {
	db := openTestDB(t)
	seedHookEvents(t, db)

	var eventCount, ftsCount int64
	db.Conn().QueryRow("SELECT COUNT(*) FROM hook_events").Scan(&eventCount)
	db.Conn().QueryRow("SELECT COUNT(*) FROM hook_events_fts").Scan(&ftsCount)
	if eventCount != ftsCount {
		t.Errorf("events=%d fts=%d", eventCount, ftsCount)
	}

	mustExec(t, db, "DELETE FROM hook_events WHERE session_id = 's2'")
	db.Conn().QueryRow("SELECT COUNT(*) FROM hook_events").Scan(&eventCount)
	db.Conn().QueryRow("SELECT COUNT(*) FROM hook_events_fts").Scan(&ftsCount)
	if eventCount != ftsCount {
		t.Errorf("after delete: events=%d fts=%d", eventCount, ftsCount)
	}
}
