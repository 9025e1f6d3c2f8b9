package indexer

import (
	"database/sql"
	"testing"

	"github.com/ConfabulousDev/recall/pkg/store"
)

func insertLine(t *testing.T, db *store.DB, session, uuid string, num int64, ts string) {
	t.Helper()
	_, err := db.Conn().Exec(`
		INSERT INTO lines (session_id, uuid, line_number, type, timestamp, raw, file_path, content)
		VALUES (?, ?, ?, 'user', ?, '{}', '/test', 'text')`,
		session, uuid, num, ts)
	if err != nil {
		t.Fatal(err)
	}
}

func insertHookEvent(t *testing.T, db *store.DB, session, ts, eventType string, turnID interface{}, turnSeq interface{}, sessionName interface{}) {
	t.Helper()
	_, err := db.Conn().Exec(`
		INSERT INTO hook_events (session_id, timestamp, event_type, file_path, line_number, turn_id, turn_sequence, session_name)
		VALUES (?, ?, ?, '/hooks', 1, ?, ?, ?)`,
		session, ts, eventType, turnID, turnSeq, sessionName)
	if err != nil {
		t.Fatal(err)
	}
}

func lineTurn(t *testing.T, db *store.DB, uuid string) (turnID sql.NullString, seq sql.NullInt64, name sql.NullString) {
	t.Helper()
	err := db.Conn().QueryRow(
		"SELECT turn_id, turn_sequence, session_name FROM lines WHERE uuid = ?", uuid,
	).Scan(&turnID, &seq, &name)
	if err != nil {
		t.Fatal(err)
	}
	return
}

func TestCorrelateWithStopEvents(t *testing.T) {
	db := setupDB(t)

	// Lines at t=1,2,5; Stops at t=3 (turn s:1, seq 1) and t=6 (turn s:2, seq 2)
	insertLine(t, db, "s1", "u1", 1, "2024-01-01T00:00:01Z")
	insertLine(t, db, "s1", "u2", 2, "2024-01-01T00:00:02Z")
	insertLine(t, db, "s1", "u3", 3, "2024-01-01T00:00:05Z")

	insertHookEvent(t, db, "s1", "2024-01-01T00:00:00Z", "SessionStart", nil, nil, "test-session")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:03Z", "Stop", "s1:1", 1, "test-session")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:06Z", "Stop", "s1:2", 2, "test-session")

	result, err := CorrelateLinesToTurns(db.Conn())
	if err != nil {
		t.Fatal(err)
	}
	if result.Sessions != 1 {
		t.Errorf("sessions = %d", result.Sessions)
	}
	if result.Updated != 3 {
		t.Errorf("updated = %d", result.Updated)
	}

	for _, tc := range []struct {
		uuid string
		turn string
		seq  int64
	}{
		{"u1", "s1:1", 1},
		{"u2", "s1:1", 1},
		{"u3", "s1:2", 2},
	} {
		turnID, seq, name := lineTurn(t, db, tc.uuid)
		if !turnID.Valid || turnID.String != tc.turn || seq.Int64 != tc.seq {
			t.Errorf("%s: turn %v seq %v, want %s/%d", tc.uuid, turnID, seq, tc.turn, tc.seq)
		}
		if !name.Valid || name.String != "test-session" {
			t.Errorf("%s: session name %v", tc.uuid, name)
		}
	}
}

func TestCorrelateContainment(t *testing.T) {
	db := setupDB(t)

	// A line exactly at a Stop timestamp belongs to that Stop's turn
	// (half-open interval (prev, this]); a line just after starts the next
	insertLine(t, db, "s1", "edge", 1, "2024-01-01T00:00:03Z")
	insertLine(t, db, "s1", "next", 2, "2024-01-01T00:00:04Z")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:03Z", "Stop", "s1:1", 1, nil)
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:07Z", "Stop", "s1:2", 2, nil)

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	turnID, _, _ := lineTurn(t, db, "edge")
	if turnID.String != "s1:1" {
		t.Errorf("boundary line: turn %v", turnID)
	}
	turnID, _, _ = lineTurn(t, db, "next")
	if turnID.String != "s1:2" {
		t.Errorf("post-boundary line: turn %v", turnID)
	}
}

func TestCorrelateLinesAfterLastStop(t *testing.T) {
	db := setupDB(t)

	insertLine(t, db, "s1", "u1", 1, "2024-01-01T00:00:01Z")
	insertLine(t, db, "s1", "late", 2, "2024-01-01T00:00:10Z")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:00Z", "SessionStart", nil, nil, "named")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:05Z", "Stop", "s1:1", 1, nil)

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	// The in-progress turn after the last Stop only gets the name backfilled
	turnID, _, name := lineTurn(t, db, "late")
	if turnID.Valid {
		t.Errorf("late line should have no turn, got %v", turnID)
	}
	if !name.Valid || name.String != "named" {
		t.Errorf("late line session name: %v", name)
	}
}

func TestCorrelateToolEventFallback(t *testing.T) {
	db := setupDB(t)

	// Lines at t=1,2,5; no Stop events, tool groups at [1.5,2.5] and [4.5,5.5].
	// Timestamps use one fixed precision: attribution compares them as strings.
	insertLine(t, db, "s1", "u1", 1, "2024-01-01T00:00:01.000Z")
	insertLine(t, db, "s1", "u2", 2, "2024-01-01T00:00:02.000Z")
	insertLine(t, db, "s1", "u3", 3, "2024-01-01T00:00:05.000Z")

	insertHookEvent(t, db, "s1", "2024-01-01T00:00:00.000Z", "SessionStart", nil, nil, "fallback-name")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:01.500Z", "PreToolUse", "s1:1", 1, nil)
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:02.500Z", "PostToolUse", "s1:1", 1, nil)
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:04.500Z", "PreToolUse", "s1:2", 2, nil)
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:05.500Z", "PostToolUse", "s1:2", 2, nil)

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	// Line at t=1 precedes the first tool group: no turn, but name backfilled
	turnID, _, name := lineTurn(t, db, "u1")
	if turnID.Valid {
		t.Errorf("u1 should be unattributed, got %v", turnID)
	}
	if !name.Valid || name.String != "fallback-name" {
		t.Errorf("u1 session name: %v", name)
	}

	// Line at t=2 falls in [1.5, 4.5)
	turnID, seq, _ := lineTurn(t, db, "u2")
	if turnID.String != "s1:1" || seq.Int64 != 1 {
		t.Errorf("u2: %v/%v", turnID, seq)
	}

	// Line at t=5 falls in [4.5, inf)
	turnID, seq, _ = lineTurn(t, db, "u3")
	if turnID.String != "s1:2" || seq.Int64 != 2 {
		t.Errorf("u3: %v/%v", turnID, seq)
	}
}

func TestCorrelateToolFallbackSequencePerTurn(t *testing.T) {
	db := setupDB(t)

	// The producer is expected to keep (turn_id, turn_sequence) 1:1; events
	// within one turn share both fields and grouping yields one interval per
	// turn
	insertLine(t, db, "s1", "u1", 1, "2024-01-01T00:00:02Z")
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:01Z", "PreToolUse", "s1:1", 1, nil)
	insertHookEvent(t, db, "s1", "2024-01-01T00:00:03Z", "PostToolUse", "s1:1", 1, nil)

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	var groups int64
	db.Conn().QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT DISTINCT turn_id, turn_sequence FROM hook_events
			WHERE event_type IN ('PreToolUse','PostToolUse')
		)`).Scan(&groups)
	if groups != 1 {
		t.Errorf("expected one (turn_id, turn_sequence) group, got %d", groups)
	}

	turnID, seq, _ := lineTurn(t, db, "u1")
	if turnID.String != "s1:1" || seq.Int64 != 1 {
		t.Errorf("u1: %v/%v", turnID, seq)
	}
}

func TestCorrelateSessionNameOnly(t *testing.T) {
	db := setupDB(t)

	insertLine(t, db, "s2", "u1", 1, "2024-01-01T00:00:00Z")
	insertHookEvent(t, db, "s2", "2024-01-01T00:00:00Z", "SessionStart", nil, nil, "lonely-cat")

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	turnID, _, name := lineTurn(t, db, "u1")
	if turnID.Valid {
		t.Errorf("turn should be null: %v", turnID)
	}
	if !name.Valid || name.String != "lonely-cat" {
		t.Errorf("session name: %v", name)
	}
}

func TestCorrelateIdempotent(t *testing.T) {
	db := setupDB(t)

	// Already correlated line: nothing to do
	_, err := db.Conn().Exec(`
		INSERT INTO lines (session_id, uuid, line_number, type, timestamp, raw, file_path, content, turn_id, turn_sequence, session_name)
		VALUES ('s3', 'u1', 1, 'user', '2024-01-01T00:00:00Z', '{}', '/test', 'done', 's3:1', 1, 'done')`)
	if err != nil {
		t.Fatal(err)
	}

	result, err := CorrelateLinesToTurns(db.Conn())
	if err != nil {
		t.Fatal(err)
	}
	if result.Sessions != 0 || result.Updated != 0 {
		t.Errorf("idempotent pass did work: %+v", result)
	}

	// Repeated runs over fresh data converge: second run is a no-op
	insertLine(t, db, "s4", "u1", 1, "2024-01-01T00:00:01Z")
	insertHookEvent(t, db, "s4", "2024-01-01T00:00:02Z", "Stop", "s4:1", 1, nil)

	first, err := CorrelateLinesToTurns(db.Conn())
	if err != nil {
		t.Fatal(err)
	}
	if first.Updated != 1 {
		t.Errorf("first run updated = %d", first.Updated)
	}
	second, err := CorrelateLinesToTurns(db.Conn())
	if err != nil {
		t.Fatal(err)
	}
	if second.Updated != 0 {
		t.Errorf("second run updated = %d", second.Updated)
	}
}

func TestCorrelateSequenceMonotoneAcrossTurns(t *testing.T) {
	db := setupDB(t)

	for i, ts := range []string{"2024-01-01T00:00:01Z", "2024-01-01T00:00:04Z", "2024-01-01T00:00:07Z"} {
		insertLine(t, db, "s5", []string{"a", "b", "c"}[i], int64(i+1), ts)
	}
	insertHookEvent(t, db, "s5", "2024-01-01T00:00:02Z", "Stop", "s5:1", 1, nil)
	insertHookEvent(t, db, "s5", "2024-01-01T00:00:05Z", "Stop", "s5:2", 2, nil)
	insertHookEvent(t, db, "s5", "2024-01-01T00:00:08Z", "Stop", "s5:3", 3, nil)

	if _, err := CorrelateLinesToTurns(db.Conn()); err != nil {
		t.Fatal(err)
	}

	rows, err := db.Conn().Query(`
		SELECT turn_sequence FROM lines WHERE session_id = 's5' ORDER BY line_number`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	var prev int64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			t.Fatal(err)
		}
		if seq <= prev {
			t.Errorf("turn_sequence not strictly increasing: %d after %d", seq, prev)
		}
		prev = seq
	}
}
