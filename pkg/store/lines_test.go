package store

import (
	"fmt"
	"testing"
)

// seedLines inserts a small session with known content for query tests.
func seedLines(t *testing.T, db *DB) {
	t.Helper()
	rows := []struct {
		session string
		uuid    string
		num     int
		typ     string
		ts      string
		content string
	}{
		{"s1", "u1", 1, "user", "2024-01-01T00:00:01Z", "find the needle"},
		{"s1", "u2", 2, "assistant", "2024-01-01T00:00:02Z", "needle haystack together"},
		{"s1", "u3", 3, "system", "2024-01-01T00:00:03Z", "unrelated words"},
		{"s2", "u1", 1, "user", "2024-01-02T00:00:01Z", "other session"},
	}
	for _, r := range rows {
		mustExec(t, db, `INSERT INTO lines (session_id, uuid, line_number, type, timestamp, raw, file_path, content)
			VALUES (?, ?, ?, ?, ?, '{}', '/test', ?)`,
			r.session, r.uuid, r.num, r.typ, r.ts, r.content)
	}
}

func openReadFrom(t *testing.T, db *DB) *ReadDB {
	t.Helper()
	rdb, err := OpenRead(db.Path())
	if err != nil {
		t.Fatalf("OpenRead failed: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestGetLinesFilters(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	lines, err := rdb.GetLines(GetLinesOptions{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("session filter: got %d lines", len(lines))
	}

	lines, _ = rdb.GetLines(GetLinesOptions{SessionID: "s1", Types: []string{"user", "assistant"}})
	if len(lines) != 2 {
		t.Errorf("type filter: got %d lines", len(lines))
	}

	lines, _ = rdb.GetLines(GetLinesOptions{SessionID: "s1", FromLine: 2, ToLine: 3})
	if len(lines) != 2 || lines[0].LineNumber != 2 {
		t.Errorf("line range filter: got %d lines", len(lines))
	}

	lines, _ = rdb.GetLines(GetLinesOptions{SessionID: "s1", FromTime: "2024-01-01T00:00:02Z"})
	if len(lines) != 2 {
		t.Errorf("time filter: got %d lines", len(lines))
	}

	lines, _ = rdb.GetLines(GetLinesOptions{Search: "needle"})
	if len(lines) != 2 {
		t.Errorf("LIKE search: got %d lines", len(lines))
	}

	lines, _ = rdb.GetLines(GetLinesOptions{SessionID: "s1", Limit: 1, Offset: 1})
	if len(lines) != 1 || lines[0].LineNumber != 2 {
		t.Errorf("limit/offset: got %v", lines)
	}

	lines, _ = rdb.GetLines(GetLinesOptions{SessionID: "s1", Order: Desc})
	if len(lines) != 3 || lines[0].LineNumber != 3 {
		t.Errorf("desc order: first line number = %d", lines[0].LineNumber)
	}
}

func TestGetLinesAfterID(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	maxID, err := rdb.GetMaxLineID("")
	if err != nil {
		t.Fatal(err)
	}
	if maxID != 4 {
		t.Fatalf("max id = %d", maxID)
	}

	lines, err := rdb.GetLinesAfterID(2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("after id 2: got %d lines", len(lines))
	}
	for i := 1; i < len(lines); i++ {
		if lines[i].ID <= lines[i-1].ID {
			t.Error("results not ascending by id")
		}
	}
	if lines[0].ID <= 2 {
		t.Error("after-id must be strictly greater")
	}

	// Scoped to a session
	lines, _ = rdb.GetLinesAfterID(0, "s2")
	if len(lines) != 1 || lines[0].SessionID != "s2" {
		t.Errorf("session scoped tail: %v", lines)
	}
}

func TestGetMaxLineIDPerSession(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	id, err := rdb.GetMaxLineID("s1")
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Errorf("s1 max id = %d", id)
	}

	id, _ = rdb.GetMaxLineID("nope")
	if id != 0 {
		t.Errorf("missing session max id = %d, want 0", id)
	}
}

func TestSearchLinesFTS(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	// OR-tokenized query matches both needle rows; the one containing both
	// words ranks first (lower bm25)
	lines, err := rdb.SearchLines("needle haystack", 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d results", len(lines))
	}
	if lines[0].Content == nil || *lines[0].Content != "needle haystack together" {
		t.Errorf("ranking: first result = %v", lines[0].Content)
	}

	// Session pre-filter
	lines, _ = rdb.SearchLines("needle", 10, "s2")
	if len(lines) != 0 {
		t.Errorf("session filter leaked: %d results", len(lines))
	}

	// Exact word in content is findable (FTS coherence)
	lines, _ = rdb.SearchLines("unrelated", 10, "")
	if len(lines) != 1 {
		t.Errorf("exact word search: got %d", len(lines))
	}
}

func TestSearchLinesEmptyQuery(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	lines, err := rdb.SearchLines(`  ""  `, 10, "")
	if err != nil {
		t.Fatalf("empty token set must not error: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("expected no results, got %d", len(lines))
	}
}

func TestBuildFTSQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello", `"hello"`},
		{"hello world", `"hello" OR "world"`},
		{`say "hi" there`, `"say" OR "hi" OR "there"`},
		{"   ", ""},
		{`""`, ""},
	}
	for _, c := range cases {
		if got := BuildFTSQuery(c.in); got != c.want {
			t.Errorf("BuildFTSQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFTSCoherenceWithTriggers(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)

	assertCoherent := func(stage string) {
		var lineCount, ftsCount int64
		db.Conn().QueryRow("SELECT COUNT(*) FROM lines").Scan(&lineCount)
		db.Conn().QueryRow("SELECT COUNT(*) FROM lines_fts").Scan(&ftsCount)
		if lineCount != ftsCount {
			t.Errorf("%s: lines=%d fts=%d", stage, lineCount, ftsCount)
		}
	}

	assertCoherent("after insert")

	mustExec(t, db, "UPDATE lines SET content = 'replaced text' WHERE uuid = 'u1' AND session_id = 's1'")
	assertCoherent("after update")

	mustExec(t, db, "DELETE FROM lines WHERE uuid = 'u3' AND session_id = 's1'")
	assertCoherent("after delete")

	// Updated content is searchable, old content is gone
	rdb := openReadFrom(t, db)
	if lines, _ := rdb.SearchLines("replaced", 10, ""); len(lines) != 1 {
		t.Error("updated content not searchable")
	}
	if lines, _ := rdb.SearchLines("unrelated", 10, ""); len(lines) != 0 {
		t.Error("deleted row still searchable")
	}
}

func TestFTSRowidMatchesLineID(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)

	rows, err := db.Conn().Query(`
		SELECT l.id, fts.rowid FROM lines l
		JOIN lines_fts fts ON fts.rowid = l.id`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	matched := 0
	for rows.Next() {
		var id, rowid int64
		if err := rows.Scan(&id, &rowid); err != nil {
			t.Fatal(err)
		}
		if id != rowid {
			t.Errorf("fts rowid %d != line id %d", rowid, id)
		}
		matched++
	}
	if matched != 4 {
		t.Errorf("expected 4 joined rows, got %d", matched)
	}
}

func TestGetLineCount(t *testing.T) {
	db := openTestDB(t)
	seedLines(t, db)
	rdb := openReadFrom(t, db)

	count, err := rdb.GetLineCount("s1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d", count)
	}
}

func TestGetLinesManySessionsPaging(t *testing.T) {
	db := openTestDB(t)
	for i := 1; i <= 50; i++ {
		mustExec(t, db, `INSERT INTO lines (session_id, uuid, line_number, type, timestamp, raw, file_path, content)
			VALUES ('big', ?, ?, 'user', '2024-01-01T00:00:00Z', '{}', '/test', 'row')`,
			fmt.Sprintf("u%d", i), i)
	}
	rdb := openReadFrom(t, db)

	var cursor int64
	var seen int
	for {
		lines, err := rdb.GetLinesAfterID(cursor, "big")
		if err != nil {
			t.Fatal(err)
		}
		if len(lines) == 0 {
			break
		}
		seen += len(lines)
		cursor = lines[len(lines)-1].ID
	}
	if seen != 50 {
		t.Errorf("paged through %d rows, want 50", seen)
	}
}
