package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinAdapters(t *testing.T) {
	adapters := BuiltinAdapters("/projects", "/hooks")
	if len(adapters) != 2 {
		t.Fatalf("got %d adapters", len(adapters))
	}
	if adapters[0].Name() != "transcript-lines" {
		t.Errorf("first adapter: %s", adapters[0].Name())
	}
	if adapters[1].Name() != "hook-events" {
		t.Errorf("second adapter: %s", adapters[1].Name())
	}
}

func TestAdapterFileExtensions(t *testing.T) {
	transcript := &TranscriptAdapter{}
	if exts := transcript.FileExtensions(); len(exts) != 1 || exts[0] != ".jsonl" {
		t.Errorf("transcript extensions: %v", exts)
	}

	hooks := &HookAdapter{}
	if exts := hooks.FileExtensions(); len(exts) != 1 || exts[0] != ".hooks.jsonl" {
		t.Errorf("hook extensions: %v", exts)
	}
}

func TestAdapterProcessAndCursor(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	writeFile(t, path,
		`{"sessionId":"s1","uuid":"u1","type":"user","timestamp":"2024-01-01T00:00:00Z","message":{"content":"hi"}}`,
	)

	adapter := &TranscriptAdapter{ProjectsDir: dir}

	files := adapter.FindFiles()
	if len(files) != 1 {
		t.Fatalf("found %d files", len(files))
	}

	// Untracked file starts at 0
	offset, err := adapter.GetCursor(db.Conn(), path)
	if err != nil || offset != 0 {
		t.Errorf("initial cursor: %d err=%v", offset, err)
	}

	result, err := adapter.ProcessFile(db.Conn(), path, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Entries != 1 {
		t.Errorf("entries = %d", result.Entries)
	}

	info, _ := os.Stat(path)
	offset, _ = adapter.GetCursor(db.Conn(), path)
	if offset != info.Size() {
		t.Errorf("cursor after process: %d != %d", offset, info.Size())
	}
}

func TestHookAdapterCursor(t *testing.T) {
	db := setupDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.hooks.jsonl")
	writeFile(t, path,
		`{"sessionId":"s1","timestamp":"2024-01-01T00:00:00Z","eventType":"Stop"}`,
	)

	adapter := &HookAdapter{HooksDir: dir}
	result, err := adapter.ProcessFile(db.Conn(), path, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Entries != 1 {
		t.Errorf("entries = %d", result.Entries)
	}

	offset, _ := adapter.GetCursor(db.Conn(), path)
	if offset != result.ByteOffset {
		t.Errorf("cursor %d != processed offset %d", offset, result.ByteOffset)
	}
}

func TestAdapterCursorsTable(t *testing.T) {
	db := setupDB(t)

	// Untracked returns zeros, no error
	offset, count, err := GetAdapterCursor(db.Conn(), "custom", "/some/file.log")
	if err != nil || offset != 0 || count != 0 {
		t.Errorf("untracked: %d/%d err=%v", offset, count, err)
	}

	if err := SaveAdapterCursor(db.Conn(), "custom", "/some/file.log", 4096, 17); err != nil {
		t.Fatal(err)
	}

	offset, count, err = GetAdapterCursor(db.Conn(), "custom", "/some/file.log")
	if err != nil || offset != 4096 || count != 17 {
		t.Errorf("tracked: %d/%d err=%v", offset, count, err)
	}

	// Overwrite advances
	if err := SaveAdapterCursor(db.Conn(), "custom", "/some/file.log", 8192, 40); err != nil {
		t.Fatal(err)
	}
	offset, count, _ = GetAdapterCursor(db.Conn(), "custom", "/some/file.log")
	if offset != 8192 || count != 40 {
		t.Errorf("after overwrite: %d/%d", offset, count)
	}

	// Cursors are scoped per adapter name
	offset, _, _ = GetAdapterCursor(db.Conn(), "other-adapter", "/some/file.log")
	if offset != 0 {
		t.Errorf("adapter scoping leaked: %d", offset)
	}
}
