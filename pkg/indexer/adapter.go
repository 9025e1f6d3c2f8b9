package indexer

import (
	"database/sql"
	"fmt"
	"time"
)

// ProcessResult reports one file processed through an adapter.
type ProcessResult struct {
	Entries    int
	ByteOffset int64
}

// Adapter is a pluggable indexing driver. An adapter declares which files it
// owns, how to ingest them from a byte offset, and where its per-file cursors
// live. The transcript and hook streams are built-ins; third-party adapters
// persist cursors in the shared adapter_cursors table.
type Adapter interface {
	// Name is the unique adapter name.
	Name() string

	// Description is a human-readable summary.
	Description() string

	// FileExtensions lists the suffixes this adapter handles (e.g. ".jsonl").
	FileExtensions() []string

	// FindFiles returns all files this adapter can process, in
	// deterministic order.
	FindFiles() []string

	// InitSchema creates any adapter-specific tables. Must be idempotent.
	InitSchema(conn *sql.DB) error

	// ProcessFile ingests a file from fromOffset (full or delta).
	ProcessFile(conn *sql.DB, filePath string, fromOffset int64, startLine int64) (ProcessResult, error)

	// GetCursor returns the stored byte offset for a file (0 if untracked).
	GetCursor(conn *sql.DB, filePath string) (int64, error)

	// SaveCursor persists the cursor position for a file.
	SaveCursor(conn *sql.DB, filePath string, byteOffset int64, lineCount int64) error
}

// TranscriptAdapter is the built-in adapter for transcript JSONL files.
// Cursors live in the native sessions table.
type TranscriptAdapter struct {
	ProjectsDir string
}

func (a *TranscriptAdapter) Name() string { return "transcript-lines" }

func (a *TranscriptAdapter) Description() string {
	return "Indexes transcript JSONL files into lines and sessions tables"
}

func (a *TranscriptAdapter) FileExtensions() []string { return []string{".jsonl"} }

func (a *TranscriptAdapter) FindFiles() []string {
	return FindTranscriptFiles(a.ProjectsDir)
}

func (a *TranscriptAdapter) InitSchema(conn *sql.DB) error {
	// Schema is handled by store.InitSchema
	return nil
}

func (a *TranscriptAdapter) ProcessFile(conn *sql.DB, filePath string, fromOffset int64, startLine int64) (ProcessResult, error) {
	r, err := IndexTranscriptFile(conn, filePath, fromOffset, startLine)
	if err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Entries: r.LinesIndexed, ByteOffset: r.ByteOffset}, nil
}

func (a *TranscriptAdapter) GetCursor(conn *sql.DB, filePath string) (int64, error) {
	offset, _, _ := transcriptCursor(conn, filePath)
	return offset, nil
}

func (a *TranscriptAdapter) SaveCursor(conn *sql.DB, filePath string, byteOffset, lineCount int64) error {
	// Cursor is saved by IndexTranscriptFile directly
	return nil
}

// HookAdapter is the built-in adapter for hook event JSONL files.
// Cursors live in the native hook_files table.
type HookAdapter struct {
	HooksDir string
}

func (a *HookAdapter) Name() string { return "hook-events" }

func (a *HookAdapter) Description() string {
	return "Indexes hook event JSONL files into hook_events and hook_files tables"
}

func (a *HookAdapter) FileExtensions() []string { return []string{hookSuffix} }

func (a *HookAdapter) FindFiles() []string {
	return FindHookFiles(a.HooksDir)
}

func (a *HookAdapter) InitSchema(conn *sql.DB) error {
	// Schema is handled by store.InitSchema
	return nil
}

func (a *HookAdapter) ProcessFile(conn *sql.DB, filePath string, fromOffset int64, startLine int64) (ProcessResult, error) {
	r, err := IndexHookFile(conn, filePath, fromOffset, startLine)
	if err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Entries: r.EventsIndexed, ByteOffset: r.ByteOffset}, nil
}

func (a *HookAdapter) GetCursor(conn *sql.DB, filePath string) (int64, error) {
	offset, _, _ := hookCursor(conn, filePath)
	return offset, nil
}

func (a *HookAdapter) SaveCursor(conn *sql.DB, filePath string, byteOffset, lineCount int64) error {
	// Cursor is saved by IndexHookFile directly
	return nil
}

// BuiltinAdapters returns the adapters shipped with the indexer, in
// processing order.
func BuiltinAdapters(projectsDir, hooksDir string) []Adapter {
	return []Adapter{
		&TranscriptAdapter{ProjectsDir: projectsDir},
		&HookAdapter{HooksDir: hooksDir},
	}
}

// GetAdapterCursor reads the stored cursor for a third-party adapter from the
// adapter_cursors table. Returns (0, 0) for untracked files.
func GetAdapterCursor(conn *sql.DB, adapterName, filePath string) (byteOffset, lineCount int64, err error) {
	err = conn.QueryRow(
		"SELECT byte_offset, line_count FROM adapter_cursors WHERE file_path = ? AND adapter_name = ?",
		filePath, adapterName,
	).Scan(&byteOffset, &lineCount)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("adapter cursor: %w", err)
	}
	return byteOffset, lineCount, nil
}

// SaveAdapterCursor persists the cursor for a third-party adapter.
func SaveAdapterCursor(conn *sql.DB, adapterName, filePath string, byteOffset, lineCount int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := conn.Exec(`
		INSERT OR REPLACE INTO adapter_cursors
		 (file_path, adapter_name, byte_offset, line_count, last_processed)
		 VALUES (?, ?, ?, ?, ?)`,
		filePath, adapterName, byteOffset, lineCount, now,
	)
	if err != nil {
		return fmt.Errorf("save adapter cursor: %w", err)
	}
	return nil
}
