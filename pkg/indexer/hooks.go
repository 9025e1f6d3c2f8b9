package indexer

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ConfabulousDev/recall/pkg/logger"
	"github.com/ConfabulousDev/recall/pkg/trim"
	"github.com/ConfabulousDev/recall/pkg/types"
)

// HookIndexResult reports one hook file ingest.
type HookIndexResult struct {
	EventsIndexed int
	ByteOffset    int64
	SessionID     string
}

// HookIndexAllResult reports a full hook indexing run.
type HookIndexAllResult struct {
	FilesIndexed  int
	EventsIndexed int
}

// HookUpdateResult reports a delta update run over hook files.
type HookUpdateResult struct {
	FilesChecked int
	FilesUpdated int
	NewEvents    int
}

// IndexHookFile ingests a single *.hooks.jsonl file from fromOffset,
// numbering lines from startLine. Events are plain INSERTs (the producer
// appends each event exactly once); oversized payloads are trimmed before
// storage. The per-file cursor lives in the hook_files table.
func IndexHookFile(conn *sql.DB, filePath string, fromOffset int64, startLine int64) (HookIndexResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return HookIndexResult{}, fmt.Errorf("stat %s: %w", filePath, err)
	}
	fileSize := info.Size()

	if fromOffset >= fileSize {
		return HookIndexResult{ByteOffset: fromOffset}, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return HookIndexResult{}, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	if fromOffset > 0 {
		if _, err := f.Seek(fromOffset, io.SeekStart); err != nil {
			return HookIndexResult{}, fmt.Errorf("seek %s: %w", filePath, err)
		}
	}

	stmt, err := conn.Prepare(`
		INSERT INTO hook_events
		 (session_id, timestamp, event_type, tool_use_id, tool_name, decision,
		  handler_results, input_json, context_json, file_path, line_number,
		  turn_id, turn_sequence, session_name, git_hash, git_branch, git_dirty)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return HookIndexResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	if _, err := conn.Exec("SAVEPOINT index_hooks"); err != nil {
		return HookIndexResult{}, fmt.Errorf("savepoint: %w", err)
	}

	var (
		indexed        int
		sessionID      string
		firstTimestamp string
		lastTimestamp  string
		lineNumber     = startLine
		firstLine      = fromOffset > 0
	)

	scanner := types.NewJSONLScanner(f)
	for scanner.Scan() {
		rawLine := scanner.Text()

		// Skip partial first line when resuming mid-record
		if firstLine {
			firstLine = false
			if !strings.HasPrefix(rawLine, "{") {
				lineNumber++
				continue
			}
		}

		trimmedLine := strings.TrimSpace(rawLine)
		if trimmedLine == "" {
			continue
		}

		rec, err := types.ParseHookLine(trimmedLine)
		if err != nil {
			logger.Debug("Skipping malformed hook line %d in %s: %v", lineNumber, filePath, err)
			lineNumber++
			continue
		}

		if rec.SessionID != "" {
			sessionID = rec.SessionID
		}
		if rec.Timestamp != "" {
			if firstTimestamp == "" {
				firstTimestamp = rec.Timestamp
			}
			lastTimestamp = rec.Timestamp
		}

		var handlerResults, inputJSON, contextJSON interface{}
		if rec.HandlerResults != nil {
			handlerResults = trim.HandlerResults(rec.HandlerResults)
		}
		if rec.Input != nil {
			inputJSON = trim.InputJSON(rec.Input, rec.ToolName)
		}
		if rec.Context != nil {
			contextJSON = trim.ContextJSON(rec.Context)
		}

		var gitDirty interface{}
		if rec.GitDirty != nil {
			if *rec.GitDirty {
				gitDirty = int64(1)
			} else {
				gitDirty = int64(0)
			}
		}
		var turnSequence interface{}
		if rec.TurnSequence != nil {
			turnSequence = *rec.TurnSequence
		}

		_, err = stmt.Exec(
			rec.SessionID,
			rec.Timestamp,
			rec.EventType,
			nullable(rec.ToolUseID),
			nullable(rec.ToolName),
			nullable(rec.Decision),
			handlerResults,
			inputJSON,
			contextJSON,
			filePath,
			lineNumber,
			nullable(rec.TurnID),
			turnSequence,
			nullable(rec.SessionName),
			nullable(rec.GitHash),
			nullable(rec.GitBranch),
			gitDirty,
		)
		if err != nil {
			conn.Exec("ROLLBACK TO index_hooks")
			conn.Exec("RELEASE index_hooks")
			return HookIndexResult{}, fmt.Errorf("insert event %d of %s: %w", lineNumber, filePath, err)
		}

		indexed++
		lineNumber++
	}

	if err := scanner.Err(); err != nil {
		conn.Exec("ROLLBACK TO index_hooks")
		conn.Exec("RELEASE index_hooks")
		return HookIndexResult{}, fmt.Errorf("read %s: %w", filePath, err)
	}

	if _, err := conn.Exec("RELEASE index_hooks"); err != nil {
		return HookIndexResult{}, fmt.Errorf("release savepoint: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	switch {
	case sessionID == "" && indexed == 0:
		// Nothing to track
	case fromOffset == 0:
		storedSession := sessionID
		if storedSession == "" {
			storedSession = "unknown"
		}
		_, err = conn.Exec(`
			INSERT OR REPLACE INTO hook_files
			 (file_path, session_id, event_count, byte_offset, first_timestamp, last_timestamp, indexed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			filePath, storedSession, lineNumber-1, fileSize,
			nullable(firstTimestamp), nullable(lastTimestamp), now,
		)
	default:
		_, err = conn.Exec(`
			UPDATE hook_files SET event_count = ?, byte_offset = ?, last_timestamp = COALESCE(?, last_timestamp), indexed_at = ?
			 WHERE file_path = ?`,
			lineNumber-1, fileSize, nullable(lastTimestamp), now, filePath,
		)
	}
	if err != nil {
		return HookIndexResult{}, fmt.Errorf("update hook cursor for %s: %w", filePath, err)
	}

	return HookIndexResult{
		EventsIndexed: indexed,
		ByteOffset:    fileSize,
		SessionID:     sessionID,
	}, nil
}

// IndexAllHookFiles fully indexes every hook file under hooksDir.
func IndexAllHookFiles(conn *sql.DB, hooksDir string, onProgress ProgressFunc) (HookIndexAllResult, error) {
	files := FindHookFiles(hooksDir)
	total := len(files)
	var result HookIndexAllResult

	for i, file := range files {
		r, err := IndexHookFile(conn, file, 0, 1)
		if err != nil {
			logger.Error("Error indexing hook file %s: %v", file, err)
			continue
		}
		result.FilesIndexed++
		result.EventsIndexed += r.EventsIndexed
		if onProgress != nil {
			onProgress(file, i+1, total, r.EventsIndexed)
		}
	}

	return result, nil
}

// UpdateHookIndex applies delta indexing to every hook file under hooksDir.
func UpdateHookIndex(conn *sql.DB, hooksDir string, onProgress DeltaProgressFunc) (HookUpdateResult, error) {
	files := FindHookFiles(hooksDir)
	total := len(files)
	var result HookUpdateResult

	for i, file := range files {
		result.FilesChecked++

		offset, eventCount, tracked := hookCursor(conn, file)

		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		if tracked && offset >= info.Size() {
			if onProgress != nil {
				onProgress(file, i+1, total, 0, true)
			}
			continue
		}

		startLine := int64(1)
		if tracked {
			startLine = eventCount + 1
		}

		r, err := IndexHookFile(conn, file, offset, startLine)
		if err != nil {
			logger.Error("Error updating hook file %s: %v", file, err)
			continue
		}
		if r.EventsIndexed > 0 {
			result.FilesUpdated++
			result.NewEvents += r.EventsIndexed
		}
		if onProgress != nil {
			onProgress(file, i+1, total, r.EventsIndexed, false)
		}
	}

	return result, nil
}

// hookCursor reads the stored (byte_offset, event_count) for a hook file.
func hookCursor(conn *sql.DB, filePath string) (offset, eventCount int64, tracked bool) {
	err := conn.QueryRow(
		"SELECT byte_offset, event_count FROM hook_files WHERE file_path = ?", filePath,
	).Scan(&offset, &eventCount)
	return offset, eventCount, err == nil
}
