// Package indexer ingests transcript and hook event JSONL files into the
// store at byte-offset granularity. Each file has a persistent cursor; delta
// runs resume from it and only ever move it forward.
package indexer

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ConfabulousDev/recall/pkg/extract"
	"github.com/ConfabulousDev/recall/pkg/logger"
	"github.com/ConfabulousDev/recall/pkg/trim"
	"github.com/ConfabulousDev/recall/pkg/types"
)

// IndexResult reports one transcript file ingest.
type IndexResult struct {
	LinesIndexed int
	ByteOffset   int64
	SessionID    string
}

// IndexAllResult reports a full transcript indexing run.
type IndexAllResult struct {
	FilesIndexed int
	LinesIndexed int
}

// UpdateResult reports a delta update run.
type UpdateResult struct {
	FilesChecked int
	FilesUpdated int
	NewLines     int
}

// ProgressFunc is called once per file during full indexing.
type ProgressFunc func(path string, current, total, entries int)

// DeltaProgressFunc is called once per file during delta updates; skipped is
// true when the file had not grown past its cursor.
type DeltaProgressFunc func(path string, current, total, entries int, skipped bool)

// IndexTranscriptFile ingests a single transcript JSONL file from
// fromOffset, numbering lines from startLine. All inserts run inside one
// savepoint; the per-file cursor in the sessions table is advanced to the
// file size observed at open. Malformed lines are skipped (the line counter
// still advances). Returns immediately when the file has not grown past
// fromOffset.
func IndexTranscriptFile(conn *sql.DB, filePath string, fromOffset int64, startLine int64) (IndexResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return IndexResult{}, fmt.Errorf("stat %s: %w", filePath, err)
	}
	fileSize := info.Size()

	// Nothing new to index
	if fromOffset >= fileSize {
		return IndexResult{ByteOffset: fromOffset}, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return IndexResult{}, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	if fromOffset > 0 {
		if _, err := f.Seek(fromOffset, io.SeekStart); err != nil {
			return IndexResult{}, fmt.Errorf("seek %s: %w", filePath, err)
		}
	}

	stmt, err := conn.Prepare(`
		INSERT OR REPLACE INTO lines
		 (session_id, uuid, parent_uuid, line_number, type, subtype, timestamp,
		  slug, role, model, cwd, content, raw, file_path,
		  turn_id, turn_sequence, session_name)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL)`)
	if err != nil {
		return IndexResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	if _, err := conn.Exec("SAVEPOINT index_transcript"); err != nil {
		return IndexResult{}, fmt.Errorf("savepoint: %w", err)
	}

	var (
		indexed        int
		sessionID      string
		slug           string
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

		trimmed := strings.TrimSpace(rawLine)
		if trimmed == "" {
			continue
		}

		rec, err := types.ParseTranscriptLine(trimmed)
		if err != nil {
			logger.Debug("Skipping malformed line %d in %s: %v", lineNumber, filePath, err)
			lineNumber++
			continue
		}

		if rec.SessionID != "" {
			sessionID = rec.SessionID
		}
		if rec.Slug != "" {
			slug = rec.Slug
		}
		if rec.Timestamp != "" {
			if firstTimestamp == "" {
				firstTimestamp = rec.Timestamp
			}
			lastTimestamp = rec.Timestamp
		}

		// Skip non-searchable types (no content, only raw blob)
		if types.SkipLineTypes[rec.Type] {
			lineNumber++
			continue
		}

		content := extract.SearchableText(rec.Parsed)
		uuid := rec.UUID
		if uuid == "" {
			uuid = fmt.Sprintf("line-%d", lineNumber)
		}

		_, err = stmt.Exec(
			sessionID,
			uuid,
			nullable(rec.ParentUUID),
			lineNumber,
			rec.Type,
			nullable(rec.Subtype),
			rec.Timestamp,
			nullable(slug),
			nullable(rec.Role),
			nullable(rec.Model),
			nullable(rec.CWD),
			content,
			trim.RawTranscriptLine(rec.Parsed),
			filePath,
		)
		if err != nil {
			conn.Exec("ROLLBACK TO index_transcript")
			conn.Exec("RELEASE index_transcript")
			return IndexResult{}, fmt.Errorf("insert line %d of %s: %w", lineNumber, filePath, err)
		}

		indexed++
		lineNumber++
	}

	if err := scanner.Err(); err != nil {
		// Read failure mid-file: abandon the batch, leave the cursor alone
		conn.Exec("ROLLBACK TO index_transcript")
		conn.Exec("RELEASE index_transcript")
		return IndexResult{}, fmt.Errorf("read %s: %w", filePath, err)
	}

	if _, err := conn.Exec("RELEASE index_transcript"); err != nil {
		return IndexResult{}, fmt.Errorf("release savepoint: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	storedSession := sessionID
	if storedSession == "" {
		storedSession = "unknown"
	}

	if fromOffset == 0 {
		_, err = conn.Exec(`
			INSERT OR REPLACE INTO sessions
			 (file_path, session_id, slug, line_count, byte_offset, first_timestamp, last_timestamp, indexed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			filePath, storedSession, nullable(slug), lineNumber-1, fileSize,
			nullable(firstTimestamp), nullable(lastTimestamp), now,
		)
	} else {
		_, err = conn.Exec(`
			UPDATE sessions SET line_count = ?, byte_offset = ?, last_timestamp = COALESCE(?, last_timestamp), indexed_at = ?
			 WHERE file_path = ?`,
			lineNumber-1, fileSize, nullable(lastTimestamp), now, filePath,
		)
	}
	if err != nil {
		return IndexResult{}, fmt.Errorf("update session cursor for %s: %w", filePath, err)
	}

	return IndexResult{
		LinesIndexed: indexed,
		ByteOffset:   fileSize,
		SessionID:    sessionID,
	}, nil
}

// IndexAllTranscripts fully indexes every transcript file under projectsDir.
// Per-file errors are logged and skipped so one bad file cannot block the run.
func IndexAllTranscripts(conn *sql.DB, projectsDir string, onProgress ProgressFunc) (IndexAllResult, error) {
	files := FindTranscriptFiles(projectsDir)
	total := len(files)
	var result IndexAllResult

	for i, file := range files {
		r, err := IndexTranscriptFile(conn, file, 0, 1)
		if err != nil {
			logger.Error("Error indexing %s: %v", file, err)
			continue
		}
		result.FilesIndexed++
		result.LinesIndexed += r.LinesIndexed
		if onProgress != nil {
			onProgress(file, i+1, total, r.LinesIndexed)
		}
	}

	if err := touchLastIndexed(conn); err != nil {
		return result, err
	}
	return result, nil
}

// UpdateTranscripts applies delta indexing to every transcript file under
// projectsDir, resuming each file from its stored cursor and skipping files
// that have not grown.
func UpdateTranscripts(conn *sql.DB, projectsDir string, onProgress DeltaProgressFunc) (UpdateResult, error) {
	files := FindTranscriptFiles(projectsDir)
	total := len(files)
	var result UpdateResult

	for i, file := range files {
		result.FilesChecked++

		offset, lineCount, tracked := transcriptCursor(conn, file)

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
			startLine = lineCount + 1
		}

		r, err := IndexTranscriptFile(conn, file, offset, startLine)
		if err != nil {
			logger.Error("Error updating %s: %v", file, err)
			continue
		}
		if r.LinesIndexed > 0 {
			result.FilesUpdated++
			result.NewLines += r.LinesIndexed
		}
		if onProgress != nil {
			onProgress(file, i+1, total, r.LinesIndexed, false)
		}
	}

	if err := touchLastIndexed(conn); err != nil {
		return result, err
	}
	return result, nil
}

// transcriptCursor reads the stored (byte_offset, line_count) for a file.
// tracked is false when the file has never been indexed.
func transcriptCursor(conn *sql.DB, filePath string) (offset, lineCount int64, tracked bool) {
	err := conn.QueryRow(
		"SELECT byte_offset, line_count FROM sessions WHERE file_path = ?", filePath,
	).Scan(&offset, &lineCount)
	return offset, lineCount, err == nil
}

func touchLastIndexed(conn *sql.DB) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := conn.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES ('last_indexed', ?)", now,
	); err != nil {
		return fmt.Errorf("update last_indexed: %w", err)
	}
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
