// Package types defines the typed representations of the two JSONL streams
// the indexer ingests: transcript lines and hook events. Parsing is total -
// malformed lines are reported as errors and dropped by callers, never
// aborting a file.
package types

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// MaxJSONLLineSize is the maximum size for a single JSONL line.
// Default bufio.Scanner buffer is 64KB, but transcript lines with
// thinking blocks and tool results can exceed 1MB.
const MaxJSONLLineSize = 10 * 1024 * 1024 // 10MB

// NewJSONLScanner creates a bufio.Scanner configured for large JSONL files
// with a 10MB buffer to handle long transcript lines
func NewJSONLScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxJSONLLineSize)
	scanner.Buffer(buf, MaxJSONLLineSize)
	return scanner
}

// SkipLineTypes are transcript record types with zero searchable content that
// only consume raw storage. They are dropped at ingest (~44% of database size).
//   - progress: streaming tool execution updates (partial stdout, elapsed time)
//   - file-history-snapshot: git file snapshots
//   - queue-operation: internal queue operations
var SkipLineTypes = map[string]bool{
	"progress":              true,
	"file-history-snapshot": true,
	"queue-operation":       true,
}

// TranscriptLine is one indexed transcript record as stored in the lines table.
type TranscriptLine struct {
	ID           int64
	SessionID    string
	UUID         string
	ParentUUID   *string
	LineNumber   int64
	Type         string
	Subtype      *string
	Timestamp    string
	Slug         *string
	Role         *string
	Model        *string
	CWD          *string
	Content      *string
	Raw          string
	FilePath     string
	TurnID       *string
	TurnSequence *int64
	SessionName  *string
	GitHash      *string
	GitBranch    *string
	GitDirty     *bool
}

// HookEvent is one indexed hook record as stored in the hook_events table.
type HookEvent struct {
	ID             int64
	SessionID      string
	Timestamp      string
	EventType      string
	ToolUseID      *string
	ToolName       *string
	Decision       *string
	HandlerResults *string
	InputJSON      *string
	ContextJSON    *string
	FilePath       string
	LineNumber     int64
	TurnID         *string
	TurnSequence   *int64
	SessionName    *string
	GitHash        *string
	GitBranch      *string
	GitDirty       *bool
}

// SessionInfo is one row of the sessions delta-cursor table.
type SessionInfo struct {
	SessionID      string
	Slug           *string
	FilePath       string
	LineCount      int64
	ByteOffset     int64
	FirstTimestamp *string
	LastTimestamp  *string
	IndexedAt      string
}

// HookSession is one row of the hook_files delta-cursor table, optionally
// joined with the latest known session name.
type HookSession struct {
	SessionID      string
	FilePath       string
	EventCount     int64
	FirstTimestamp *string
	LastTimestamp  *string
	IndexedAt      string
	SessionName    *string
}

// LineRecord is a parsed transcript JSONL line with the typed columns
// extracted and the full parsed tree retained for trimming and text
// extraction.
type LineRecord struct {
	SessionID  string
	UUID       string
	ParentUUID string
	Type       string
	Subtype    string
	Timestamp  string
	Slug       string
	Role       string
	Model      string
	CWD        string
	Parsed     map[string]interface{}
}

// ParseTranscriptLine parses a single transcript JSONL line. The line must be
// a JSON object; any missing field is left zero. Type defaults to "unknown".
func ParseTranscriptLine(line string) (*LineRecord, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return nil, err
	}

	rec := &LineRecord{
		SessionID:  getString(parsed, "sessionId"),
		UUID:       getString(parsed, "uuid"),
		ParentUUID: getString(parsed, "parentUuid"),
		Type:       getString(parsed, "type"),
		Subtype:    getString(parsed, "subtype"),
		Timestamp:  getString(parsed, "timestamp"),
		Slug:       getString(parsed, "slug"),
		CWD:        getString(parsed, "cwd"),
		Parsed:     parsed,
	}
	if rec.Type == "" {
		rec.Type = "unknown"
	}

	if message, ok := parsed["message"].(map[string]interface{}); ok {
		rec.Role = getString(message, "role")
		rec.Model = getString(message, "model")
	}

	return rec, nil
}

// HookRecord is a parsed hook event JSONL line with correlation and git
// attribution already extracted from handler results.
type HookRecord struct {
	SessionID    string
	Timestamp    string
	EventType    string
	ToolUseID    string
	ToolName     string
	Decision     string
	TurnID       string
	TurnSequence *int64
	SessionName  string
	GitHash      string
	GitBranch    string
	GitDirty     *bool

	// HandlerResults, Input, and Context are the raw parsed subtrees,
	// nil when absent. Trimming happens at insert time.
	HandlerResults interface{}
	Input          interface{}
	Context        interface{}
}

// ParseHookLine parses a single hook event JSONL line and extracts turn,
// session-naming, and git state from handler results. Handler families are
// discriminated by key prefix (turn-tracker*, session-naming*, git-tracker*),
// with top-level turnId/turnSequence/sessionName accepted as fallbacks.
func ParseHookLine(line string) (*HookRecord, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return nil, err
	}

	rec := &HookRecord{
		SessionID: getString(parsed, "sessionId"),
		Timestamp: getString(parsed, "timestamp"),
		EventType: getString(parsed, "eventType"),
		ToolUseID: getString(parsed, "toolUseId"),
		ToolName:  getString(parsed, "toolName"),
		Decision:  getString(parsed, "decision"),
	}

	rec.HandlerResults = parsed["handlerResults"]
	rec.Input = parsed["input"]
	rec.Context = parsed["context"]

	if results, ok := rec.HandlerResults.(map[string]interface{}); ok {
		for key, value := range results {
			handler, ok := value.(map[string]interface{})
			if !ok {
				continue
			}
			data, ok := handler["data"].(map[string]interface{})
			if !ok {
				continue
			}

			switch {
			case strings.HasPrefix(key, "turn-tracker"):
				if tid := getString(data, "turnId"); tid != "" {
					rec.TurnID = tid
				}
				if seq, ok := getInt64(data, "sequence"); ok {
					rec.TurnSequence = &seq
				} else if seq, ok := getInt64(data, "turnSequence"); ok {
					rec.TurnSequence = &seq
				}
			case strings.HasPrefix(key, "session-naming"):
				if name := getString(data, "sessionName"); name != "" {
					rec.SessionName = name
				}
			case strings.HasPrefix(key, "git-tracker"):
				if gitState, ok := data["gitState"].(map[string]interface{}); ok {
					rec.GitHash = getString(gitState, "hash")
					rec.GitBranch = getString(gitState, "branch")
					if dirty, ok := gitState["isDirty"].(bool); ok {
						d := dirty
						rec.GitDirty = &d
					}
				}
			}
		}
	}

	// Top-level fallbacks
	if rec.TurnID == "" {
		rec.TurnID = getString(parsed, "turnId")
	}
	if rec.TurnSequence == nil {
		if seq, ok := getInt64(parsed, "turnSequence"); ok {
			rec.TurnSequence = &seq
		}
	}
	if rec.SessionName == "" {
		rec.SessionName = getString(parsed, "sessionName")
	}

	return rec, nil
}

func getString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func getInt64(m map[string]interface{}, key string) (int64, bool) {
	// encoding/json decodes all numbers as float64
	f, ok := m[key].(float64)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
