package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ConfabulousDev/recall/pkg/types"
)

// Order is a sort direction for line queries.
type Order int

const (
	// Asc sorts ascending (default).
	Asc Order = iota
	// Desc sorts descending.
	Desc
)

func (o Order) String() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}

// GetLinesOptions filters a line query. Zero values mean "no filter";
// FromLine/ToLine are 1-based line numbers.
type GetLinesOptions struct {
	SessionID string
	Types     []string
	Limit     int64
	Offset    int64
	FromLine  int64
	ToLine    int64
	FromTime  string
	ToTime    string
	Search    string // LIKE substring fallback (use SearchLines for FTS)
	Order     Order
}

const lineColumns = `
	id, session_id, uuid, parent_uuid, line_number, type, subtype,
	timestamp, slug, role, model, cwd, content, raw, file_path,
	turn_id, turn_sequence, session_name, git_hash, git_branch, git_dirty`

// GetLines returns all lines matching the options, sorted by line_number.
func (d *ReadDB) GetLines(opts GetLinesOptions) ([]types.TranscriptLine, error) {
	var sb strings.Builder
	sb.WriteString("SELECT" + lineColumns + " FROM lines WHERE 1=1")
	var args []interface{}

	if opts.SessionID != "" {
		sb.WriteString(" AND session_id = ?")
		args = append(args, opts.SessionID)
	}
	if len(opts.Types) > 0 {
		sb.WriteString(" AND type IN (" + placeholders(len(opts.Types)) + ")")
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}
	if opts.FromLine > 0 {
		sb.WriteString(" AND line_number >= ?")
		args = append(args, opts.FromLine)
	}
	if opts.ToLine > 0 {
		sb.WriteString(" AND line_number <= ?")
		args = append(args, opts.ToLine)
	}
	if opts.FromTime != "" {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, opts.FromTime)
	}
	if opts.ToTime != "" {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, opts.ToTime)
	}
	if opts.Search != "" {
		sb.WriteString(" AND content LIKE ?")
		args = append(args, "%"+opts.Search+"%")
	}

	sb.WriteString(" ORDER BY line_number " + opts.Order.String())

	if opts.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, opts.Offset)
	}

	return d.queryLines(sb.String(), args...)
}

// GetLinesAfterID returns lines with id strictly greater than afterID in
// ascending id order. Used by tailing consumers.
func (d *ReadDB) GetLinesAfterID(afterID int64, sessionID string) ([]types.TranscriptLine, error) {
	query := "SELECT" + lineColumns + " FROM lines WHERE id > ?"
	args := []interface{}{afterID}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id ASC"
	return d.queryLines(query, args...)
}

// GetMaxLineID returns the maximum line id, optionally scoped to a session.
// Returns 0 for an empty table. Used to initialize tail cursors.
func (d *ReadDB) GetMaxLineID(sessionID string) (int64, error) {
	var id int64
	var err error
	if sessionID != "" {
		err = d.conn.QueryRow(
			"SELECT COALESCE(MAX(id), 0) FROM lines WHERE session_id = ?", sessionID,
		).Scan(&id)
	} else {
		err = d.conn.QueryRow("SELECT COALESCE(MAX(id), 0) FROM lines").Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("max line id: %w", err)
	}
	return id, nil
}

// GetLineCount returns the number of lines for a session.
func (d *ReadDB) GetLineCount(sessionID string) (int64, error) {
	var count int64
	err := d.conn.QueryRow(
		"SELECT COUNT(*) FROM lines WHERE session_id = ?", sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("line count: %w", err)
	}
	return count, nil
}

// SearchLines runs a ranked full-text search over line content. The query is
// tokenized on whitespace; each token is quoted and tokens are OR-ed, so any
// match ranks. Results are ordered by bm25 (lower is better). An empty token
// set yields no results, not an error.
func (d *ReadDB) SearchLines(query string, limit int64, sessionID string) ([]types.TranscriptLine, error) {
	ftsQuery := BuildFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}

	stmt := `
		SELECT` + prefixColumns("l", lineColumns) + `
		FROM lines_fts fts
		JOIN lines l ON fts.rowid = l.id
		WHERE lines_fts MATCH ?`
	args := []interface{}{ftsQuery}

	if sessionID != "" {
		stmt += " AND l.session_id = ?"
		args = append(args, sessionID)
	}

	stmt += " ORDER BY bm25(lines_fts) LIMIT ?"
	args = append(args, limit)

	return d.queryLines(stmt, args...)
}

// BuildFTSQuery sanitizes a user query for FTS5: whitespace tokens, embedded
// quotes stripped, each token double-quoted, joined with OR. Returns "" when
// nothing searchable remains.
func BuildFTSQuery(query string) string {
	var tokens []string
	for _, word := range strings.Fields(query) {
		word = strings.ReplaceAll(word, `"`, "")
		if word == "" {
			continue
		}
		tokens = append(tokens, `"`+word+`"`)
	}
	return strings.Join(tokens, " OR ")
}

func (d *ReadDB) queryLines(query string, args ...interface{}) ([]types.TranscriptLine, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lines: %w", err)
	}
	defer rows.Close()

	var lines []types.TranscriptLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanLine(rows *sql.Rows) (types.TranscriptLine, error) {
	var l types.TranscriptLine
	var parentUUID, subtype, slug, role, model, cwd, content sql.NullString
	var turnID, sessionName, gitHash, gitBranch sql.NullString
	var turnSequence, gitDirty sql.NullInt64

	err := rows.Scan(
		&l.ID, &l.SessionID, &l.UUID, &parentUUID, &l.LineNumber, &l.Type,
		&subtype, &l.Timestamp, &slug, &role, &model, &cwd, &content, &l.Raw,
		&l.FilePath, &turnID, &turnSequence, &sessionName, &gitHash,
		&gitBranch, &gitDirty,
	)
	if err != nil {
		return l, fmt.Errorf("scan line: %w", err)
	}

	l.ParentUUID = nullableString(parentUUID)
	l.Subtype = nullableString(subtype)
	l.Slug = nullableString(slug)
	l.Role = nullableString(role)
	l.Model = nullableString(model)
	l.CWD = nullableString(cwd)
	l.Content = nullableString(content)
	l.TurnID = nullableString(turnID)
	l.TurnSequence = nullableInt(turnSequence)
	l.SessionName = nullableString(sessionName)
	l.GitHash = nullableString(gitHash)
	l.GitBranch = nullableString(gitBranch)
	l.GitDirty = nullableBool(gitDirty)
	return l, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = " " + alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullableBool(v sql.NullInt64) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Int64 == 1
	return &b
}
