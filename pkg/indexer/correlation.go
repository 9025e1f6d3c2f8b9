package indexer

import (
	"database/sql"
	"fmt"
)

// CorrelationResult reports a correlation pass.
type CorrelationResult struct {
	Updated  int64
	Sessions int
}

// stopEvent is one Stop hook event acting as a turn boundary.
type stopEvent struct {
	timestamp    string
	turnID       string
	turnSequence int64
}

// toolTurn is a (turn_id, turn_sequence) group of tool events with its
// observed time span, used when a session has no Stop events.
type toolTurn struct {
	turnID       string
	turnSequence int64
	startTime    string
	endTime      string
}

// CorrelateLinesToTurns enriches transcript lines with turn_id,
// turn_sequence, and session_name from hook events. Stop events mark turn
// boundaries: a line belongs to the turn whose Stop event is the first at or
// after the line's timestamp. Sessions without Stop events fall back to
// PreToolUse/PostToolUse time spans. The `turn_id IS NULL` guard makes the
// whole pass idempotent; crashes mid-sequence are safely re-runnable.
//
// Should be called after both transcripts and hook events have been indexed.
func CorrelateLinesToTurns(conn *sql.DB) (CorrelationResult, error) {
	rows, err := conn.Query(
		"SELECT DISTINCT session_id FROM lines WHERE turn_id IS NULL AND session_id != ''",
	)
	if err != nil {
		return CorrelationResult{}, fmt.Errorf("correlation sessions: %w", err)
	}
	var sessions []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			rows.Close()
			return CorrelationResult{}, err
		}
		sessions = append(sessions, sid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return CorrelationResult{}, err
	}

	result := CorrelationResult{Sessions: len(sessions)}

	for _, sessionID := range sessions {
		updated, err := correlateSession(conn, sessionID)
		if err != nil {
			return result, err
		}
		result.Updated += updated
	}

	return result, nil
}

func correlateSession(conn *sql.DB, sessionID string) (int64, error) {
	// session_name from the most recent SessionStart event that carries one
	var sessionName interface{}
	var name string
	err := conn.QueryRow(`
		SELECT session_name FROM hook_events
		WHERE session_id = ? AND event_type = 'SessionStart' AND session_name IS NOT NULL
		ORDER BY timestamp DESC LIMIT 1`,
		sessionID,
	).Scan(&name)
	if err == nil {
		sessionName = name
	}

	stops, err := sessionStopEvents(conn, sessionID)
	if err != nil {
		return 0, err
	}

	if len(stops) == 0 {
		return correlateWithoutStops(conn, sessionID, sessionName)
	}

	var total int64

	// Stop events bound turns: (prev_stop, this_stop] half-open intervals,
	// with the first turn reaching back to the start of the session.
	for i, stop := range stops {
		var res sql.Result
		if i > 0 {
			res, err = conn.Exec(`
				UPDATE lines SET turn_id = ?, turn_sequence = ?, session_name = ?
				WHERE session_id = ? AND timestamp > ? AND timestamp <= ?
				AND turn_id IS NULL`,
				stop.turnID, stop.turnSequence, sessionName,
				sessionID, stops[i-1].timestamp, stop.timestamp,
			)
		} else {
			res, err = conn.Exec(`
				UPDATE lines SET turn_id = ?, turn_sequence = ?, session_name = ?
				WHERE session_id = ? AND timestamp <= ?
				AND turn_id IS NULL`,
				stop.turnID, stop.turnSequence, sessionName,
				sessionID, stop.timestamp,
			)
		}
		if err != nil {
			return total, fmt.Errorf("correlate session %s: %w", sessionID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	// Lines after the last Stop belong to a turn still in progress: only the
	// session name can be backfilled.
	if sessionName != nil {
		_, err = conn.Exec(`
			UPDATE lines SET session_name = ?
			WHERE session_id = ? AND timestamp > ? AND session_name IS NULL`,
			sessionName, sessionID, stops[len(stops)-1].timestamp,
		)
		if err != nil {
			return total, fmt.Errorf("backfill session name for %s: %w", sessionID, err)
		}
	}

	return total, nil
}

// correlateWithoutStops attributes lines using PreToolUse/PostToolUse time
// spans when a session has no Stop events. Each turn group claims
// [its first tool event, next group's first tool event); the last group is
// right-open. Lines before the first group get only the session name.
func correlateWithoutStops(conn *sql.DB, sessionID string, sessionName interface{}) (int64, error) {
	turns, err := sessionToolTurns(conn, sessionID)
	if err != nil {
		return 0, err
	}

	if len(turns) == 0 {
		// No turn info at all - just backfill session_name if we have it
		if sessionName != nil {
			_, err := conn.Exec(`
				UPDATE lines SET session_name = ?
				WHERE session_id = ? AND session_name IS NULL`,
				sessionName, sessionID,
			)
			if err != nil {
				return 0, fmt.Errorf("backfill session name for %s: %w", sessionID, err)
			}
		}
		return 0, nil
	}

	var total int64
	for i, turn := range turns {
		var res sql.Result
		if i+1 < len(turns) {
			res, err = conn.Exec(`
				UPDATE lines SET turn_id = ?, turn_sequence = ?, session_name = ?
				WHERE session_id = ? AND timestamp >= ? AND timestamp < ?
				AND turn_id IS NULL`,
				turn.turnID, turn.turnSequence, sessionName,
				sessionID, turn.startTime, turns[i+1].startTime,
			)
		} else {
			res, err = conn.Exec(`
				UPDATE lines SET turn_id = ?, turn_sequence = ?, session_name = ?
				WHERE session_id = ? AND timestamp >= ?
				AND turn_id IS NULL`,
				turn.turnID, turn.turnSequence, sessionName,
				sessionID, turn.startTime,
			)
		}
		if err != nil {
			return total, fmt.Errorf("correlate session %s via tool events: %w", sessionID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	// Lines before the first turn group keep no turn but still get the name
	if sessionName != nil {
		_, err = conn.Exec(`
			UPDATE lines SET session_name = ?
			WHERE session_id = ? AND timestamp < ? AND session_name IS NULL`,
			sessionName, sessionID, turns[0].startTime,
		)
		if err != nil {
			return total, fmt.Errorf("backfill session name for %s: %w", sessionID, err)
		}
	}

	return total, nil
}

func sessionStopEvents(conn *sql.DB, sessionID string) ([]stopEvent, error) {
	rows, err := conn.Query(`
		SELECT timestamp, turn_id, turn_sequence FROM hook_events
		WHERE session_id = ? AND event_type = 'Stop' AND turn_id IS NOT NULL
		ORDER BY timestamp ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("stop events for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var stops []stopEvent
	for rows.Next() {
		var s stopEvent
		var seq sql.NullInt64
		if err := rows.Scan(&s.timestamp, &s.turnID, &seq); err != nil {
			return nil, err
		}
		s.turnSequence = seq.Int64
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func sessionToolTurns(conn *sql.DB, sessionID string) ([]toolTurn, error) {
	rows, err := conn.Query(`
		SELECT DISTINCT turn_id, turn_sequence,
		       MIN(timestamp) AS start_time, MAX(timestamp) AS end_time
		FROM hook_events
		WHERE session_id = ? AND turn_id IS NOT NULL
		  AND event_type IN ('PreToolUse', 'PostToolUse')
		GROUP BY turn_id, turn_sequence
		ORDER BY turn_sequence ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("tool turns for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []toolTurn
	for rows.Next() {
		var t toolTurn
		var seq sql.NullInt64
		if err := rows.Scan(&t.turnID, &seq, &t.startTime, &t.endTime); err != nil {
			return nil, err
		}
		t.turnSequence = seq.Int64
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
