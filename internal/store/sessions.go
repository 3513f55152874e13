package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trackdeck/trackdeck/internal/types"
)

// StartSession opens a work session for a task. Any session already open
// for the same URL is stopped first inside the same transaction, so at most
// one session per URL is ever open. A start event is appended to the audit
// log. Returns the new session id.
func (s *Store) StartSession(taskURL, projectTitle string, labels []string, at time.Time) (id int64, retErr error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin session start: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, rbErr)
			}
		}
	}()

	ts := formatTime(at)
	if _, err := tx.Exec(
		`UPDATE work_sessions SET ended_at = ? WHERE task_url = ? AND ended_at IS NULL`,
		ts, taskURL); err != nil {
		return 0, fmt.Errorf("failed to close prior session: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO work_sessions (task_url, project_title, labels, started_at) VALUES (?, ?, ?, ?)`,
		taskURL, projectTitle, marshalList(labels), ts)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read session id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO timer_events (task_url, at, event_type) VALUES (?, ?, ?)`,
		taskURL, ts, types.TimerEventStart); err != nil {
		return 0, fmt.Errorf("failed to record start event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session start: %w", err)
	}
	return id, nil
}

// StopSession closes the open session for a task URL and appends a stop
// event. Stopping a URL with no open session is a no-op.
func (s *Store) StopSession(taskURL string, at time.Time) (retErr error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin session stop: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, rbErr)
			}
		}
	}()

	ts := formatTime(at)
	res, err := tx.Exec(
		`UPDATE work_sessions SET ended_at = ? WHERE task_url = ? AND ended_at IS NULL`,
		ts, taskURL)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check session stop: %w", err)
	}
	if n > 0 {
		if _, err := tx.Exec(
			`INSERT INTO timer_events (task_url, at, event_type) VALUES (?, ?, ?)`,
			taskURL, ts, types.TimerEventStop); err != nil {
			return fmt.Errorf("failed to record stop event: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateSessionTimes rewrites one or both endpoints of a session. Nil
// leaves an endpoint unchanged. The resulting interval must satisfy
// ended > started when both are set.
func (s *Store) UpdateSessionTimes(id int64, started, ended *time.Time) error {
	cur, err := s.sessionByID(id)
	if err != nil {
		return err
	}

	newStart := cur.StartedAt
	if started != nil {
		newStart = started.UTC()
	}
	newEnd := cur.EndedAt
	if ended != nil {
		e := ended.UTC()
		newEnd = &e
	}
	if newEnd != nil && !newEnd.After(newStart) {
		return fmt.Errorf("end must be after start")
	}

	var endVal any
	if newEnd != nil {
		endVal = formatTime(*newEnd)
	}
	if _, err := s.db.Exec(
		`UPDATE work_sessions SET started_at = ?, ended_at = ? WHERE id = ?`,
		formatTime(newStart), endVal, id); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (s *Store) DeleteSession(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM work_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) sessionByID(id int64) (types.WorkSession, error) {
	row := s.db.QueryRow(
		`SELECT id, task_url, project_title, labels, started_at, ended_at FROM work_sessions WHERE id = ?`, id)
	ws, err := scanSessionRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ws, fmt.Errorf("session %d not found", id)
	}
	return ws, err
}

func scanSessionRow(scan func(...any) error) (types.WorkSession, error) {
	var ws types.WorkSession
	var labels, started string
	var ended sql.NullString
	if err := scan(&ws.ID, &ws.TaskURL, &ws.ProjectTitle, &labels, &started, &ended); err != nil {
		return ws, err
	}
	ws.Labels = unmarshalList[string](labels)
	ws.StartedAt = parseTime(started)
	if ended.Valid {
		t := parseTime(ended.String)
		ws.EndedAt = &t
	}
	return ws, nil
}

func (s *Store) querySessions(query string, args ...any) ([]types.WorkSession, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.WorkSession
	for rows.Next() {
		ws, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// SessionsForTask returns all sessions for a task URL, oldest first.
func (s *Store) SessionsForTask(taskURL string) ([]types.WorkSession, error) {
	return s.querySessions(
		`SELECT id, task_url, project_title, labels, started_at, ended_at
		 FROM work_sessions WHERE task_url = ? ORDER BY started_at`, taskURL)
}

// SessionsSince returns sessions that were still running at or after the
// cutoff (now - days). Closed sessions that ended before the cutoff are
// excluded; the analytics layer clips the rest.
func (s *Store) SessionsSince(days int, now time.Time) ([]types.WorkSession, error) {
	cutoff := formatTime(now.Add(-time.Duration(days) * 24 * time.Hour))
	return s.querySessions(
		`SELECT id, task_url, project_title, labels, started_at, ended_at
		 FROM work_sessions WHERE ended_at IS NULL OR ended_at >= ? ORDER BY started_at`, cutoff)
}

// ActiveTaskURLs returns the set of URLs with an open session.
func (s *Store) ActiveTaskURLs() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT DISTINCT task_url FROM work_sessions WHERE ended_at IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]bool{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan active session: %w", err)
		}
		out[url] = true
	}
	return out, rows.Err()
}

// TaskDurationSnapshot returns, per URL, the total seconds across all
// sessions ever and the seconds of the currently open session. Unknown
// URLs yield {0, 0}. Open intervals are measured against now.
func (s *Store) TaskDurationSnapshot(urls []string, now time.Time) (map[string]types.Durations, error) {
	out := make(map[string]types.Durations, len(urls))
	for _, u := range urls {
		out[u] = types.Durations{}
	}
	if len(urls) == 0 {
		return out, nil
	}

	sessions, err := s.querySessions(
		`SELECT id, task_url, project_title, labels, started_at, ended_at FROM work_sessions`)
	if err != nil {
		return nil, err
	}

	nowUTC := now.UTC()
	for _, ws := range sessions {
		d, tracked := out[ws.TaskURL]
		if !tracked {
			continue
		}
		end := nowUTC
		if ws.EndedAt != nil {
			end = ws.EndedAt.UTC()
		}
		secs := int64(end.Sub(ws.StartedAt.UTC()).Seconds())
		if secs < 0 {
			secs = 0
		}
		d.Total += secs
		if ws.EndedAt == nil {
			d.Current = secs
		}
		out[ws.TaskURL] = d
	}
	return out, nil
}

// TimerEventsForTask returns the audit log for a task URL, oldest first.
func (s *Store) TimerEventsForTask(taskURL string) ([]types.TimerEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, task_url, at, event_type FROM timer_events WHERE task_url = ? ORDER BY at, id`, taskURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query timer events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.TimerEvent
	for rows.Next() {
		var ev types.TimerEvent
		var at string
		if err := rows.Scan(&ev.ID, &ev.TaskURL, &at, &ev.EventType); err != nil {
			return nil, fmt.Errorf("failed to scan timer event: %w", err)
		}
		ev.At = parseTime(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}
