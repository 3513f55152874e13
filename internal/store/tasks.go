package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trackdeck/trackdeck/internal/types"
)

// DateField selects which schedule column an update targets.
type DateField int

const (
	DateStart DateField = iota
	DateEnd
	DateFocus
)

func (f DateField) columns() (date, name, id string) {
	switch f {
	case DateEnd:
		return "end_date", "end_field", "end_field_id"
	case DateFocus:
		return "focus_date", "focus_field", "focus_field_id"
	default:
		return "start_date", "start_field", "start_field_id"
	}
}

// timeLayouts covers RFC3339 (our writes) and SQLite datetime('now').
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// parseTime decodes a stored timestamp. Naive values are interpreted as
// UTC; never mix naive and aware instants downstream.
func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// UpsertMany writes a batch of rows in one transaction. Conflicts on the
// tuple key update the mutable columns; the dirty/pending shadows of a row
// with an in-flight edit are left untouched, including its optimistic
// canonical value.
func (s *Store) UpsertMany(rows []types.TaskRow) (retErr error) {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, rbErr)
			}
		}
	}()

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(time.Now())
	for i := range rows {
		r := &rows[i]
		lastSeen := now
		if !r.LastSeenAt.IsZero() {
			lastSeen = formatTime(r.LastSeenAt)
		}
		updated := now
		if !r.UpdatedAt.IsZero() {
			updated = formatTime(r.UpdatedAt)
		}
		_, err := stmt.Exec(
			r.OwnerType, r.Owner, r.ProjectNumber, r.ProjectID, r.ProjectTitle,
			r.ItemID, r.ContentID, r.RepoFullName,
			r.Title, r.URL,
			r.StartField, r.StartFieldID, r.StartDate,
			r.EndField, r.EndFieldID, r.EndDate,
			r.FocusField, r.FocusFieldID, r.FocusDate,
			r.IterationField, r.IterationFieldID, r.IterationOptionID,
			r.IterationTitle, r.IterationStart, r.IterationDuration, marshalList(r.IterationOptions),
			r.StatusFieldID, r.StatusOptionID, r.Status, marshalList(r.StatusOptions),
			r.PriorityFieldID, r.PriorityOptionID, r.Priority, marshalList(r.PriorityOptions),
			r.AssigneeFieldID, marshalList(r.AssigneeIDs), marshalList(r.AssigneeLogins),
			boolToInt(r.AssignedToMe), boolToInt(r.CreatedByMe),
			marshalList(r.Labels), updated, lastSeen,
			boolToInt(types.IsDoneStatus(r.Status)),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert task %q: %w", r.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// upsertSQL inserts a row or, on tuple-key conflict, refreshes the mutable
// columns. Select-field values guard on the dirty flag so a sync never
// clobbers an optimistic edit that is still in flight; inserted rows start
// clean (dirty defaults to 0).
const upsertSQL = `
INSERT INTO tasks (
    owner_type, owner, project_number, project_id, project_title,
    item_id, content_id, repo_full_name,
    title, url,
    start_field, start_field_id, start_date,
    end_field, end_field_id, end_date,
    focus_field, focus_field_id, focus_date,
    iteration_field, iteration_field_id, iteration_option_id,
    iteration_title, iteration_start, iteration_duration, iteration_options,
    status_field_id, status_option_id, status, status_options,
    priority_field_id, priority_option_id, priority, priority_options,
    assignee_field_id, assignee_ids, assignee_logins,
    assigned_to_me, created_by_me,
    labels, updated_at, last_seen_at, is_done
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(owner_type, owner, project_number, title, url, start_field, start_date) DO UPDATE SET
    project_id = excluded.project_id,
    project_title = excluded.project_title,
    item_id = excluded.item_id,
    content_id = excluded.content_id,
    repo_full_name = excluded.repo_full_name,
    start_field_id = excluded.start_field_id,
    end_field = excluded.end_field,
    end_field_id = excluded.end_field_id,
    end_date = excluded.end_date,
    focus_field = excluded.focus_field,
    focus_field_id = excluded.focus_field_id,
    focus_date = excluded.focus_date,
    iteration_field = excluded.iteration_field,
    iteration_field_id = excluded.iteration_field_id,
    iteration_option_id = excluded.iteration_option_id,
    iteration_title = excluded.iteration_title,
    iteration_start = excluded.iteration_start,
    iteration_duration = excluded.iteration_duration,
    iteration_options = excluded.iteration_options,
    status_field_id = excluded.status_field_id,
    status_option_id = CASE WHEN tasks.status_dirty = 1 THEN tasks.status_option_id ELSE excluded.status_option_id END,
    status = CASE WHEN tasks.status_dirty = 1 THEN tasks.status ELSE excluded.status END,
    status_options = excluded.status_options,
    priority_field_id = excluded.priority_field_id,
    priority_option_id = CASE WHEN tasks.priority_dirty = 1 THEN tasks.priority_option_id ELSE excluded.priority_option_id END,
    priority = CASE WHEN tasks.priority_dirty = 1 THEN tasks.priority ELSE excluded.priority END,
    priority_options = excluded.priority_options,
    assignee_field_id = excluded.assignee_field_id,
    assignee_ids = excluded.assignee_ids,
    assignee_logins = excluded.assignee_logins,
    assigned_to_me = excluded.assigned_to_me,
    created_by_me = excluded.created_by_me,
    labels = excluded.labels,
    updated_at = excluded.updated_at,
    last_seen_at = excluded.last_seen_at,
    is_done = CASE WHEN tasks.status_dirty = 1 THEN tasks.is_done ELSE excluded.is_done END
`

const selectTaskSQL = `
SELECT owner_type, owner, project_number, project_id, project_title,
       item_id, content_id, repo_full_name,
       title, url,
       start_field, start_field_id, start_date,
       end_field, end_field_id, end_date,
       focus_field, focus_field_id, focus_date,
       iteration_field, iteration_field_id, iteration_option_id,
       iteration_title, iteration_start, iteration_duration, iteration_options,
       status_field_id, status_option_id, status, status_options,
       status_dirty, status_pending_option_id,
       priority_field_id, priority_option_id, priority, priority_options,
       priority_dirty, priority_pending_option_id,
       assignee_field_id, assignee_ids, assignee_logins,
       assigned_to_me, created_by_me,
       labels, updated_at, last_seen_at, is_done
FROM tasks
`

func scanTask(rows *sql.Rows) (types.TaskRow, error) {
	var t types.TaskRow
	var iterOpts, statusOpts, prioOpts, assigneeIDs, assigneeLogins, labels string
	var statusDirty, prioDirty, assignedToMe, createdByMe, isDone int
	var updatedAt, lastSeenAt string

	err := rows.Scan(
		&t.OwnerType, &t.Owner, &t.ProjectNumber, &t.ProjectID, &t.ProjectTitle,
		&t.ItemID, &t.ContentID, &t.RepoFullName,
		&t.Title, &t.URL,
		&t.StartField, &t.StartFieldID, &t.StartDate,
		&t.EndField, &t.EndFieldID, &t.EndDate,
		&t.FocusField, &t.FocusFieldID, &t.FocusDate,
		&t.IterationField, &t.IterationFieldID, &t.IterationOptionID,
		&t.IterationTitle, &t.IterationStart, &t.IterationDuration, &iterOpts,
		&t.StatusFieldID, &t.StatusOptionID, &t.Status, &statusOpts,
		&statusDirty, &t.StatusPendingOptionID,
		&t.PriorityFieldID, &t.PriorityOptionID, &t.Priority, &prioOpts,
		&prioDirty, &t.PriorityPendingOptionID,
		&t.AssigneeFieldID, &assigneeIDs, &assigneeLogins,
		&assignedToMe, &createdByMe,
		&labels, &updatedAt, &lastSeenAt, &isDone,
	)
	if err != nil {
		return t, err
	}

	t.IterationOptions = unmarshalList[types.Option](iterOpts)
	t.StatusOptions = unmarshalList[types.Option](statusOpts)
	t.PriorityOptions = unmarshalList[types.Option](prioOpts)
	t.AssigneeIDs = unmarshalList[string](assigneeIDs)
	t.AssigneeLogins = unmarshalList[string](assigneeLogins)
	t.Labels = unmarshalList[string](labels)
	t.StatusDirty = statusDirty != 0
	t.PriorityDirty = prioDirty != 0
	t.AssignedToMe = assignedToMe != 0
	t.CreatedByMe = createdByMe != 0
	t.IsDone = isDone != 0
	t.UpdatedAt = parseTime(updatedAt)
	t.LastSeenAt = parseTime(lastSeenAt)
	return t, nil
}

// Load reads task rows. todayOnly keeps rows scheduled on or before today
// (plus undated rows); dateMax, when non-empty, drops rows starting after
// it. Ordering is by start date then title so the view is stable.
func (s *Store) Load(todayOnly bool, dateMax, today string) ([]types.TaskRow, error) {
	var conds []string
	var args []any
	if todayOnly {
		conds = append(conds, "(start_date = '' OR start_date <= ?)")
		args = append(args, today)
	}
	if dateMax != "" {
		conds = append(conds, "(start_date = '' OR start_date <= ?)")
		args = append(args, dateMax)
	}

	q := selectTaskSQL
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY start_date, project_title, title"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.TaskRow
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadByURL reads every row keyed to a task URL (one per date field match).
func (s *Store) LoadByURL(url string) ([]types.TaskRow, error) {
	rows, err := s.db.Query(selectTaskSQL+" WHERE url = ?", url)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.TaskRow
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) execTask(query string, args ...any) error {
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("task update failed: %w", err)
	}
	return nil
}

// StageStatus writes the optimistic status change: new value, dirty flag,
// and pending option id. The canonical value is restored by ResetStatus if
// the remote write fails.
func (s *Store) StageStatus(url, status, optionID string) error {
	return s.execTask(
		`UPDATE tasks SET status = ?, status_option_id = ?, status_dirty = 1,
		 status_pending_option_id = ?, is_done = ?, updated_at = ? WHERE url = ?`,
		status, optionID, optionID, boolToInt(types.IsDoneStatus(status)), formatTime(time.Now()), url)
}

// UpdateStatus writes the canonical status and clears the pending shadows.
func (s *Store) UpdateStatus(url, status, optionID string) error {
	return s.execTask(
		`UPDATE tasks SET status = ?, status_option_id = ?, status_dirty = 0,
		 status_pending_option_id = '', is_done = ?, updated_at = ? WHERE url = ?`,
		status, optionID, boolToInt(types.IsDoneStatus(status)), formatTime(time.Now()), url)
}

// ResetStatus rolls back to the prior canonical status and clears the
// pending shadows.
func (s *Store) ResetStatus(url, priorStatus, priorOptionID string) error {
	return s.execTask(
		`UPDATE tasks SET status = ?, status_option_id = ?, status_dirty = 0,
		 status_pending_option_id = '', is_done = ? WHERE url = ?`,
		priorStatus, priorOptionID, boolToInt(types.IsDoneStatus(priorStatus)), url)
}

// StagePriority writes the optimistic priority change.
func (s *Store) StagePriority(url, priority, optionID string) error {
	return s.execTask(
		`UPDATE tasks SET priority = ?, priority_option_id = ?, priority_dirty = 1,
		 priority_pending_option_id = ?, updated_at = ? WHERE url = ?`,
		priority, optionID, optionID, formatTime(time.Now()), url)
}

// UpdatePriority writes the canonical priority and clears pending shadows.
func (s *Store) UpdatePriority(url, priority, optionID string) error {
	return s.execTask(
		`UPDATE tasks SET priority = ?, priority_option_id = ?, priority_dirty = 0,
		 priority_pending_option_id = '', updated_at = ? WHERE url = ?`,
		priority, optionID, formatTime(time.Now()), url)
}

// ResetPriority rolls back to the prior canonical priority.
func (s *Store) ResetPriority(url, priorPriority, priorOptionID string) error {
	return s.execTask(
		`UPDATE tasks SET priority = ?, priority_option_id = ?, priority_dirty = 0,
		 priority_pending_option_id = '' WHERE url = ?`,
		priorPriority, priorOptionID, url)
}

// UpdateLabels writes the label list. Serves stage, commit, and rollback;
// labels carry no dirty shadow.
func (s *Store) UpdateLabels(url string, labels []string) error {
	return s.execTask(`UPDATE tasks SET labels = ?, updated_at = ? WHERE url = ?`,
		marshalList(labels), formatTime(time.Now()), url)
}

// UpdateAssignees writes the assignee id and login lists plus the
// assigned-to-me flag for the given user.
func (s *Store) UpdateAssignees(url string, ids, logins []string, me string) error {
	assigned := false
	for _, l := range logins {
		if strings.EqualFold(l, me) {
			assigned = true
			break
		}
	}
	return s.execTask(
		`UPDATE tasks SET assignee_ids = ?, assignee_logins = ?, assigned_to_me = ?, updated_at = ? WHERE url = ?`,
		marshalList(ids), marshalList(logins), boolToInt(assigned), formatTime(time.Now()), url)
}

// UpdateDate writes one schedule date (all rows of the task URL).
func (s *Store) UpdateDate(url string, field DateField, isoDate string) error {
	dateCol, _, _ := field.columns()
	return s.execTask(
		fmt.Sprintf(`UPDATE tasks SET %s = ?, updated_at = ? WHERE url = ?`, dateCol),
		isoDate, formatTime(time.Now()), url)
}

// SaveDateFieldID persists a lazily resolved field id so future edits skip
// the lookup.
func (s *Store) SaveDateFieldID(url string, field DateField, fieldName, fieldID string) error {
	_, nameCol, idCol := field.columns()
	return s.execTask(
		fmt.Sprintf(`UPDATE tasks SET %s = ?, %s = ? WHERE url = ?`, nameCol, idCol),
		fieldName, fieldID, url)
}

// UpdateIteration writes the iteration assignment.
func (s *Store) UpdateIteration(url, optionID, title, start string, durationDays int) error {
	return s.execTask(
		`UPDATE tasks SET iteration_option_id = ?, iteration_title = ?, iteration_start = ?,
		 iteration_duration = ?, updated_at = ? WHERE url = ?`,
		optionID, title, start, durationDays, formatTime(time.Now()), url)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
