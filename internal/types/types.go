// Package types defines core data structures for the td board tracker.
package types

import (
	"strconv"
	"strings"
	"time"
)

// Option is one legal value of a single-select or iteration field.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TaskRow is one item (issue, PR, or draft) from one project board.
//
// Rows are keyed by the tuple (OwnerType, Owner, ProjectNumber, Title, URL,
// StartField, StartDate): the same issue appears once per accepted date-field
// match, so a task with both a "Start date" and a "Review date" produces two
// rows.
type TaskRow struct {
	OwnerType     string `json:"owner_type"` // "orgs" or "users"
	Owner         string `json:"owner"`
	ProjectNumber int    `json:"project_number"`
	ProjectID     string `json:"project_id"`
	ProjectTitle  string `json:"project_title"`
	ItemID        string `json:"item_id"`    // project item node id
	ContentID     string `json:"content_id"` // issue/PR/draft node id
	RepoFullName  string `json:"repo_full_name,omitempty"`

	Title string `json:"title"`
	URL   string `json:"url"` // empty for drafts and placeholder rows

	// Schedule fields. Each date carries the name and id of the project
	// field it came from so edits can be written back.
	StartField   string `json:"start_field"`
	StartFieldID string `json:"start_field_id,omitempty"`
	StartDate    string `json:"start_date"` // "" or YYYY-MM-DD
	EndField     string `json:"end_field,omitempty"`
	EndFieldID   string `json:"end_field_id,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	FocusField   string `json:"focus_field,omitempty"`
	FocusFieldID string `json:"focus_field_id,omitempty"`
	FocusDate    string `json:"focus_date,omitempty"`

	// Iteration field.
	IterationField    string   `json:"iteration_field,omitempty"`
	IterationFieldID  string   `json:"iteration_field_id,omitempty"`
	IterationOptionID string   `json:"iteration_option_id,omitempty"`
	IterationTitle    string   `json:"iteration_title,omitempty"`
	IterationStart    string   `json:"iteration_start,omitempty"`
	IterationDuration int      `json:"iteration_duration,omitempty"`
	IterationOptions  []Option `json:"iteration_options,omitempty"`

	// Single-select fields, with the full option list cached so the
	// editor never needs a round trip to render choices.
	StatusFieldID  string   `json:"status_field_id,omitempty"`
	StatusOptionID string   `json:"status_option_id,omitempty"`
	Status         string   `json:"status,omitempty"`
	StatusOptions  []Option `json:"status_options,omitempty"`

	PriorityFieldID  string   `json:"priority_field_id,omitempty"`
	PriorityOptionID string   `json:"priority_option_id,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	PriorityOptions  []Option `json:"priority_options,omitempty"`

	// People. AssigneeIDs/Logins are the union of the item's
	// content-level assignees and any project people-field.
	AssigneeFieldID string   `json:"assignee_field_id,omitempty"`
	AssigneeIDs     []string `json:"assignee_ids,omitempty"`
	AssigneeLogins  []string `json:"assignee_logins,omitempty"`
	AssignedToMe    bool     `json:"assigned_to_me"`
	CreatedByMe     bool     `json:"created_by_me"`

	Labels []string `json:"labels,omitempty"`

	UpdatedAt  time.Time `json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	IsDone     bool      `json:"is_done"`

	// Pending-write shadows: a staged optimistic change awaiting remote
	// confirmation. Cleared when the background write resolves.
	StatusDirty             bool   `json:"status_dirty,omitempty"`
	StatusPendingOptionID   string `json:"status_pending_option_id,omitempty"`
	PriorityDirty           bool   `json:"priority_dirty,omitempty"`
	PriorityPendingOptionID string `json:"priority_pending_option_id,omitempty"`
}

// Key returns the unique tuple key for this row.
func (t *TaskRow) Key() string {
	return strings.Join([]string{
		t.OwnerType, t.Owner, strconv.Itoa(t.ProjectNumber),
		t.Title, t.URL, t.StartField, t.StartDate,
	}, "\x00")
}

// Placeholder reports whether this is a synthetic "no items" row emitted so
// an empty project still appears in the UI.
func (t *TaskRow) Placeholder() bool {
	return t.URL == "" && t.ItemID == ""
}

// doneWords are status texts that mark a task as finished. Matching is
// case-insensitive against the whole status string.
var doneWords = map[string]bool{
	"done":     true,
	"complete": true,
	"closed":   true,
	"merged":   true,
	"finished": true,
	"✅":        true,
	"✔":        true,
}

// IsDoneStatus reports whether a status text counts as done.
func IsDoneStatus(status string) bool {
	return doneWords[strings.ToLower(strings.TrimSpace(status))]
}

// WorkSession is a half-open interval [StartedAt, EndedAt) of time spent on
// one task. EndedAt nil means the session is still running. At most one
// session per task URL is open at a time.
type WorkSession struct {
	ID           int64      `json:"id"`
	TaskURL      string     `json:"task_url"`
	ProjectTitle string     `json:"project_title,omitempty"`
	Labels       []string   `json:"labels,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// Timer event types.
const (
	TimerEventStart = "start"
	TimerEventStop  = "stop"
)

// TimerEvent is one entry in the append-only timer audit log. Duration math
// uses WorkSession rows, not events.
type TimerEvent struct {
	ID        int64     `json:"id"`
	TaskURL   string    `json:"task_url"`
	At        time.Time `json:"at"`
	EventType string    `json:"event_type"`
}

// Durations is a per-task time snapshot in whole seconds.
type Durations struct {
	Total   int64 `json:"total"`   // seconds across all sessions ever
	Current int64 `json:"current"` // seconds of the open session, 0 if none
}

// FetchResult is the outcome of one sync run. Partial means the run was cut
// short (rate-limited) and Rows holds only what was collected before the cut.
type FetchResult struct {
	Rows    []TaskRow
	Partial bool
	Message string
}
