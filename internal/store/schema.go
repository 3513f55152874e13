package store

// taskColumns is the canonical column set of the tasks table, in schema
// order. The migration probe compares an existing table against this list;
// the upsert and scan helpers rely on the same ordering.
var taskColumns = []string{
	"owner_type", "owner", "project_number", "project_id", "project_title",
	"item_id", "content_id", "repo_full_name",
	"title", "url",
	"start_field", "start_field_id", "start_date",
	"end_field", "end_field_id", "end_date",
	"focus_field", "focus_field_id", "focus_date",
	"iteration_field", "iteration_field_id", "iteration_option_id",
	"iteration_title", "iteration_start", "iteration_duration", "iteration_options",
	"status_field_id", "status_option_id", "status", "status_options",
	"status_dirty", "status_pending_option_id",
	"priority_field_id", "priority_option_id", "priority", "priority_options",
	"priority_dirty", "priority_pending_option_id",
	"assignee_field_id", "assignee_ids", "assignee_logins",
	"assigned_to_me", "created_by_me",
	"labels", "updated_at", "last_seen_at", "is_done",
}

const schema = `
-- Tasks table: one row per (board item, accepted date field) pair
CREATE TABLE IF NOT EXISTS tasks (
    owner_type TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    project_number INTEGER NOT NULL DEFAULT 0,
    project_id TEXT NOT NULL DEFAULT '',
    project_title TEXT NOT NULL DEFAULT '',
    item_id TEXT NOT NULL DEFAULT '',
    content_id TEXT NOT NULL DEFAULT '',
    repo_full_name TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    start_field TEXT NOT NULL DEFAULT '',
    start_field_id TEXT NOT NULL DEFAULT '',
    start_date TEXT NOT NULL DEFAULT '',
    end_field TEXT NOT NULL DEFAULT '',
    end_field_id TEXT NOT NULL DEFAULT '',
    end_date TEXT NOT NULL DEFAULT '',
    focus_field TEXT NOT NULL DEFAULT '',
    focus_field_id TEXT NOT NULL DEFAULT '',
    focus_date TEXT NOT NULL DEFAULT '',
    iteration_field TEXT NOT NULL DEFAULT '',
    iteration_field_id TEXT NOT NULL DEFAULT '',
    iteration_option_id TEXT NOT NULL DEFAULT '',
    iteration_title TEXT NOT NULL DEFAULT '',
    iteration_start TEXT NOT NULL DEFAULT '',
    iteration_duration INTEGER NOT NULL DEFAULT 0,
    iteration_options TEXT NOT NULL DEFAULT '[]',
    status_field_id TEXT NOT NULL DEFAULT '',
    status_option_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    status_options TEXT NOT NULL DEFAULT '[]',
    status_dirty INTEGER NOT NULL DEFAULT 0,
    status_pending_option_id TEXT NOT NULL DEFAULT '',
    priority_field_id TEXT NOT NULL DEFAULT '',
    priority_option_id TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT '',
    priority_options TEXT NOT NULL DEFAULT '[]',
    priority_dirty INTEGER NOT NULL DEFAULT 0,
    priority_pending_option_id TEXT NOT NULL DEFAULT '',
    assignee_field_id TEXT NOT NULL DEFAULT '',
    assignee_ids TEXT NOT NULL DEFAULT '[]',
    assignee_logins TEXT NOT NULL DEFAULT '[]',
    assigned_to_me INTEGER NOT NULL DEFAULT 0,
    created_by_me INTEGER NOT NULL DEFAULT 0,
    labels TEXT NOT NULL DEFAULT '[]',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    is_done INTEGER NOT NULL DEFAULT 0,
    UNIQUE(owner_type, owner, project_number, title, url, start_field, start_date)
);

CREATE INDEX IF NOT EXISTS idx_tasks_date ON tasks(start_date);
CREATE INDEX IF NOT EXISTS idx_tasks_end_date ON tasks(end_date);
CREATE INDEX IF NOT EXISTS idx_tasks_focus_date ON tasks(focus_date);

-- Work sessions: half-open intervals [started_at, ended_at)
CREATE TABLE IF NOT EXISTS work_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_url TEXT NOT NULL,
    project_title TEXT NOT NULL DEFAULT '',
    labels TEXT NOT NULL DEFAULT '[]',
    started_at TEXT NOT NULL,
    ended_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_ws_task ON work_sessions(task_url);
CREATE INDEX IF NOT EXISTS idx_ws_open ON work_sessions(task_url) WHERE ended_at IS NULL;

-- Timer events: append-only audit log
CREATE TABLE IF NOT EXISTS timer_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_url TEXT NOT NULL,
    at TEXT NOT NULL,
    event_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_te_task_at ON timer_events(task_url, at);
`

// auxiliarySchema recreates the session/event tables and every index.
// Applied on every open, after any task-table migration.
const auxiliarySchema = `
CREATE TABLE IF NOT EXISTS work_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_url TEXT NOT NULL,
    project_title TEXT NOT NULL DEFAULT '',
    labels TEXT NOT NULL DEFAULT '[]',
    started_at TEXT NOT NULL,
    ended_at TEXT
);

CREATE TABLE IF NOT EXISTS timer_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    task_url TEXT NOT NULL,
    at TEXT NOT NULL,
    event_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_date ON tasks(start_date);
CREATE INDEX IF NOT EXISTS idx_tasks_end_date ON tasks(end_date);
CREATE INDEX IF NOT EXISTS idx_tasks_focus_date ON tasks(focus_date);
CREATE INDEX IF NOT EXISTS idx_ws_task ON work_sessions(task_url);
CREATE INDEX IF NOT EXISTS idx_ws_open ON work_sessions(task_url) WHERE ended_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_te_task_at ON timer_events(task_url, at);
`
