package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// columnDefaults maps task columns to the SQL expression used when copying
// from an older layout that lacks the column.
var columnDefaults = map[string]string{
	"project_number":     "0",
	"iteration_duration": "0",
	"status_dirty":       "0",
	"priority_dirty":     "0",
	"assigned_to_me":     "0",
	"created_by_me":      "0",
	"is_done":            "0",
	"iteration_options":  "'[]'",
	"status_options":     "'[]'",
	"priority_options":   "'[]'",
	"assignee_ids":       "'[]'",
	"assignee_logins":    "'[]'",
	"labels":             "'[]'",
	"updated_at":         "datetime('now')",
	"last_seen_at":       "datetime('now')",
}

func defaultExpr(col string) string {
	if expr, ok := columnDefaults[col]; ok {
		return expr
	}
	return "''"
}

// migrate brings the database up to the canonical schema. A missing tasks
// table is created outright; a tasks table missing any canonical column is
// rebuilt by rename-and-copy with defaults for the new columns. The
// session/event tables and all indexes are ensured on every open.
func migrate(db *sql.DB) error {
	existing, err := tableColumns(db, "tasks")
	if err != nil {
		return err
	}

	switch {
	case existing == nil:
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	case missingAny(existing, taskColumns):
		if err := rebuildTasksTable(db, existing); err != nil {
			return err
		}
	}

	if _, err := db.Exec(auxiliarySchema); err != nil {
		return fmt.Errorf("failed to ensure auxiliary schema: %w", err)
	}
	return nil
}

// tableColumns returns the column set of a table, or nil if the table does
// not exist.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to probe schema: %w", err)
	}
	defer func() {
		if rows != nil {
			_ = rows.Close()
		}
	}()

	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading column info: %w", err)
	}
	// Close before issuing further statements; a single-connection pool
	// deadlocks otherwise.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close schema rows: %w", err)
	}
	rows = nil

	if len(cols) == 0 {
		return nil, nil
	}
	return cols, nil
}

func missingAny(existing map[string]bool, want []string) bool {
	for _, col := range want {
		if !existing[col] {
			return true
		}
	}
	return false
}

// rebuildTasksTable renames the old table, creates the canonical one, and
// copies rows column-wise, substituting defaults for columns absent in the
// old layout. INSERT OR IGNORE survives unique keys duplicated across the
// old data.
func rebuildTasksTable(db *sql.DB, oldCols map[string]bool) (retErr error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, fmt.Errorf("rollback failed: %w", rbErr))
			}
		}
	}()

	if _, err := tx.Exec("ALTER TABLE tasks RENAME TO tasks_old"); err != nil {
		return fmt.Errorf("failed to rename tasks table: %w", err)
	}
	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("failed to create new tasks table: %w", err)
	}

	selects := make([]string, len(taskColumns))
	for i, col := range taskColumns {
		if oldCols[col] {
			selects[i] = col
		} else {
			selects[i] = defaultExpr(col)
		}
	}
	copySQL := fmt.Sprintf(
		"INSERT OR IGNORE INTO tasks (%s) SELECT %s FROM tasks_old",
		strings.Join(taskColumns, ", "), strings.Join(selects, ", "),
	)
	if _, err := tx.Exec(copySQL); err != nil {
		return fmt.Errorf("failed to copy task rows: %w", err)
	}

	if _, err := tx.Exec("DROP TABLE tasks_old"); err != nil {
		return fmt.Errorf("failed to drop old tasks table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
