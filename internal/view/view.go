// Package view holds the in-memory view-model: a read snapshot of store
// rows with filtering, sorting, and cursor state. It never writes to the
// store.
package view

import (
	"sort"
	"strings"
	"time"

	"github.com/trackdeck/trackdeck/internal/types"
)

// StaleAfter hides rows a re-sync has not observed for this long. The sync
// engine never deletes rows; hiding them here keeps the list honest without
// losing session history attached to old URLs.
const StaleAfter = 14 * 24 * time.Hour

// Filters is the visible-row predicate set. The zero value shows every
// fresh row.
type Filters struct {
	TodayOnly      bool   // only rows scheduled today or earlier
	NoDate         bool   // only rows without a start date
	HideDone       bool
	Project        string // exact project title, "" for all
	Search         string // case-insensitive substring
	DateMax        string // YYYY-MM-DD inclusive upper bound on start date
	IterationMode  bool   // only rows carrying an iteration, grouped by it
	IncludeCreated bool   // keep rows only authored (not assigned) by the user
	ShowStale      bool   // keep rows not seen by a recent sync
}

// Model is the filtered, sorted projection the UI renders from.
type Model struct {
	rows    []types.TaskRow
	visible []types.TaskRow
	filters Filters

	today    string
	now      time.Time
	selected int
}

// New returns an empty model with default filters.
func New() *Model {
	return &Model{filters: Filters{HideDone: true}}
}

// Filters returns the current filter set.
func (m *Model) Filters() Filters { return m.filters }

// SetFilters replaces the filter set and reapplies it.
func (m *Model) SetFilters(f Filters) {
	m.filters = f
	m.apply()
}

// SetRows replaces the row snapshot. today is the local YYYY-MM-DD used by
// the today filter; now anchors staleness checks. The cursor stays on the
// same logical row when it survives the refresh.
func (m *Model) SetRows(rows []types.TaskRow, today string, now time.Time) {
	var selectedKey string
	if row, ok := m.Selected(); ok {
		selectedKey = row.Key()
	}

	m.rows = rows
	m.today = today
	m.now = now
	m.apply()

	if selectedKey != "" {
		for i := range m.visible {
			if m.visible[i].Key() == selectedKey {
				m.selected = i
				return
			}
		}
	}
	m.selected = 0
}

// Visible returns the rows passing the current filters, in display order.
func (m *Model) Visible() []types.TaskRow { return m.visible }

// Selected returns the row under the cursor.
func (m *Model) Selected() (types.TaskRow, bool) {
	if m.selected < 0 || m.selected >= len(m.visible) {
		return types.TaskRow{}, false
	}
	return m.visible[m.selected], true
}

// SelectedIndex returns the cursor position.
func (m *Model) SelectedIndex() int { return m.selected }

// MoveSelection moves the cursor by delta, clamped to the visible range.
func (m *Model) MoveSelection(delta int) {
	m.selected += delta
	if m.selected < 0 {
		m.selected = 0
	}
	if max := len(m.visible) - 1; m.selected > max {
		m.selected = max
	}
	if len(m.visible) == 0 {
		m.selected = 0
	}
}

// SelectFirst and SelectLast jump the cursor.
func (m *Model) SelectFirst() { m.selected = 0 }
func (m *Model) SelectLast() {
	if len(m.visible) > 0 {
		m.selected = len(m.visible) - 1
	}
}

// SelectURL places the cursor on the first visible row with the given URL.
func (m *Model) SelectURL(url string) bool {
	for i := range m.visible {
		if m.visible[i].URL == url {
			m.selected = i
			return true
		}
	}
	return false
}

// ProjectTitles returns the distinct project titles in the snapshot, sorted,
// for the project-filter picker.
func (m *Model) ProjectTitles() []string {
	seen := map[string]bool{}
	var out []string
	for i := range m.rows {
		title := m.rows[i].ProjectTitle
		if title == "" || seen[title] {
			continue
		}
		seen[title] = true
		out = append(out, title)
	}
	sort.Strings(out)
	return out
}

func (m *Model) apply() {
	m.visible = m.visible[:0]
	for i := range m.rows {
		if m.match(&m.rows[i]) {
			m.visible = append(m.visible, m.rows[i])
		}
	}
	m.sortVisible()
	if m.selected >= len(m.visible) {
		m.selected = 0
	}
}

func (m *Model) match(row *types.TaskRow) bool {
	f := m.filters

	if f.Project != "" && row.ProjectTitle != f.Project {
		return false
	}

	// Placeholders represent an empty project; they ignore row-level
	// filters so the project never vanishes from the list.
	if row.Placeholder() {
		return f.Search == ""
	}

	if !f.ShowStale && !row.LastSeenAt.IsZero() && m.now.Sub(row.LastSeenAt) > StaleAfter {
		return false
	}
	if f.HideDone && row.IsDone {
		return false
	}
	if !f.IncludeCreated && !row.AssignedToMe && row.CreatedByMe {
		return false
	}
	if f.NoDate && row.StartDate != "" {
		return false
	}
	if f.TodayOnly {
		scheduled := row.StartDate != "" && row.StartDate <= m.today
		focused := row.FocusDate != "" && row.FocusDate <= m.today
		if !scheduled && !focused {
			return false
		}
	}
	if f.DateMax != "" && row.StartDate != "" && row.StartDate > f.DateMax {
		return false
	}
	if f.IterationMode && row.IterationTitle == "" {
		return false
	}
	if f.Search != "" && !matchSearch(row, f.Search) {
		return false
	}
	return true
}

// matchSearch checks a case-insensitive substring against title, project,
// repo, status, and labels.
func matchSearch(row *types.TaskRow, needle string) bool {
	needle = strings.ToLower(needle)
	for _, hay := range []string{row.Title, row.ProjectTitle, row.RepoFullName, row.Status} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	for _, label := range row.Labels {
		if strings.Contains(strings.ToLower(label), needle) {
			return true
		}
	}
	return false
}

// sortVisible orders rows for display: dated rows first ascending, dateless
// rows after, ties broken by project then title. Iteration mode groups by
// iteration start instead.
func (m *Model) sortVisible() {
	iter := m.filters.IterationMode
	sort.SliceStable(m.visible, func(i, j int) bool {
		a, b := &m.visible[i], &m.visible[j]
		if iter {
			if a.IterationStart != b.IterationStart {
				return a.IterationStart < b.IterationStart
			}
		}
		if (a.StartDate == "") != (b.StartDate == "") {
			return a.StartDate != ""
		}
		if a.StartDate != b.StartDate {
			return a.StartDate < b.StartDate
		}
		if a.ProjectTitle != b.ProjectTitle {
			return a.ProjectTitle < b.ProjectTitle
		}
		return a.Title < b.Title
	})
}
