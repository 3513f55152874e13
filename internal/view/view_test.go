package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdeck/trackdeck/internal/types"
)

var viewNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

const today = "2026-08-26"

func row(title, project, start string, mutate ...func(*types.TaskRow)) types.TaskRow {
	r := types.TaskRow{
		Title:        title,
		ProjectTitle: project,
		URL:          "https://example.com/" + title,
		ItemID:       "item-" + title,
		StartField:   "Start date",
		StartDate:    start,
		AssignedToMe: true,
		LastSeenAt:   viewNow,
	}
	for _, f := range mutate {
		f(&r)
	}
	return r
}

func newModel(rows ...types.TaskRow) *Model {
	m := New()
	m.SetRows(rows, today, viewNow)
	return m
}

func TestDefaultFiltersHideDone(t *testing.T) {
	m := newModel(
		row("open", "P", today),
		row("finished", "P", today, func(r *types.TaskRow) { r.IsDone = true }),
	)
	require.Len(t, m.Visible(), 1)
	assert.Equal(t, "open", m.Visible()[0].Title)

	f := m.Filters()
	f.HideDone = false
	m.SetFilters(f)
	assert.Len(t, m.Visible(), 2)
}

func TestTodayFilter(t *testing.T) {
	m := newModel(
		row("due-today", "P", today),
		row("overdue", "P", "2026-08-20"),
		row("future", "P", "2026-09-10"),
		row("focus-today", "P", "", func(r *types.TaskRow) { r.FocusDate = today }),
		row("dateless", "P", ""),
	)
	f := m.Filters()
	f.TodayOnly = true
	m.SetFilters(f)

	var titles []string
	for _, r := range m.Visible() {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"due-today", "overdue", "focus-today"}, titles)
}

func TestNoDateAndDateMaxFilters(t *testing.T) {
	m := newModel(
		row("dated", "P", today),
		row("far", "P", "2026-10-01"),
		row("dateless", "P", ""),
	)

	f := m.Filters()
	f.NoDate = true
	m.SetFilters(f)
	require.Len(t, m.Visible(), 1)
	assert.Equal(t, "dateless", m.Visible()[0].Title)

	f.NoDate = false
	f.DateMax = "2026-09-01"
	m.SetFilters(f)
	var titles []string
	for _, r := range m.Visible() {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"dated", "dateless"}, titles, "date-max keeps dateless rows")
}

func TestProjectAndSearchFilters(t *testing.T) {
	m := newModel(
		row("alpha-task", "Alpha", today, func(r *types.TaskRow) { r.Labels = []string{"infra"} }),
		row("beta-task", "Beta", today),
	)

	f := m.Filters()
	f.Project = "Alpha"
	m.SetFilters(f)
	require.Len(t, m.Visible(), 1)
	assert.Equal(t, "alpha-task", m.Visible()[0].Title)

	f.Project = ""
	f.Search = "INFRA"
	m.SetFilters(f)
	require.Len(t, m.Visible(), 1, "search matches labels case-insensitively")
	assert.Equal(t, "alpha-task", m.Visible()[0].Title)
}

func TestIncludeCreatedFilter(t *testing.T) {
	m := newModel(
		row("mine", "P", today),
		row("authored", "P", today, func(r *types.TaskRow) {
			r.AssignedToMe = false
			r.CreatedByMe = true
		}),
	)
	require.Len(t, m.Visible(), 1, "authored-only rows hidden by default")

	f := m.Filters()
	f.IncludeCreated = true
	m.SetFilters(f)
	assert.Len(t, m.Visible(), 2)
}

func TestIterationMode(t *testing.T) {
	m := newModel(
		row("plain", "P", today),
		row("sprinted-b", "P", today, func(r *types.TaskRow) {
			r.IterationTitle = "Sprint 13"
			r.IterationStart = "2026-09-07"
		}),
		row("sprinted-a", "P", today, func(r *types.TaskRow) {
			r.IterationTitle = "Sprint 12"
			r.IterationStart = "2026-08-24"
		}),
	)
	f := m.Filters()
	f.IterationMode = true
	m.SetFilters(f)

	require.Len(t, m.Visible(), 2)
	assert.Equal(t, "sprinted-a", m.Visible()[0].Title, "grouped by iteration start")
	assert.Equal(t, "sprinted-b", m.Visible()[1].Title)
}

func TestStaleRowsHiddenByDefault(t *testing.T) {
	m := newModel(
		row("fresh", "P", today),
		row("stale", "P", today, func(r *types.TaskRow) {
			r.LastSeenAt = viewNow.Add(-15 * 24 * time.Hour)
		}),
	)
	require.Len(t, m.Visible(), 1)
	assert.Equal(t, "fresh", m.Visible()[0].Title)

	f := m.Filters()
	f.ShowStale = true
	m.SetFilters(f)
	assert.Len(t, m.Visible(), 2)
}

func TestPlaceholderSurvivesRowFilters(t *testing.T) {
	placeholder := types.TaskRow{ProjectTitle: "Empty Board", Title: "(no items)", LastSeenAt: viewNow}
	m := newModel(row("real", "P", today), placeholder)

	f := m.Filters()
	f.TodayOnly = true
	f.NoDate = true
	m.SetFilters(f)

	var titles []string
	for _, r := range m.Visible() {
		titles = append(titles, r.Title)
	}
	assert.Contains(t, titles, "(no items)")

	f.Project = "P"
	m.SetFilters(f)
	for _, r := range m.Visible() {
		assert.NotEqual(t, "(no items)", r.Title, "project filter still applies to placeholders")
	}
}

func TestSortOrder(t *testing.T) {
	m := newModel(
		row("z-dateless", "P", ""),
		row("later", "P", "2026-08-27"),
		row("earlier", "P", "2026-08-25"),
		row("same-day-b", "Beta", "2026-08-25"),
	)

	var titles []string
	for _, r := range m.Visible() {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"same-day-b", "earlier", "later", "z-dateless"}, titles)
}

func TestSelectionPreservedAcrossRefresh(t *testing.T) {
	a := row("a", "P", today)
	b := row("b", "P", today)
	c := row("c", "P", today)

	m := newModel(a, b, c)
	m.MoveSelection(1)
	sel, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.Title)

	// Refresh drops row a; the cursor follows row b to its new index.
	m.SetRows([]types.TaskRow{b, c}, today, viewNow)
	sel, ok = m.Selected()
	require.True(t, ok)
	assert.Equal(t, "b", sel.Title)

	// Clamping at the ends.
	m.MoveSelection(10)
	assert.Equal(t, 1, m.SelectedIndex())
	m.MoveSelection(-10)
	assert.Equal(t, 0, m.SelectedIndex())
}

func TestProjectTitles(t *testing.T) {
	m := newModel(
		row("t1", "Beta", today),
		row("t2", "Alpha", today),
		row("t3", "Alpha", today),
	)
	assert.Equal(t, []string{"Alpha", "Beta"}, m.ProjectTitles())
}
