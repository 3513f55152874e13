package ui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdeck/trackdeck/internal/analytics"
	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/edit"
	"github.com/trackdeck/trackdeck/internal/github"
	"github.com/trackdeck/trackdeck/internal/store"
	"github.com/trackdeck/trackdeck/internal/types"
	"github.com/trackdeck/trackdeck/internal/view"
)

const testTaskURL = "https://github.com/acme/app/issues/1"

func newTestModel(t *testing.T) *Model {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	coord := edit.New(st, github.NewClient("test-token"), "me")
	cfg := &config.Config{User: "me"}
	statePath := filepath.Join(t.TempDir(), "ui.json")
	return New(st, nil, coord, cfg, statePath)
}

func testRow() types.TaskRow {
	return types.TaskRow{
		OwnerType:     "orgs",
		Owner:         "acme",
		ProjectNumber: 1,
		ProjectID:     "P_1",
		ProjectTitle:  "Roadmap",
		ItemID:        "PVTI_1",
		Title:         "Fix parser crash",
		URL:           testTaskURL,
		StartField:    "Start date",
		StartDate:     "2026-08-26",
		Status:        "In Progress",
		LastSeenAt:    time.Now().UTC(),
	}
}

func loadRows(t *testing.T, m *Model, rows ...types.TaskRow) {
	t.Helper()
	_, _ = m.Update(rowsLoadedMsg{
		rows:      rows,
		durations: map[string]types.Durations{},
		active:    map[string]bool{},
	})
}

func keyRune(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.json")

	state := UIState{ThemeIndex: 1, Filters: view.Filters{TodayOnly: true, Search: "parser"}}
	SaveState(path, state)

	got := LoadState(path)
	assert.Equal(t, 1, got.ThemeIndex)
	assert.True(t, got.Filters.TodayOnly)
	assert.Equal(t, "parser", got.Filters.Search)
}

func TestStateDefaultsOnMissingOrCorrupt(t *testing.T) {
	got := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, got.Filters.HideDone)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	got = LoadState(path)
	assert.True(t, got.Filters.HideDone)
	assert.Equal(t, "", got.Filters.Search)
}

func TestStateClampsThemeIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.json")
	SaveState(path, UIState{ThemeIndex: 99})
	got := LoadState(path)
	assert.Less(t, got.ThemeIndex, len(themes))
}

func TestSearchFlow(t *testing.T) {
	m := newTestModel(t)
	loadRows(t, m, testRow())

	_, _ = m.Update(keyRune("/"))
	require.Equal(t, ModeSearch, m.mode)

	for _, r := range "parser" {
		_, _ = m.Update(keyRune(string(r)))
	}
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, ModeBrowse, m.mode)
	assert.Equal(t, "parser", m.vm.Filters().Search)
	assert.Len(t, m.vm.Visible(), 1)
}

func TestSearchEscDiscards(t *testing.T) {
	m := newTestModel(t)
	loadRows(t, m, testRow())

	_, _ = m.Update(keyRune("/"))
	_, _ = m.Update(keyRune("x"))
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, ModeBrowse, m.mode)
	assert.Equal(t, "", m.vm.Filters().Search)
}

func TestFilterTogglePersists(t *testing.T) {
	m := newTestModel(t)
	loadRows(t, m, testRow())

	_, _ = m.Update(keyRune("t"))
	assert.True(t, m.vm.Filters().TodayOnly)

	saved := LoadState(m.statePath)
	assert.True(t, saved.Filters.TodayOnly)

	_, _ = m.Update(keyRune("t"))
	assert.False(t, m.vm.Filters().TodayOnly)
}

func TestThemeCyclePersists(t *testing.T) {
	m := newTestModel(t)
	before := m.themeIndex

	_, _ = m.Update(keyRune("T"))
	assert.Equal(t, (before+1)%len(themes), m.themeIndex)
	assert.Equal(t, m.themeIndex, LoadState(m.statePath).ThemeIndex)
}

func TestDateFilterRejectsUnparseable(t *testing.T) {
	m := newTestModel(t)
	loadRows(t, m, testRow())

	_, _ = m.Update(keyRune("d"))
	require.Equal(t, ModeDateFilter, m.mode)
	m.input.SetValue("xyzzy")
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, ModeDateFilter, m.mode, "stays in the modal on parse failure")
	assert.True(t, m.statusErr)
	assert.Contains(t, m.status, `Cannot parse "xyzzy"`)
}

func TestHelpClosesOnAnyKey(t *testing.T) {
	m := newTestModel(t)
	_, _ = m.Update(keyRune("?"))
	require.Equal(t, ModeHelp, m.mode)
	_, _ = m.Update(keyRune("z"))
	assert.Equal(t, ModeBrowse, m.mode)
}

func TestTimerToggle(t *testing.T) {
	m := newTestModel(t)
	row := testRow()
	require.NoError(t, m.store.UpsertMany([]types.TaskRow{row}))
	loadRows(t, m, row)

	cmd := m.toggleTimer()
	require.NotNil(t, cmd)
	assert.Contains(t, m.status, "Timer started")

	active, err := m.store.ActiveTaskURLs()
	require.NoError(t, err)
	assert.True(t, active[testTaskURL])

	m.active = active
	cmd = m.toggleTimer()
	require.NotNil(t, cmd)
	assert.Contains(t, m.status, "Timer stopped")
}

func TestEditorRefusesFieldsWithoutOptions(t *testing.T) {
	m := newTestModel(t)
	m.enterTaskEditor(testRow()) // no StatusOptions cached

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, stepList, m.editor.step)
	assert.Equal(t, "No status options on this board", m.editor.message)
}

func TestEditorDateParseError(t *testing.T) {
	m := newTestModel(t)
	m.enterTaskEditor(testRow())

	_, _ = m.Update(keyRune("j"))
	_, _ = m.Update(keyRune("j"))
	require.Equal(t, fieldStartDate, m.editor.cursor)
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, stepDateInput, m.editor.step)

	m.input.SetValue("xyzzy")
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, stepDateInput, m.editor.step)
	assert.Contains(t, m.editor.message, `Cannot parse "xyzzy"`)
}

func TestEditorEscReturnsToBrowse(t *testing.T) {
	m := newTestModel(t)
	m.enterTaskEditor(testRow())

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeBrowse, m.mode)
}

func seedSession(t *testing.T, m *Model) (start, end time.Time) {
	t.Helper()
	start = time.Date(2026, 8, 26, 9, 0, 0, 0, time.Local)
	end = start.Add(time.Hour)
	_, err := m.store.StartSession(testTaskURL, "Roadmap", nil, start.UTC())
	require.NoError(t, err)
	require.NoError(t, m.store.StopSession(testTaskURL, end.UTC()))
	return start, end
}

func enterSessions(t *testing.T, m *Model) {
	t.Helper()
	cmd := m.enterSessionEditor(testRow())
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())
	require.NotEmpty(t, m.sessions.sessions)
}

func TestSessionEditorRejectsInvalidTimestamps(t *testing.T) {
	m := newTestModel(t)
	seedSession(t, m)
	enterSessions(t, m)

	_, _ = m.Update(keyRune("s"))
	require.Equal(t, 1, m.sessions.editing)
	m.input.SetValue("xyzzy")
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "Invalid start timestamp", m.sessions.message)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	_, _ = m.Update(keyRune("e"))
	require.Equal(t, 2, m.sessions.editing)
	m.input.SetValue("xyzzy")
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "Invalid end timestamp", m.sessions.message)
}

func TestSessionEditorEndBeforeStart(t *testing.T) {
	m := newTestModel(t)
	start, end := seedSession(t, m)
	enterSessions(t, m)

	_, _ = m.Update(keyRune("e"))
	m.input.SetValue(start.Add(-30 * time.Minute).Format("2006-01-02 15:04"))
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "End must be after start", m.sessions.message)

	// The stored interval is untouched.
	sessions, err := m.store.SessionsForTask(testTaskURL)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].EndedAt)
	assert.True(t, sessions[0].EndedAt.Equal(end.UTC()))
}

func TestSessionEditorEditAndDelete(t *testing.T) {
	m := newTestModel(t)
	start, _ := seedSession(t, m)
	enterSessions(t, m)

	_, _ = m.Update(keyRune("e"))
	m.input.SetValue(start.Add(2 * time.Hour).Format("2006-01-02 15:04"))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "Session updated", m.sessions.message)
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())

	sessions, err := m.store.SessionsForTask(testTaskURL)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].EndedAt.Equal(start.Add(2*time.Hour).UTC()))

	_, cmd = m.Update(keyRune("d"))
	require.NotNil(t, cmd)
	_, _ = m.Update(cmd())
	assert.Empty(t, m.sessions.sessions)
}

func TestReportKeys(t *testing.T) {
	m := newTestModel(t)
	loadRows(t, m, testRow())

	_, _ = m.Update(keyRune("R"))
	require.Equal(t, ModeReport, m.mode)

	_, _ = m.Update(keyRune("w"))
	assert.Equal(t, analytics.Week, m.report.granularity)
	_, _ = m.Update(keyRune("3"))
	assert.Equal(t, 30, m.report.sinceDays)
	_, _ = m.Update(keyRune("p"))
	assert.True(t, m.report.projectOnly)

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ModeBrowse, m.mode)
}

func TestCycleProjectFilter(t *testing.T) {
	m := newTestModel(t)
	other := testRow()
	other.ProjectTitle = "Backlog"
	other.ProjectNumber = 2
	other.Title = "Another task"
	other.URL = "https://github.com/acme/app/issues/2"
	loadRows(t, m, testRow(), other)

	_, _ = m.Update(keyRune("p"))
	assert.Equal(t, "Backlog", m.vm.Filters().Project)
	_, _ = m.Update(keyRune("p"))
	assert.Equal(t, "Roadmap", m.vm.Filters().Project)
	_, _ = m.Update(keyRune("p"))
	assert.Equal(t, "", m.vm.Filters().Project)
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name        string
		done, total int
		want        string
	}{
		{"half", 2, 4, "[############------------] 50% scanning"},
		{"zero", 0, 4, "[------------------------] 0% scanning"},
		{"full", 4, 4, "[########################] 100% scanning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderProgressBar(tt.done, tt.total, "scanning"))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", formatDuration(45))
	assert.Equal(t, "5m", formatDuration(300))
	assert.Equal(t, "2h05m", formatDuration(2*3600+5*60))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "very long…", truncate("very long title here", 10))
}

func TestViewBrowseSmoke(t *testing.T) {
	m := newTestModel(t)
	m.width, m.height = 100, 30
	loadRows(t, m, testRow())

	out := m.View()
	assert.Contains(t, out, "Fix parser crash")
	assert.Contains(t, out, "In Progress")
}

func TestSyncDoneMessages(t *testing.T) {
	m := newTestModel(t)
	m.syncing = true

	_, _ = m.Update(syncDoneMsg{result: &types.FetchResult{Message: "Synced 4 rows from 2 projects"}})
	assert.False(t, m.syncing)
	assert.False(t, m.statusErr)
	assert.Equal(t, "Synced 4 rows from 2 projects", m.status)

	m.syncing = true
	_, _ = m.Update(syncDoneMsg{result: &types.FetchResult{Partial: true, Message: "Rate limited; partial results"}})
	assert.True(t, m.statusErr)
}
