// Package ui drives the interactive terminal workspace: a Bubbletea model
// dispatching hotkeys across a finite set of modal states (browse, search,
// date-filter, detail, help, add, task-editor, session-editor, report).
//
// All database access happens on the update loop; background work (sync,
// remote writes) reports back through the edit coordinator's event channel.
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/trackdeck/trackdeck/internal/analytics"
	"github.com/trackdeck/trackdeck/internal/config"
	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/edit"
	"github.com/trackdeck/trackdeck/internal/store"
	enginepkg "github.com/trackdeck/trackdeck/internal/sync"
	"github.com/trackdeck/trackdeck/internal/timeparsing"
	"github.com/trackdeck/trackdeck/internal/types"
	"github.com/trackdeck/trackdeck/internal/view"
)

const (
	tickInterval  = time.Second
	maxReportDays = 90
)

// Mode is the current modal state.
type Mode int

const (
	ModeBrowse Mode = iota
	ModeSearch
	ModeDateFilter
	ModeDetail
	ModeHelp
	ModeAdd
	ModeTaskEditor
	ModeSessionEditor
	ModeReport
)

// progressState is the last sync progress tick.
type progressState struct {
	done    int
	total   int
	message string
}

// Model is the Bubbletea model for the workspace.
type Model struct {
	store  *store.Store
	engine *enginepkg.Engine
	coord  *edit.Coordinator
	cfg    *config.Config

	statePath string
	vm        *view.Model

	durations map[string]types.Durations
	active    map[string]bool

	mode       Mode
	keys       KeyMap
	help       help.Model
	styles     Styles
	themeIndex int

	width, height int
	status        string
	statusErr     bool
	progress      progressState
	syncing       bool

	input          textinput.Model
	textArea       textarea.Model
	detailViewport viewport.Model

	editor   editorState
	sessions sessionEditorState
	report   reportState

	projectCycle int
	now          func() time.Time
}

// New assembles the model. The state file restores the theme and filters.
func New(st *store.Store, engine *enginepkg.Engine, coord *edit.Coordinator, cfg *config.Config, statePath string) *Model {
	state := LoadState(statePath)

	ti := textinput.New()
	ti.CharLimit = 200

	ta := textarea.New()
	ta.SetHeight(4)
	ta.CharLimit = 4000

	vm := view.New()
	vm.SetFilters(state.Filters)

	m := &Model{
		store:      st,
		engine:     engine,
		coord:      coord,
		cfg:        cfg,
		statePath:  statePath,
		vm:         vm,
		durations:  map[string]types.Durations{},
		active:     map[string]bool{},
		keys:       DefaultKeyMap(),
		help:       help.New(),
		themeIndex: state.ThemeIndex,
		styles:     newStyles(themes[state.ThemeIndex]),

		input:          ti,
		textArea:       ta,
		detailViewport: viewport.New(0, 0),

		report: newReportState(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	return m
}

func (m *Model) today() string {
	return time.Now().Local().Format("2006-01-02")
}

// Init loads rows, kicks off a sync, and starts the ticker and coordinator
// event pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadRowsCmd(),
		m.refreshCmd(),
		m.tickCmd(),
		m.waitEventCmd(),
		tea.SetWindowTitle("td"),
	)
}

// Messages.

type rowsLoadedMsg struct {
	rows      []types.TaskRow
	durations map[string]types.Durations
	active    map[string]bool
	err       error
}

type syncDoneMsg struct {
	result *types.FetchResult
	err    error
}

type coordEventMsg struct {
	ev edit.Event
	ok bool
}

type choicesMsg struct {
	url     string
	choices edit.ChoiceSet
	err     error
}

type sessionsLoadedMsg struct {
	sessions []types.WorkSession
	err      error
}

type tickMsg time.Time

// Commands.

func (m *Model) loadRowsCmd() tea.Cmd {
	return func() tea.Msg {
		rows, err := m.store.Load(false, "", m.today())
		if err != nil {
			return rowsLoadedMsg{err: err}
		}
		urls := make([]string, 0, len(rows))
		seen := map[string]bool{}
		for i := range rows {
			if u := rows[i].URL; u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
		durations, err := m.store.TaskDurationSnapshot(urls, m.now())
		if err != nil {
			return rowsLoadedMsg{err: err}
		}
		active, err := m.store.ActiveTaskURLs()
		if err != nil {
			return rowsLoadedMsg{err: err}
		}
		return rowsLoadedMsg{rows: rows, durations: durations, active: active}
	}
}

// refreshCmd starts a sync unless one is already running.
func (m *Model) refreshCmd() tea.Cmd {
	if m.syncing {
		return nil
	}
	m.syncing = true
	engine, cfg, coord, st := m.engine, m.cfg, m.coord, m.store
	return func() tea.Msg {
		result, err := engine.Fetch(context.Background(), cfg, false, st, func(done, total int, status string) {
			coord.Emit(edit.ProgressTick{Done: done, Total: total, Message: status})
		})
		return syncDoneMsg{result: result, err: err}
	}
}

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// waitEventCmd blocks on the coordinator channel and feeds the loop.
func (m *Model) waitEventCmd() tea.Cmd {
	ch := m.coord.Events()
	return func() tea.Msg {
		ev, ok := <-ch
		return coordEventMsg{ev: ev, ok: ok}
	}
}

func (m *Model) setStatus(msg string)    { m.status, m.statusErr = msg, false }
func (m *Model) setErrStatus(msg string) { m.status, m.statusErr = msg, true }

// commitRows installs a fresh row snapshot into the view-model.
func (m *Model) commitRows(msg rowsLoadedMsg) {
	if msg.err != nil {
		m.setErrStatus(fmt.Sprintf("Load failed: %v", msg.err))
		return
	}
	m.vm.SetRows(msg.rows, m.today(), m.now())
	m.durations = msg.durations
	m.active = msg.active
}

// Update is the reducer.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.detailViewport.Width = msg.Width - 4
		m.detailViewport.Height = msg.Height - 6
		m.input.Width = msg.Width - 10
		m.textArea.SetWidth(msg.Width - 10)
		return m, nil

	case rowsLoadedMsg:
		m.commitRows(msg)
		return m, nil

	case syncDoneMsg:
		m.syncing = false
		m.progress = progressState{}
		if msg.err != nil {
			m.setErrStatus(fmt.Sprintf("Sync failed: %v", msg.err))
			return m, m.loadRowsCmd()
		}
		if msg.result.Partial {
			m.setErrStatus(msg.result.Message)
		} else {
			m.setStatus(msg.result.Message)
		}
		return m, m.loadRowsCmd()

	case coordEventMsg:
		if !msg.ok {
			return m, nil
		}
		var cmd tea.Cmd
		switch ev := msg.ev.(type) {
		case edit.RowChanged:
			cmd = m.loadRowsCmd()
		case edit.StatusLine:
			m.status, m.statusErr = ev.Message, ev.IsError
		case edit.ProgressTick:
			m.progress = progressState{done: ev.Done, total: ev.Total, message: ev.Message}
		}
		return m, tea.Batch(cmd, m.waitEventCmd())

	case choicesMsg:
		m.handleChoices(msg)
		return m, nil

	case sessionsLoadedMsg:
		m.handleSessionsLoaded(msg)
		return m, nil

	case tickMsg:
		// Refresh running-timer durations without a full reload.
		if len(m.active) > 0 {
			return m, tea.Batch(m.loadRowsCmd(), m.tickCmd())
		}
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

// handleKey dispatches on the current modal state.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case ModeBrowse:
		return m.updateBrowse(msg)
	case ModeSearch:
		return m.updateSearch(msg)
	case ModeDateFilter:
		return m.updateDateFilter(msg)
	case ModeDetail:
		return m.updateDetail(msg)
	case ModeHelp:
		m.mode = ModeBrowse
		return m, nil
	case ModeAdd:
		return m.updateAdd(msg)
	case ModeTaskEditor:
		return m.updateTaskEditor(msg)
	case ModeSessionEditor:
		return m.updateSessionEditor(msg)
	case ModeReport:
		return m.updateReport(msg)
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.persistState()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, m.keys.Up):
		m.vm.MoveSelection(-1)
	case key.Matches(msg, m.keys.Down):
		m.vm.MoveSelection(1)
	case key.Matches(msg, m.keys.Top):
		m.vm.SelectFirst()
	case key.Matches(msg, m.keys.Bottom):
		m.vm.SelectLast()

	case key.Matches(msg, m.keys.Detail):
		if row, ok := m.vm.Selected(); ok && !row.Placeholder() {
			m.enterDetail(row)
		}

	case key.Matches(msg, m.keys.Edit):
		if row, ok := m.vm.Selected(); ok && !row.Placeholder() {
			m.enterTaskEditor(row)
		}

	case key.Matches(msg, m.keys.Timer):
		return m, m.toggleTimer()

	case key.Matches(msg, m.keys.Sessions):
		if row, ok := m.vm.Selected(); ok && row.URL != "" {
			return m, m.enterSessionEditor(row)
		}

	case key.Matches(msg, m.keys.Refresh):
		if m.syncing {
			m.setStatus("Sync already running")
			return m, nil
		}
		m.setStatus("Refreshing…")
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Search):
		m.mode = ModeSearch
		m.input.Placeholder = "search title, project, label…"
		m.input.SetValue(m.vm.Filters().Search)
		m.input.Focus()

	case key.Matches(msg, m.keys.DateMax):
		m.mode = ModeDateFilter
		m.input.Placeholder = "show up to… (2026-09-01, +1w, \"next friday\")"
		m.input.SetValue("")
		m.input.Focus()

	case key.Matches(msg, m.keys.Add):
		m.mode = ModeAdd
		m.input.Placeholder = "draft title"
		m.input.SetValue("")
		m.input.Focus()

	case key.Matches(msg, m.keys.Report):
		sessions, err := m.store.SessionsSince(maxReportDays, m.now())
		if err != nil {
			m.setErrStatus(fmt.Sprintf("Report load failed: %v", err))
			return m, nil
		}
		m.report.sessions = sessions
		m.mode = ModeReport

	case key.Matches(msg, m.keys.Theme):
		m.themeIndex = (m.themeIndex + 1) % len(themes)
		m.styles = newStyles(themes[m.themeIndex])
		m.setStatus(fmt.Sprintf("Theme: %s", themes[m.themeIndex].Name))
		m.persistState()

	case key.Matches(msg, m.keys.Today):
		m.toggleFilter(func(f *view.Filters) { f.TodayOnly = !f.TodayOnly })
	case key.Matches(msg, m.keys.NoDate):
		m.toggleFilter(func(f *view.Filters) { f.NoDate = !f.NoDate })
	case key.Matches(msg, m.keys.HideDone):
		m.toggleFilter(func(f *view.Filters) { f.HideDone = !f.HideDone })
	case key.Matches(msg, m.keys.Iteration):
		m.toggleFilter(func(f *view.Filters) { f.IterationMode = !f.IterationMode })
	case key.Matches(msg, m.keys.Created):
		m.toggleFilter(func(f *view.Filters) { f.IncludeCreated = !f.IncludeCreated })
	case key.Matches(msg, m.keys.Stale):
		m.toggleFilter(func(f *view.Filters) { f.ShowStale = !f.ShowStale })

	case key.Matches(msg, m.keys.Project):
		m.cycleProjectFilter()
	}
	return m, nil
}

func (m *Model) toggleFilter(apply func(*view.Filters)) {
	f := m.vm.Filters()
	apply(&f)
	m.vm.SetFilters(f)
	m.persistState()
}

// cycleProjectFilter rotates through no-filter and each known project.
func (m *Model) cycleProjectFilter() {
	titles := m.vm.ProjectTitles()
	if len(titles) == 0 {
		return
	}
	m.projectCycle = (m.projectCycle + 1) % (len(titles) + 1)
	f := m.vm.Filters()
	if m.projectCycle == 0 {
		f.Project = ""
		m.setStatus("Project filter: all")
	} else {
		f.Project = titles[m.projectCycle-1]
		m.setStatus(fmt.Sprintf("Project filter: %s", f.Project))
	}
	m.vm.SetFilters(f)
}

// toggleTimer starts or stops a work session for the selected row.
func (m *Model) toggleTimer() tea.Cmd {
	row, ok := m.vm.Selected()
	if !ok || row.URL == "" {
		m.setErrStatus("No timeable task selected")
		return nil
	}
	if m.active[row.URL] {
		if err := m.store.StopSession(row.URL, m.now()); err != nil {
			m.setErrStatus(fmt.Sprintf("Timer stop failed: %v", err))
			return nil
		}
		m.setStatus(fmt.Sprintf("Timer stopped: %s", row.Title))
	} else {
		if _, err := m.store.StartSession(row.URL, row.ProjectTitle, row.Labels, m.now()); err != nil {
			m.setErrStatus(fmt.Sprintf("Timer start failed: %v", err))
			return nil
		}
		m.setStatus(fmt.Sprintf("Timer started: %s", row.Title))
	}
	return m.loadRowsCmd()
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		f := m.vm.Filters()
		f.Search = m.input.Value()
		m.vm.SetFilters(f)
		m.mode = ModeBrowse
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateDateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		raw := m.input.Value()
		f := m.vm.Filters()
		if raw == "" {
			f.DateMax = ""
			m.setStatus("Date filter cleared")
		} else {
			iso, err := timeparsing.ParseDate(raw, time.Now().Local(), time.Local)
			if err != nil {
				m.setErrStatus(fmt.Sprintf("Cannot parse %q", raw))
				return m, nil
			}
			f.DateMax = iso
			m.setStatus(fmt.Sprintf("Showing up to %s", iso))
		}
		m.vm.SetFilters(f)
		m.mode = ModeBrowse
		m.input.Blur()
		m.persistState()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = ModeBrowse
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		title := m.input.Value()
		projectID := m.targetProjectID()
		m.mode = ModeBrowse
		m.input.Blur()
		if err := m.coord.CreateDraft(projectID, title, ""); err != nil {
			m.setErrStatus(err.Error())
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Creating draft %q…", title))
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// targetProjectID picks the project for a new draft: the selected row's
// board, else the first known board.
func (m *Model) targetProjectID() string {
	if row, ok := m.vm.Selected(); ok && row.ProjectID != "" {
		return row.ProjectID
	}
	for _, row := range m.vm.Visible() {
		if row.ProjectID != "" {
			return row.ProjectID
		}
	}
	return ""
}

func (m *Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "enter":
		m.mode = ModeBrowse
		return m, nil
	case "e":
		if row, ok := m.vm.Selected(); ok {
			m.enterTaskEditor(row)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

// persistState saves theme and filters; failures are non-fatal.
func (m *Model) persistState() {
	SaveState(m.statePath, UIState{ThemeIndex: m.themeIndex, Filters: m.vm.Filters()})
}

// Close releases UI resources and waits for in-flight writes.
func (m *Model) Close() {
	m.persistState()
	m.coord.Wait()
	debug.Logf("ui: shutdown complete")
}

// reportState holds the time-report modal configuration. Sessions load once
// on entry, wide enough for the largest window; aggregation narrows them.
type reportState struct {
	granularity analytics.Granularity
	sinceDays   int
	projectOnly bool // restrict to the selected row's project
	sessions    []types.WorkSession
}

func newReportState() reportState {
	return reportState{granularity: analytics.Day, sinceDays: 14}
}

func (m *Model) updateReport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "R":
		m.mode = ModeBrowse
	case "d":
		m.report.granularity = analytics.Day
	case "w":
		m.report.granularity = analytics.Week
	case "m":
		m.report.granularity = analytics.Month
	case "1":
		m.report.sinceDays = 7
	case "2":
		m.report.sinceDays = 14
	case "3":
		m.report.sinceDays = 30
	case "4":
		m.report.sinceDays = 90
	case "p":
		m.report.projectOnly = !m.report.projectOnly
	}
	return m, nil
}
