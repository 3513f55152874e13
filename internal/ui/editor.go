package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/trackdeck/trackdeck/internal/edit"
	"github.com/trackdeck/trackdeck/internal/store"
	"github.com/trackdeck/trackdeck/internal/timeparsing"
	"github.com/trackdeck/trackdeck/internal/types"
)

// editorStep is the task editor's sub-state.
type editorStep int

const (
	stepList editorStep = iota
	stepStatusSelect
	stepPrioritySelect
	stepIterationSelect
	stepDateInput
	stepLabelsInput
	stepAssigneesInput
	stepCommentInput
)

// editorField indexes the editor's field list.
type editorField int

const (
	fieldStatus editorField = iota
	fieldPriority
	fieldStartDate
	fieldEndDate
	fieldFocusDate
	fieldIteration
	fieldLabels
	fieldAssignees
	fieldComment
	fieldCount
)

func (f editorField) label() string {
	switch f {
	case fieldStatus:
		return "Status"
	case fieldPriority:
		return "Priority"
	case fieldStartDate:
		return "Start date"
	case fieldEndDate:
		return "End date"
	case fieldFocusDate:
		return "Focus date"
	case fieldIteration:
		return "Iteration"
	case fieldLabels:
		return "Labels"
	case fieldAssignees:
		return "Assignees"
	case fieldComment:
		return "Comment"
	}
	return ""
}

// editorState is the per-task editor. One editor exists at a time.
type editorState struct {
	row       types.TaskRow
	cursor    editorField
	step      editorStep
	dateField store.DateField

	options  []types.Option
	optIndex int

	loadingChoices bool
	choicesLoaded  bool
	choices        edit.ChoiceSet
	cancelFetch    context.CancelFunc

	message string
}

func (m *Model) enterTaskEditor(row types.TaskRow) {
	m.mode = ModeTaskEditor
	m.editor = editorState{row: row}
}

// cancelEditorFetch abandons an in-flight choices fetch, if any.
func (m *Model) cancelEditorFetch() {
	if m.editor.cancelFetch != nil {
		m.editor.cancelFetch()
		m.editor.cancelFetch = nil
	}
	m.editor.loadingChoices = false
}

// fetchChoicesCmd schedules the parallel label/assignee fetch for the
// editor's row and blocks a command goroutine on its delivery.
func (m *Model) fetchChoicesCmd(row types.TaskRow) tea.Cmd {
	ch := make(chan choicesMsg, 2)
	cancel := m.coord.FetchChoices(row, func(cs edit.ChoiceSet, err error) {
		ch <- choicesMsg{url: row.URL, choices: cs, err: err}
	})
	m.editor.cancelFetch = func() {
		cancel()
		ch <- choicesMsg{} // unblock the waiting command
	}
	return func() tea.Msg { return <-ch }
}

func (m *Model) handleChoices(msg choicesMsg) {
	if m.mode != ModeTaskEditor || msg.url == "" || msg.url != m.editor.row.URL {
		return
	}
	m.editor.loadingChoices = false
	if msg.err != nil {
		m.editor.message = fmt.Sprintf("Choices fetch failed: %v", msg.err)
		return
	}
	m.editor.choices = msg.choices
	m.editor.choicesLoaded = true
}

func (m *Model) updateTaskEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.editor.step {
	case stepList:
		return m.updateEditorList(msg)
	case stepStatusSelect, stepPrioritySelect, stepIterationSelect:
		return m.updateEditorSelect(msg)
	case stepDateInput, stepLabelsInput, stepAssigneesInput:
		return m.updateEditorInput(msg)
	case stepCommentInput:
		return m.updateEditorComment(msg)
	}
	return m, nil
}

func (m *Model) updateEditorList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.cancelEditorFetch()
		m.mode = ModeBrowse
		return m, nil
	case "up", "k":
		if m.editor.cursor > 0 {
			m.editor.cursor--
		}
		return m, nil
	case "down", "j":
		if m.editor.cursor < fieldCount-1 {
			m.editor.cursor++
		}
		return m, nil
	case "enter":
		return m.enterEditorField()
	}
	return m, nil
}

// enterEditorField transitions from the field list into the edit sub-state
// for the field under the cursor.
func (m *Model) enterEditorField() (tea.Model, tea.Cmd) {
	row := m.editor.row
	m.editor.message = ""

	switch m.editor.cursor {
	case fieldStatus:
		if len(row.StatusOptions) == 0 {
			m.editor.message = "No status options on this board"
			return m, nil
		}
		m.editor.step = stepStatusSelect
		m.editor.options = row.StatusOptions
		m.editor.optIndex = optionIndex(row.StatusOptions, row.StatusOptionID)

	case fieldPriority:
		if len(row.PriorityOptions) == 0 {
			m.editor.message = "No priority options on this board"
			return m, nil
		}
		m.editor.step = stepPrioritySelect
		m.editor.options = row.PriorityOptions
		m.editor.optIndex = optionIndex(row.PriorityOptions, row.PriorityOptionID)

	case fieldIteration:
		if len(row.IterationOptions) == 0 {
			m.editor.message = "No iterations on this board"
			return m, nil
		}
		m.editor.step = stepIterationSelect
		m.editor.options = row.IterationOptions
		m.editor.optIndex = optionIndex(row.IterationOptions, row.IterationOptionID)

	case fieldStartDate, fieldEndDate, fieldFocusDate:
		var current string
		switch m.editor.cursor {
		case fieldEndDate:
			m.editor.dateField, current = store.DateEnd, row.EndDate
		case fieldFocusDate:
			m.editor.dateField, current = store.DateFocus, row.FocusDate
		default:
			m.editor.dateField, current = store.DateStart, row.StartDate
		}
		m.editor.step = stepDateInput
		m.input.Placeholder = "2026-09-01, +1w, \"next friday\"; empty clears"
		m.input.SetValue(current)
		m.input.Focus()

	case fieldLabels:
		m.editor.step = stepLabelsInput
		m.input.Placeholder = "comma-separated labels"
		m.input.SetValue(strings.Join(row.Labels, ", "))
		m.input.Focus()
		if !m.editor.choicesLoaded && !m.editor.loadingChoices {
			m.editor.loadingChoices = true
			return m, m.fetchChoicesCmd(row)
		}

	case fieldAssignees:
		m.editor.step = stepAssigneesInput
		m.input.Placeholder = "comma-separated logins"
		m.input.SetValue(strings.Join(row.AssigneeLogins, ", "))
		m.input.Focus()
		if !m.editor.choicesLoaded && !m.editor.loadingChoices {
			m.editor.loadingChoices = true
			return m, m.fetchChoicesCmd(row)
		}

	case fieldComment:
		m.editor.step = stepCommentInput
		m.textArea.Placeholder = "comment body"
		m.textArea.SetValue("")
		m.textArea.Focus()
	}
	return m, nil
}

func optionIndex(options []types.Option, id string) int {
	for i, opt := range options {
		if opt.ID == id {
			return i
		}
	}
	return 0
}

func (m *Model) updateEditorSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.editor.step = stepList
		return m, nil
	case "up", "k":
		if m.editor.optIndex > 0 {
			m.editor.optIndex--
		}
		return m, nil
	case "down", "j":
		if m.editor.optIndex < len(m.editor.options)-1 {
			m.editor.optIndex++
		}
		return m, nil
	case "enter":
		opt := m.editor.options[m.editor.optIndex]
		row := m.editor.row
		var err error
		switch m.editor.step {
		case stepStatusSelect:
			err = m.coord.SetStatus(row, opt)
		case stepPrioritySelect:
			err = m.coord.SetPriority(row, opt)
		case stepIterationSelect:
			err = m.coord.SetIteration(row, opt)
		}
		m.editor.step = stepList
		if err != nil {
			m.editor.message = err.Error()
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Updating %s…", opt.Name))
		return m, nil
	}
	return m, nil
}

func (m *Model) updateEditorInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editor.step = stepList
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		return m.commitEditorInput()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) commitEditorInput() (tea.Model, tea.Cmd) {
	row := m.editor.row
	raw := m.input.Value()

	switch m.editor.step {
	case stepDateInput:
		iso := ""
		if strings.TrimSpace(raw) != "" {
			parsed, err := timeparsing.ParseDate(raw, time.Now().Local(), time.Local)
			if err != nil {
				m.editor.message = fmt.Sprintf("Cannot parse %q", raw)
				return m, nil
			}
			iso = parsed
		}
		if err := m.coord.SetDate(row, m.editor.dateField, iso); err != nil {
			m.editor.message = err.Error()
			return m, nil
		}

	case stepLabelsInput:
		if m.editor.loadingChoices {
			m.editor.message = "Labels still loading"
			return m, nil
		}
		if err := m.coord.SetLabels(row, splitCommaList(raw)); err != nil {
			m.editor.message = err.Error()
			return m, nil
		}

	case stepAssigneesInput:
		if m.editor.loadingChoices {
			m.editor.message = "Assignees still loading"
			return m, nil
		}
		if err := m.coord.SetAssignees(row, splitCommaList(raw)); err != nil {
			m.editor.message = err.Error()
			return m, nil
		}
	}

	m.editor.step = stepList
	m.input.Blur()
	m.setStatus("Updating…")
	return m, nil
}

func (m *Model) updateEditorComment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editor.step = stepList
		m.textArea.Blur()
		return m, nil
	case tea.KeyCtrlD, tea.KeyCtrlS:
		if err := m.coord.AddComment(m.editor.row, m.textArea.Value()); err != nil {
			m.editor.message = err.Error()
			return m, nil
		}
		m.editor.step = stepList
		m.textArea.Blur()
		m.setStatus("Posting comment…")
		return m, nil
	}
	var cmd tea.Cmd
	m.textArea, cmd = m.textArea.Update(msg)
	return m, cmd
}

func splitCommaList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// labelChoiceNames merges the repo vocabulary with labels already on the
// task so unknown labels stay selectable.
func labelChoiceNames(choices edit.ChoiceSet, current []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range choices.Labels {
		if !seen[strings.ToLower(l.Name)] {
			seen[strings.ToLower(l.Name)] = true
			out = append(out, l.Name)
		}
	}
	for _, l := range current {
		if !seen[strings.ToLower(l)] {
			seen[strings.ToLower(l)] = true
			out = append(out, l)
		}
	}
	return out
}

// sessionEditorState is the work-session editor for one task.
type sessionEditorState struct {
	url      string
	title    string
	sessions []types.WorkSession
	index    int
	editing  int // 0 list, 1 start, 2 end
	message  string
}

func (m *Model) enterSessionEditor(row types.TaskRow) tea.Cmd {
	m.mode = ModeSessionEditor
	m.sessions = sessionEditorState{url: row.URL, title: row.Title}
	return m.loadSessionsCmd(row.URL)
}

func (m *Model) loadSessionsCmd(url string) tea.Cmd {
	st := m.store
	return func() tea.Msg {
		sessions, err := st.SessionsForTask(url)
		return sessionsLoadedMsg{sessions: sessions, err: err}
	}
}

func (m *Model) handleSessionsLoaded(msg sessionsLoadedMsg) {
	if m.mode != ModeSessionEditor {
		return
	}
	if msg.err != nil {
		m.sessions.message = fmt.Sprintf("Load failed: %v", msg.err)
		return
	}
	m.sessions.sessions = msg.sessions
	if m.sessions.index >= len(msg.sessions) {
		m.sessions.index = 0
	}
}

func (m *Model) updateSessionEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := &m.sessions

	if s.editing != 0 {
		switch msg.Type {
		case tea.KeyEsc:
			s.editing = 0
			m.input.Blur()
			return m, nil
		case tea.KeyEnter:
			return m.commitSessionEdit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "esc", "q":
		m.mode = ModeBrowse
		return m, m.loadRowsCmd()
	case "up", "k":
		if s.index > 0 {
			s.index--
		}
	case "down", "j":
		if s.index < len(s.sessions)-1 {
			s.index++
		}
	case "s":
		if sess, ok := m.selectedSession(); ok {
			s.editing = 1
			m.input.Placeholder = "start time"
			m.input.SetValue(sess.StartedAt.Local().Format("2006-01-02 15:04"))
			m.input.Focus()
		}
	case "e":
		if sess, ok := m.selectedSession(); ok {
			s.editing = 2
			m.input.Placeholder = "end time (empty keeps current)"
			value := ""
			if sess.EndedAt != nil {
				value = sess.EndedAt.Local().Format("2006-01-02 15:04")
			}
			m.input.SetValue(value)
			m.input.Focus()
		}
	case "d":
		if sess, ok := m.selectedSession(); ok {
			if err := m.store.DeleteSession(sess.ID); err != nil {
				s.message = fmt.Sprintf("Delete failed: %v", err)
				return m, nil
			}
			s.message = "Session deleted"
			return m, m.loadSessionsCmd(s.url)
		}
	}
	return m, nil
}

func (m *Model) selectedSession() (types.WorkSession, bool) {
	s := m.sessions
	if s.index < 0 || s.index >= len(s.sessions) {
		return types.WorkSession{}, false
	}
	return s.sessions[s.index], true
}

func (m *Model) commitSessionEdit() (tea.Model, tea.Cmd) {
	s := &m.sessions
	sess, ok := m.selectedSession()
	if !ok {
		s.editing = 0
		m.input.Blur()
		return m, nil
	}

	raw := strings.TrimSpace(m.input.Value())
	var started, ended *time.Time

	switch s.editing {
	case 1:
		t, err := timeparsing.ParseTimestamp(raw, time.Now().Local(), time.Local)
		if err != nil {
			s.message = "Invalid start timestamp"
			return m, nil
		}
		utc := t.UTC()
		started = &utc
	case 2:
		if raw != "" {
			t, err := timeparsing.ParseTimestamp(raw, time.Now().Local(), time.Local)
			if err != nil {
				s.message = "Invalid end timestamp"
				return m, nil
			}
			utc := t.UTC()
			ended = &utc
		}
	}

	if err := m.store.UpdateSessionTimes(sess.ID, started, ended); err != nil {
		if strings.Contains(err.Error(), "after start") {
			s.message = "End must be after start"
		} else {
			s.message = fmt.Sprintf("Update failed: %v", err)
		}
		return m, nil
	}

	s.editing = 0
	s.message = "Session updated"
	m.input.Blur()
	return m, m.loadSessionsCmd(s.url)
}

// enterDetail builds and shows the detail view for a row.
func (m *Model) enterDetail(row types.TaskRow) {
	m.mode = ModeDetail
	m.detailViewport.SetContent(m.renderDetail(row))
	m.detailViewport.GotoTop()
}
