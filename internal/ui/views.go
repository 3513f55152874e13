package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/trackdeck/trackdeck/internal/analytics"
	"github.com/trackdeck/trackdeck/internal/types"
)

const progressBarWidth = 24

// View renders the active modal state.
func (m *Model) View() string {
	switch m.mode {
	case ModeDetail:
		return m.viewDetail()
	case ModeHelp:
		return m.viewHelp()
	case ModeTaskEditor:
		return m.viewTaskEditor()
	case ModeSessionEditor:
		return m.viewSessionEditor()
	case ModeReport:
		return m.viewReport()
	}
	// Browse plus its input overlays.
	var b strings.Builder
	b.WriteString(m.viewBrowse())
	switch m.mode {
	case ModeSearch:
		b.WriteString("\n" + m.viewInputModal("Search"))
	case ModeDateFilter:
		b.WriteString("\n" + m.viewInputModal("Show dates up to"))
	case ModeAdd:
		b.WriteString("\n" + m.viewInputModal("New draft"))
	}
	b.WriteString("\n" + m.viewStatusBar())
	return b.String()
}

func (m *Model) viewBrowse() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("td — " + m.filterSummary()))
	b.WriteString("\n")
	b.WriteString(m.styles.Header.Render(fmt.Sprintf("  %-10s %-42s %-12s %-10s %-10s %s",
		"DATE", "TITLE", "STATUS", "PRIORITY", "PROJECT", "TIME")))
	b.WriteString("\n")

	rows := m.vm.Visible()
	if len(rows) == 0 {
		b.WriteString(m.styles.Muted.Render("  nothing to show — press r to refresh, ? for help"))
		b.WriteString("\n")
		return b.String()
	}

	top, bottom := m.visibleWindow(len(rows))
	for i := top; i < bottom; i++ {
		b.WriteString(m.renderRow(&rows[i], i == m.vm.SelectedIndex()))
		b.WriteString("\n")
	}
	if bottom < len(rows) {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  … %d more", len(rows)-bottom)))
		b.WriteString("\n")
	}
	return b.String()
}

// visibleWindow clamps the row range to the terminal height, keeping the
// selection in view.
func (m *Model) visibleWindow(total int) (top, bottom int) {
	capacity := m.height - 6
	if capacity < 5 || capacity >= total {
		return 0, total
	}
	sel := m.vm.SelectedIndex()
	top = sel - capacity/2
	if top < 0 {
		top = 0
	}
	bottom = top + capacity
	if bottom > total {
		bottom = total
		top = bottom - capacity
	}
	return top, bottom
}

func (m *Model) renderRow(row *types.TaskRow, selected bool) string {
	date := row.StartDate
	if m.vm.Filters().IterationMode && row.IterationStart != "" {
		date = row.IterationStart
	}
	if date == "" {
		date = "—"
	}

	title := row.Title
	if row.Placeholder() {
		title = m.styles.Muted.Render(row.Title)
	}

	status := row.Status
	if row.StatusDirty || row.PriorityDirty {
		status = m.styles.Dirty.Render(status + " ⋯")
	}

	timer := ""
	if d, ok := m.durations[row.URL]; ok && d.Total > 0 {
		timer = formatDuration(d.Total)
	}
	if m.active[row.URL] {
		timer = m.styles.Timer.Render("▶ " + timer)
	}

	line := fmt.Sprintf("%-10s %-42s %-12s %-10s %-10s %s",
		date, truncate(title, 42), truncate(status, 12),
		truncate(row.Priority, 10), truncate(row.ProjectTitle, 10), timer)

	if selected {
		return m.styles.Cursor.Render("▌ " + line)
	}
	style := m.styles.Normal
	if row.IsDone {
		style = m.styles.Done
	}
	return "  " + style.Render(line)
}

func (m *Model) filterSummary() string {
	f := m.vm.Filters()
	var parts []string
	if f.Project != "" {
		parts = append(parts, f.Project)
	}
	if f.TodayOnly {
		parts = append(parts, "today")
	}
	if f.NoDate {
		parts = append(parts, "no-date")
	}
	if f.DateMax != "" {
		parts = append(parts, "≤"+f.DateMax)
	}
	if f.IterationMode {
		parts = append(parts, "iterations")
	}
	if f.IncludeCreated {
		parts = append(parts, "+created")
	}
	if f.Search != "" {
		parts = append(parts, fmt.Sprintf("/%s/", f.Search))
	}
	if len(parts) == 0 {
		return "all tasks"
	}
	return strings.Join(parts, " · ")
}

// viewStatusBar renders the one-line footer: sync progress when a sync is
// running, else the last status message.
func (m *Model) viewStatusBar() string {
	if m.syncing && m.progress.total > 0 {
		return m.styles.Status.Render(renderProgressBar(m.progress.done, m.progress.total, m.progress.message))
	}
	if m.status == "" {
		return m.styles.Help.Render("? help · / search · e edit · s timer · r refresh · q quit")
	}
	if m.statusErr {
		return m.styles.Error.Render(m.status)
	}
	return m.styles.Status.Render(m.status)
}

// renderProgressBar draws an ASCII bar: [####----] 50% message.
func renderProgressBar(done, total int, message string) string {
	if total <= 0 {
		total = 1
	}
	filled := done * progressBarWidth / total
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	pct := done * 100 / total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)
	return fmt.Sprintf("[%s] %d%% %s", bar, pct, message)
}

func (m *Model) viewInputModal(label string) string {
	return m.styles.Modal.Render(m.styles.InputLabel.Render(label) + "\n" + m.input.View())
}

func (m *Model) viewDetail() string {
	footer := m.styles.Help.Render("esc back · e edit · ↑/↓ scroll")
	return m.detailViewport.View() + "\n" + footer
}

// renderDetail builds the markdown body for a row and renders it through
// glamour.
func (m *Model) renderDetail(row types.TaskRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", row.Title)
	if row.URL != "" {
		fmt.Fprintf(&b, "%s\n\n", row.URL)
	}
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Project | %s #%d |\n", row.ProjectTitle, row.ProjectNumber)
	if row.Status != "" {
		fmt.Fprintf(&b, "| Status | %s |\n", row.Status)
	}
	if row.Priority != "" {
		fmt.Fprintf(&b, "| Priority | %s |\n", row.Priority)
	}
	if row.StartDate != "" {
		fmt.Fprintf(&b, "| %s | %s |\n", row.StartField, row.StartDate)
	}
	if row.EndDate != "" {
		fmt.Fprintf(&b, "| %s | %s |\n", row.EndField, row.EndDate)
	}
	if row.FocusDate != "" {
		fmt.Fprintf(&b, "| %s | %s |\n", row.FocusField, row.FocusDate)
	}
	if row.IterationTitle != "" {
		fmt.Fprintf(&b, "| Iteration | %s |\n", row.IterationTitle)
	}
	if len(row.AssigneeLogins) > 0 {
		fmt.Fprintf(&b, "| Assignees | %s |\n", strings.Join(row.AssigneeLogins, ", "))
	}
	if len(row.Labels) > 0 {
		fmt.Fprintf(&b, "| Labels | %s |\n", strings.Join(row.Labels, ", "))
	}
	if d, ok := m.durations[row.URL]; ok && d.Total > 0 {
		fmt.Fprintf(&b, "| Time tracked | %s |\n", formatDuration(d.Total))
	}

	width := m.width - 4
	if width < 20 {
		width = 76
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return b.String()
	}
	out, err := r.Render(b.String())
	if err != nil {
		return b.String()
	}
	return out
}

func (m *Model) viewHelp() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Keys"))
	b.WriteString("\n")
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(m.styles.Help.Render("press any key to close"))
	return b.String()
}

func (m *Model) viewTaskEditor() string {
	e := &m.editor
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Edit: " + truncate(e.row.Title, 60)))
	b.WriteString("\n")

	switch e.step {
	case stepList:
		for f := editorField(0); f < fieldCount; f++ {
			marker := "  "
			style := m.styles.Normal
			if f == e.cursor {
				marker = "▌ "
				style = m.styles.Cursor
			}
			b.WriteString(style.Render(fmt.Sprintf("%s%-11s %s", marker, f.label(), m.editorFieldValue(f))))
			b.WriteString("\n")
		}
		b.WriteString("\n" + m.styles.Help.Render("enter edit · esc back"))

	case stepStatusSelect, stepPrioritySelect, stepIterationSelect:
		for i, opt := range e.options {
			if i == e.optIndex {
				b.WriteString(m.styles.Cursor.Render("▌ " + opt.Name))
			} else {
				b.WriteString("  " + m.styles.Normal.Render(opt.Name))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n" + m.styles.Help.Render("enter apply · esc back"))

	case stepDateInput:
		b.WriteString(m.viewInputModal(e.cursor.label()))

	case stepLabelsInput, stepAssigneesInput:
		b.WriteString(m.viewInputModal(e.cursor.label()))
		b.WriteString("\n")
		if e.loadingChoices {
			b.WriteString(m.styles.Muted.Render("loading choices…"))
		} else if e.choicesLoaded {
			b.WriteString(m.styles.Muted.Render("available: " + m.editorChoiceHint()))
		}

	case stepCommentInput:
		b.WriteString(m.styles.InputLabel.Render("Comment") + "\n")
		b.WriteString(m.textArea.View())
		b.WriteString("\n" + m.styles.Help.Render("ctrl+d post · esc back"))
	}

	if e.message != "" {
		b.WriteString("\n" + m.styles.Error.Render(e.message))
	}
	return b.String()
}

func (m *Model) editorFieldValue(f editorField) string {
	row := m.editor.row
	switch f {
	case fieldStatus:
		return row.Status
	case fieldPriority:
		return row.Priority
	case fieldStartDate:
		return row.StartDate
	case fieldEndDate:
		return row.EndDate
	case fieldFocusDate:
		return row.FocusDate
	case fieldIteration:
		return row.IterationTitle
	case fieldLabels:
		return strings.Join(row.Labels, ", ")
	case fieldAssignees:
		return strings.Join(row.AssigneeLogins, ", ")
	}
	return ""
}

// editorChoiceHint lists the fetched vocabulary for the active input.
func (m *Model) editorChoiceHint() string {
	e := m.editor
	var names []string
	if e.step == stepAssigneesInput {
		for _, u := range e.choices.Assignees {
			names = append(names, u.Login)
		}
	} else {
		names = labelChoiceNames(e.choices, e.row.Labels)
	}
	const max = 12
	if len(names) > max {
		names = append(names[:max:max], "…")
	}
	return strings.Join(names, ", ")
}

func (m *Model) viewSessionEditor() string {
	s := &m.sessions
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Sessions: " + truncate(s.title, 60)))
	b.WriteString("\n")

	if len(s.sessions) == 0 {
		b.WriteString(m.styles.Muted.Render("  no sessions recorded"))
		b.WriteString("\n")
	}
	for i, sess := range s.sessions {
		start := sess.StartedAt.Local().Format("2006-01-02 15:04")
		end := "running"
		dur := time.Since(sess.StartedAt)
		if sess.EndedAt != nil {
			end = sess.EndedAt.Local().Format("2006-01-02 15:04")
			dur = sess.EndedAt.Sub(sess.StartedAt)
		}
		line := fmt.Sprintf("%s → %-16s  %s", start, end, formatDuration(int64(dur.Seconds())))
		if i == s.index {
			b.WriteString(m.styles.Cursor.Render("▌ " + line))
		} else {
			b.WriteString("  " + m.styles.Normal.Render(line))
		}
		b.WriteString("\n")
	}

	if s.editing != 0 {
		label := "Start time"
		if s.editing == 2 {
			label = "End time"
		}
		b.WriteString("\n" + m.viewInputModal(label))
	} else {
		b.WriteString("\n" + m.styles.Help.Render("s edit start · e edit end · d delete · esc back"))
	}
	if s.message != "" {
		b.WriteString("\n" + m.styles.Error.Render(s.message))
	}
	return b.String()
}

func (m *Model) viewReport() string {
	r := m.report
	now := m.now()

	filter := analytics.PeriodFilter{}
	title := "Time report"
	if r.projectOnly {
		if row, ok := m.vm.Selected(); ok && row.ProjectTitle != "" {
			filter.ProjectTitle = row.ProjectTitle
			title = "Time report — " + row.ProjectTitle
		}
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render(fmt.Sprintf("%s (%s, last %dd)", title, granularityName(r.granularity), r.sinceDays)))
	b.WriteString("\n")

	periods := analytics.AggregatePeriodTotals(r.sessions, r.granularity, r.sinceDays, filter, now)
	b.WriteString(m.styles.Header.Render("By period"))
	b.WriteString("\n")
	b.WriteString(m.renderTotals(periods, true))

	if !r.projectOnly {
		projects := analytics.AggregateProjectTotals(r.sessions, r.sinceDays, now)
		b.WriteString(m.styles.Header.Render("By project"))
		b.WriteString("\n")
		b.WriteString(m.renderTotals(projects, false))

		labels := analytics.AggregateLabelTotals(r.sessions, r.sinceDays, now)
		if len(labels) > 0 {
			b.WriteString(m.styles.Header.Render("By label"))
			b.WriteString("\n")
			b.WriteString(m.renderTotals(labels, false))
		}
	}

	b.WriteString(m.styles.Help.Render("d/w/m granularity · 1–4 window · p project only · esc back"))
	return b.String()
}

// renderTotals prints a key/duration table, sorted by key for period buckets
// and by descending duration otherwise.
func (m *Model) renderTotals(totals map[string]int64, byKey bool) string {
	if len(totals) == 0 {
		return m.styles.Muted.Render("  nothing tracked") + "\n\n"
	}
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	if byKey {
		sort.Strings(keys)
	} else {
		sort.Slice(keys, func(i, j int) bool {
			if totals[keys[i]] != totals[keys[j]] {
				return totals[keys[i]] > totals[keys[j]]
			}
			return keys[i] < keys[j]
		})
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %-20s %s\n", truncate(k, 20), formatDuration(totals[k])))
	}
	b.WriteString("\n")
	return b.String()
}

func granularityName(g analytics.Granularity) string {
	switch g {
	case analytics.Week:
		return "weekly"
	case analytics.Month:
		return "monthly"
	default:
		return "daily"
	}
}

// formatDuration renders whole seconds as 2h05m or 45m or 30s.
func formatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func truncate(s string, max int) string {
	if lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
