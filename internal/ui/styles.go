package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme is one named color palette. The active theme is remembered in the
// UI state file.
type Theme struct {
	Name     string
	Accent   lipgloss.Color
	Warn     lipgloss.Color
	Error    lipgloss.Color
	Success  lipgloss.Color
	Muted    lipgloss.Color
	Text     lipgloss.Color
	CursorBG lipgloss.Color
}

var themes = []Theme{
	{
		Name:     "ocean",
		Accent:   lipgloss.Color("39"),
		Warn:     lipgloss.Color("214"),
		Error:    lipgloss.Color("196"),
		Success:  lipgloss.Color("76"),
		Muted:    lipgloss.Color("242"),
		Text:     lipgloss.Color("15"),
		CursorBG: lipgloss.Color("236"),
	},
	{
		Name:     "forest",
		Accent:   lipgloss.Color("114"),
		Warn:     lipgloss.Color("178"),
		Error:    lipgloss.Color("167"),
		Success:  lipgloss.Color("76"),
		Muted:    lipgloss.Color("243"),
		Text:     lipgloss.Color("15"),
		CursorBG: lipgloss.Color("237"),
	},
	{
		Name:     "paper",
		Accent:   lipgloss.Color("25"),
		Warn:     lipgloss.Color("130"),
		Error:    lipgloss.Color("124"),
		Success:  lipgloss.Color("28"),
		Muted:    lipgloss.Color("245"),
		Text:     lipgloss.Color("0"),
		CursorBG: lipgloss.Color("253"),
	},
}

// defaultThemeIndex picks a starting palette for terminals without saved
// state.
func defaultThemeIndex() int {
	if termenv.HasDarkBackground() {
		return 0
	}
	return 2
}

// Styles is the rendered style set for the active theme.
type Styles struct {
	Title      lipgloss.Style
	Header     lipgloss.Style
	Cursor     lipgloss.Style
	Normal     lipgloss.Style
	Done       lipgloss.Style
	Dirty      lipgloss.Style
	Muted      lipgloss.Style
	Status     lipgloss.Style
	Error      lipgloss.Style
	Success    lipgloss.Style
	Timer      lipgloss.Style
	Modal      lipgloss.Style
	InputLabel lipgloss.Style
	Help       lipgloss.Style
}

func newStyles(t Theme) Styles {
	return Styles{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(t.Accent).MarginBottom(1),
		Header:     lipgloss.NewStyle().Bold(true).Foreground(t.Muted),
		Cursor:     lipgloss.NewStyle().Background(t.CursorBG).Foreground(t.Text).Bold(true),
		Normal:     lipgloss.NewStyle().Foreground(t.Text),
		Done:       lipgloss.NewStyle().Foreground(t.Muted).Strikethrough(true),
		Dirty:      lipgloss.NewStyle().Foreground(t.Warn).Italic(true),
		Muted:      lipgloss.NewStyle().Foreground(t.Muted),
		Status:     lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		Error:      lipgloss.NewStyle().Foreground(t.Error),
		Success:    lipgloss.NewStyle().Foreground(t.Success),
		Timer:      lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		Modal:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Accent).Padding(0, 1),
		InputLabel: lipgloss.NewStyle().Foreground(t.Accent).Bold(true),
		Help:       lipgloss.NewStyle().Foreground(t.Muted),
	}
}
