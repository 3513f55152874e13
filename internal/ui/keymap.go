package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the browse-mode key bindings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Detail   key.Binding
	Edit     key.Binding
	Timer    key.Binding
	Sessions key.Binding
	Refresh  key.Binding
	Search   key.Binding
	DateMax  key.Binding
	Add      key.Binding
	Report   key.Binding
	Help     key.Binding
	Quit     key.Binding
	Theme    key.Binding

	Today     key.Binding
	NoDate    key.Binding
	HideDone  key.Binding
	Iteration key.Binding
	Created   key.Binding
	Stale     key.Binding
	Project   key.Binding
}

// ShortHelp is the condensed binding list for the footer.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Search, k.Edit, k.Timer, k.Refresh, k.Quit}
}

// FullHelp is the grouped binding list for the help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.Detail},
		{k.Edit, k.Timer, k.Sessions, k.Add, k.Refresh},
		{k.Search, k.DateMax, k.Today, k.NoDate, k.HideDone},
		{k.Iteration, k.Created, k.Stale, k.Project},
		{k.Report, k.Theme, k.Help, k.Quit},
	}
}

// DefaultKeyMap returns the standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Top:      key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
		Detail:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
		Edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit task")),
		Timer:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/stop timer")),
		Sessions: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "edit sessions")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		DateMax:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "date filter")),
		Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add draft")),
		Report:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "time report")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Theme:    key.NewBinding(key.WithKeys("T"), key.WithHelp("T", "cycle theme")),

		Today:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "today only")),
		NoDate:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "no-date only")),
		HideDone:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "hide done")),
		Iteration: key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "iteration mode")),
		Created:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "include created")),
		Stale:     key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "show stale")),
		Project:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "cycle project")),
	}
}
