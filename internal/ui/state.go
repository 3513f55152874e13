package ui

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/view"
)

// UIState is the persisted slice of UI preferences. State IO failures are
// logged and ignored; the file is not required for correctness.
type UIState struct {
	ThemeIndex int          `json:"theme_index"`
	Filters    view.Filters `json:"filters"`
}

// DefaultStatePath places the state file next to the other td dotfiles.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".td-ui.json"
	}
	return filepath.Join(home, ".td-ui.json")
}

// LoadState reads the state file, falling back to defaults on any failure.
func LoadState(path string) UIState {
	state := UIState{
		ThemeIndex: defaultThemeIndex(),
		Filters:    view.Filters{HideDone: true},
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		debug.Logf("ui: state file unreadable: %v", err)
		return UIState{ThemeIndex: defaultThemeIndex(), Filters: view.Filters{HideDone: true}}
	}
	if state.ThemeIndex < 0 || state.ThemeIndex >= len(themes) {
		state.ThemeIndex = defaultThemeIndex()
	}
	return state
}

// SaveState writes the state file; failures are logged and swallowed.
func SaveState(path string, state UIState) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		debug.Logf("ui: failed to encode state: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		debug.Logf("ui: failed to write state: %v", err)
	}
}
