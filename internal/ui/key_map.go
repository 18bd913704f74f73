package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	start  key.Binding
	back   key.Binding
	cancel key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		start:  key.NewBinding(key.WithKeys("y", "enter"), key.WithHelp("y/enter", "start import")),
		back:   key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n/esc", "abort")),
		cancel: key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "cancel run")),
		quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.start, k.back},
		{k.cancel, k.quit},
	}
}
