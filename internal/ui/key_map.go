package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the sort workflow. List
// navigation keys come from the bubbles list component itself.
type keyMap struct {
	enter   key.Binding
	yes     key.Binding
	no      key.Binding
	restart key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "pick playlist")),
		yes:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "sort it")),
		no:      key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "go back")),
		restart: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "sort another")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.enter, k.yes, k.no},
		{k.restart, k.quit},
	}
}
