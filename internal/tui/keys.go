package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the dashboard bindings.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Cancel   key.Binding
	Retry    key.Binding
	Settings key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// SettingsKeyMap holds the bindings of the settings page.
type SettingsKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Tab   key.Binding
	Edit  key.Binding
	Reset key.Binding
	Back  key.Binding
}

// DefaultKeys returns the dashboard bindings.
func DefaultKeys() KeyMap {
	return KeyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Cancel:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel run")),
		Retry:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry failed")),
		Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// DefaultSettingsKeys returns the settings page bindings.
func DefaultSettingsKeys() SettingsKeyMap {
	return SettingsKeyMap{
		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Tab:   key.NewBinding(key.WithKeys("tab", "1", "2", "3"), key.WithHelp("tab/1-3", "category")),
		Edit:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit")),
		Reset: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset")),
		Back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "save & back")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel, k.Retry, k.Settings, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Cancel, k.Retry},
		{k.Settings, k.Help, k.Quit},
	}
}

func (k SettingsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Edit, k.Reset, k.Back}
}

func (k SettingsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Tab, k.Edit, k.Reset, k.Back}}
}
