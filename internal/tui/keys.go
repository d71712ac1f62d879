package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the panel's key bindings.
type KeyMap struct {
	Start          key.Binding
	Stop           key.Binding
	TestSpeech     key.Binding
	TestConnection key.Binding
	ResetRateLimit key.Binding
	EditStream     key.Binding
	NextVoice      key.Binding
	PrevVoice      key.Binding
	ExportUsers    key.Binding
	ClearUsers     key.Binding
	ToggleLinks    key.Binding
	ReloadLinks    key.Binding
	Up             key.Binding
	Down           key.Binding
	OpenLink       key.Binding
	CopyLink       key.Binding
	Help           key.Binding
	Quit           key.Binding
}

// NewKeyMap returns the default bindings.
func NewKeyMap() KeyMap {
	return KeyMap{
		Start:          key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:           key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		TestSpeech:     key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "test speech")),
		TestConnection: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "test connection")),
		ResetRateLimit: key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset rate limit")),
		EditStream:     key.NewBinding(key.WithKeys("u", "i"), key.WithHelp("u", "edit stream")),
		NextVoice:      key.NewBinding(key.WithKeys("v"), key.WithHelp("v/V", "cycle voice")),
		PrevVoice:      key.NewBinding(key.WithKeys("V")),
		ExportUsers:    key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export users")),
		ClearUsers:     key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "clear users")),
		ToggleLinks:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "links")),
		ReloadLinks:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload links")),
		Up:             key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:           key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		OpenLink:       key.NewBinding(key.WithKeys("enter", "o"), key.WithHelp("enter", "open link")),
		CopyLink:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy link")),
		Help:           key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.TestSpeech, k.EditStream, k.ToggleLinks, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.EditStream, k.ResetRateLimit},
		{k.TestSpeech, k.TestConnection, k.NextVoice},
		{k.ExportUsers, k.ClearUsers},
		{k.ToggleLinks, k.ReloadLinks, k.OpenLink, k.CopyLink},
		{k.Help, k.Quit},
	}
}
