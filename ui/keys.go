package ui

import "github.com/charmbracelet/bubbles/key"

type playerKeyMap struct {
	Toggle     key.Binding
	Mute       key.Binding
	VolumeDown key.Binding
	VolumeUp   key.Binding
	Settings   key.Binding
	Copy       key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newPlayerKeyMap() playerKeyMap {
	return playerKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "play/pause"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←", "vol -5%"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→", "vol +5%"),
		),
		Settings: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "settings"),
		),
		Copy: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "copy script"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k playerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Mute, k.VolumeDown, k.VolumeUp, k.Settings, k.Help, k.Quit}
}

func (k playerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Mute},
		{k.VolumeDown, k.VolumeUp},
		{k.Settings, k.Copy},
		{k.Help, k.Quit},
	}
}

type settingsKeyMap struct {
	Save    key.Binding
	Cancel  key.Binding
	Next    key.Binding
	Suggest key.Binding
}

func newSettingsKeyMap() settingsKeyMap {
	return settingsKeyMap{
		Save: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "save & apply"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "switch field"),
		),
		Suggest: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "next voice"),
		),
	}
}

func (k settingsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Save, k.Cancel, k.Next, k.Suggest}
}

func (k settingsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
