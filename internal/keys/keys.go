package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings of the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Mail reader
	Open     key.Binding
	NextMail key.Binding
	PrevMail key.Binding

	// Back / Quit
	Back key.Binding
	Quit key.Binding

	// Account actions
	CheckNow key.Binding
	CheckAll key.Binding
	Toggle   key.Binding
	Add      key.Binding
	Edit     key.Binding
	Remove   key.Binding
	Details  key.Binding
	History  key.Binding

	// Alerts
	ResetAlerts key.Binding

	// Command palette
	Command key.Binding

	// Help toggle
	Help key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "read mail"),
		),
		NextMail: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n/→", "next mail"),
		),
		PrevMail: key.NewBinding(
			key.WithKeys("p", "left"),
			key.WithHelp("p/←", "previous mail"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		CheckNow: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "check now"),
		),
		CheckAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "check all"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "enable/disable"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add account"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit account"),
		),
		Remove: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "remove account"),
		),
		Details: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "account details"),
		),
		History: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "mail history"),
		),
		ResetAlerts: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "reset alerts"),
		),
		Command: key.NewBinding(
			key.WithKeys(":"),
			key.WithHelp(":", "command palette"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Open, k.CheckNow, k.Toggle, k.Add,
		k.ResetAlerts, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Open, k.Back, k.Quit},
		{k.NextMail, k.PrevMail, k.Details, k.History},
		{k.CheckNow, k.CheckAll, k.Toggle, k.ResetAlerts},
		{k.Add, k.Edit, k.Remove, k.Command, k.Help},
	}
}
