// Package command is the ":" command palette.
package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-notifier/internal/theme"
)

// Known commands, offered as completions.
const (
	CheckAll    = "check all"
	Check       = "check"
	Enable      = "enable"
	Disable     = "disable"
	Add         = "add"
	Edit        = "edit"
	Remove      = "remove"
	ResetAlerts = "reset alerts"
	TestAlerts  = "test alerts"
	History     = "history"
	Quit        = "quit"
)

var commands = []string{CheckAll, Check, Enable, Disable, Add, Edit, Remove, ResetAlerts, TestAlerts, History, Quit}

// CommandMsg is emitted when the user executes a command.
type CommandMsg string

// CancelMsg is emitted when the user closes the palette.
type CancelMsg struct{}

// Model is the command palette view.
type Model struct {
	input textinput.Model
	width int
}

// New creates a new command palette model.
func New(width int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(commands)
	ti.Width = width - 6

	return Model{input: ti, width: width}
}

// Parse normalizes typed input. Unambiguous prefixes of a known command
// expand to it.
func Parse(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if s == "" {
		return ""
	}
	var match string
	for _, c := range commands {
		if c == s {
			return c
		}
		if strings.HasPrefix(c, s) {
			if match != "" {
				return s
			}
			match = c
		}
	}
	if match != "" {
		return match
	}
	return s
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			cmd := Parse(m.input.Value())
			m.input.Reset()
			if cmd == "" {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, func() tea.Msg { return CommandMsg(cmd) }

		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the palette as a one-line bar.
func (m Model) View() string {
	return lipgloss.NewStyle().
		Foreground(theme.ColorWhite).
		Padding(0, 1).
		Width(m.width).
		Render(m.input.View())
}

// SetSize updates the palette width.
func (m *Model) SetSize(width int) {
	m.width = width
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
