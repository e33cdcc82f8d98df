// Package history lists the mail recorded for an account, read or not.
package history

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mail-notifier/internal/keys"
	"github.com/nhle/mail-notifier/internal/store"
	"github.com/nhle/mail-notifier/internal/theme"
)

// Limit is the number of entries shown.
const Limit = 100

// BackMsg signals the parent to return to the accounts table.
type BackMsg struct{}

// Model is a table of recently arrived mail.
type Model struct {
	account string
	entries []store.MailEntry
	table   table.Model
	keys    *keys.KeyMap
	width   int
	height  int
}

// New creates an empty history view.
func New(k *keys.KeyMap, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(max(height-3, 3)),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(theme.ColorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(theme.ColorWhite).
		Background(theme.ColorBlue).
		Bold(false)
	t.SetStyles(s)

	return Model{table: t, keys: k, width: width, height: height}
}

func columns(width int) []table.Column {
	flex := max(width-16-10, 30)
	return []table.Column{
		{Title: "Arrived", Width: 16},
		{Title: "From", Width: flex / 3},
		{Title: "Subject", Width: flex * 2 / 3},
	}
}

// Open shows entries, newest first, for the named account.
func (m *Model) Open(account string, entries []store.MailEntry) {
	m.account = account
	m.entries = entries

	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{humanize.Time(e.CreatedAt), e.Sender, e.Subject})
	}
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

// Len returns the number of entries shown.
func (m Model) Len() int { return len(m.entries) }

// Update handles messages for the history view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the history table.
func (m Model) View() string {
	title := theme.TitleStyle.Render("Recent mail · " + m.account)
	if len(m.entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title,
			theme.HelpStyle.Render("No mail recorded yet."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetColumns(columns(width))
	m.table.SetHeight(max(height-3, 3))
}
