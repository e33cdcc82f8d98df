// Package accounts renders the table of mail accounts and their status.
package accounts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-notifier/internal/model"
	appsync "github.com/nhle/mail-notifier/internal/sync"
	"github.com/nhle/mail-notifier/internal/theme"
)

// Row is the displayed state of one account.
type Row struct {
	ID        int
	Name      string
	Enabled   bool
	Status    model.Status
	Error     string
	Unread    int
	NewUnread bool
	Notify    string
	Alerts    string
	Tooltip   string
}

// RowsFrom snapshots the given accounts.
func RowsFrom(list []*appsync.Account) []Row {
	rows := make([]Row, 0, len(list))
	for _, a := range list {
		cfg := a.Config()
		st := a.State()

		notify := string(cfg.NotifyMode)
		if cfg.NotifyMode == model.NotifyLabels {
			notify = strings.Join(cfg.Labels, ", ")
		}

		rows = append(rows, Row{
			ID:        a.ID(),
			Name:      cfg.DisplayName(),
			Enabled:   st.Enabled,
			Status:    st.Status,
			Error:     st.Error,
			Unread:    st.Unread,
			NewUnread: st.NewUnread,
			Notify:    notify,
			Alerts:    strings.Join(cfg.Alerts.Names(), ", "),
			Tooltip:   a.Tooltip(),
		})
	}
	return rows
}

func (r Row) cells() table.Row {
	enabled := "✗"
	if r.Enabled {
		enabled = "✓"
	}
	status := r.Status.String()
	if r.Status == model.StatusError && r.Error != "" {
		status = r.Error
	}
	unread := strconv.Itoa(r.Unread)
	if r.NewUnread {
		unread += " ●"
	}
	return table.Row{enabled, r.Name, status, unread, r.Notify, r.Alerts}
}

// Model is the accounts table view.
type Model struct {
	table       table.Model
	rows        []Row
	showDetails bool
	width       int
	height      int
}

// New creates an empty accounts table.
func New(width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
		table.WithHeight(max(height-1, 3)),
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

	return Model{table: t, width: width, height: height}
}

// columns sizes the columns to the terminal width.
func columns(width int) []table.Column {
	fixed := 3 + 28 + 8
	flex := max(width-fixed-12, 30)
	return []table.Column{
		{Title: "On", Width: 3},
		{Title: "Account", Width: flex * 2 / 5},
		{Title: "Status", Width: 28},
		{Title: "Unread", Width: 8},
		{Title: "Notify", Width: flex / 5},
		{Title: "Alerts", Width: flex * 2 / 5},
	}
}

// SetRows replaces the displayed accounts, keeping the cursor on the same
// account where possible.
func (m *Model) SetRows(rows []Row) {
	selected, hadSelection := m.SelectedID()

	m.rows = rows
	cells := make([]table.Row, len(rows))
	cursor := 0
	for i, r := range rows {
		cells[i] = r.cells()
		if hadSelection && r.ID == selected {
			cursor = i
		}
	}
	m.table.SetRows(cells)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
}

// SelectedID returns the id of the highlighted account.
func (m Model) SelectedID() (int, bool) {
	r, ok := m.Selected()
	return r.ID, ok
}

// Selected returns the highlighted account.
func (m Model) Selected() (Row, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return Row{}, false
	}
	return m.rows[i], true
}

// ToggleDetails shows or hides the details panel of the selected account.
func (m *Model) ToggleDetails() {
	m.showDetails = !m.showDetails
	m.SetSize(m.width, m.height)
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles navigation messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the table, followed by the details panel when enabled.
func (m Model) View() string {
	if len(m.rows) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No accounts configured.\n\nPress a to add one.")
	}

	view := m.table.View()
	if r, ok := m.Selected(); ok && m.showDetails {
		panel := theme.PanelStyle.
			Width(max(m.width-4, 20)).
			Render(fmt.Sprintf("%s\n%s",
				theme.StatusStyle(r.Status).Render("● "+r.Status.String()),
				r.Tooltip))
		view = lipgloss.JoinVertical(lipgloss.Left, view, panel)
	}
	return view
}

// SetSize updates the table dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetColumns(columns(width))
	m.table.SetWidth(width)
	tableHeight := height - 1
	if m.showDetails {
		tableHeight = height / 2
	}
	m.table.SetHeight(max(tableHeight, 3))
}
