// Package mail is the reader for an account's unread mail.
package mail

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/mail-notifier/internal/keys"
	"github.com/nhle/mail-notifier/internal/model"
	appsync "github.com/nhle/mail-notifier/internal/sync"
	"github.com/nhle/mail-notifier/internal/theme"
)

// BackMsg signals the parent to return to the accounts table.
type BackMsg struct{}

// Model shows one message at a time and steps through the account's unread
// mail in arrival order.
type Model struct {
	account  string
	mails    appsync.MailView
	current  model.MailSummary
	has      bool
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates an empty reader.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{
		viewport: viewport.New(width, max(height-2, 1)),
		keys:     k,
		width:    width,
		height:   height,
	}
}

// Open shows the newest unread message of an account.
func (m *Model) Open(account string, mails appsync.MailView) {
	m.account = account
	m.mails = mails
	m.current, m.has = mails.Last()
	m.render()
}

// Refresh re-reads the mail after a check. The current message stays
// selected unless it was read elsewhere, in which case the reader moves
// to the message after it.
func (m *Model) Refresh() {
	if m.mails == nil {
		return
	}
	if m.has && m.contains(m.current) {
		m.render()
		return
	}
	if m.has {
		if next, ok := m.mails.Next(m.current); ok {
			m.current = next
			m.render()
			return
		}
	}
	m.current, m.has = m.mails.Last()
	m.render()
}

func (m Model) contains(s model.MailSummary) bool {
	return slices.ContainsFunc(m.mails.Snapshot(), func(o model.MailSummary) bool {
		return o.ID == s.ID
	})
}

// Current returns the displayed message.
func (m Model) Current() (model.MailSummary, bool) {
	return m.current, m.has
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles navigation between messages and scrolling.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(msg, m.keys.NextMail):
			if m.has {
				if next, ok := m.mails.Next(m.current); ok {
					m.current = next
					m.render()
				}
			}
			return m, nil

		case key.Matches(msg, m.keys.PrevMail):
			if m.has {
				if prev, ok := m.mails.Previous(m.current); ok {
					m.current = prev
					m.render()
				}
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// render writes the current message into the viewport.
func (m *Model) render() {
	m.viewport.SetContent(m.content())
	m.viewport.GotoTop()
}

func (m Model) content() string {
	if !m.has {
		return theme.HelpStyle.Render("No unread mail.")
	}

	s := m.current
	var sb strings.Builder
	field := func(name, value string) {
		sb.WriteString(theme.LabelStyle.Render(name + ": "))
		sb.WriteString(value)
		sb.WriteString("\n")
	}
	field("From", s.From)
	field("To", s.To)
	field("Date", fmt.Sprintf("%s (%s)", s.Date.Local().Format(time.RFC1123), humanize.Time(s.Date)))
	field("Subject", s.Subject)
	sb.WriteString("\n")
	sb.WriteString(lipgloss.NewStyle().Width(max(m.width-8, 20)).Render(s.Snippet))
	return sb.String()
}

// position returns the 1-based index of the current message and the count.
func (m Model) position() (int, int) {
	all := m.mails.Snapshot()
	i := slices.IndexFunc(all, func(o model.MailSummary) bool { return o.ID == m.current.ID })
	return i + 1, len(all)
}

// View renders the reader.
func (m Model) View() string {
	title := m.account
	if m.has {
		i, n := m.position()
		title = fmt.Sprintf("%s · message %d of %d", m.account, i, n)
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.TitleStyle.Render(title),
		m.viewport.View(),
	)
	return theme.PanelStyle.
		Width(max(m.width-4, 20)).
		Render(content)
}

// SetSize updates the reader dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = max(width-8, 10)
	m.viewport.Height = max(height-6, 1)
	if m.mails != nil {
		m.render()
	}
}
