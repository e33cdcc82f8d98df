// Package app is the root of the terminal interface.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/credential"
	"github.com/nhle/mail-notifier/internal/keys"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/store"
	appsync "github.com/nhle/mail-notifier/internal/sync"
	"github.com/nhle/mail-notifier/internal/theme"
	"github.com/nhle/mail-notifier/internal/ui"
	"github.com/nhle/mail-notifier/internal/ui/accounts"
	"github.com/nhle/mail-notifier/internal/ui/command"
	"github.com/nhle/mail-notifier/internal/ui/history"
	"github.com/nhle/mail-notifier/internal/ui/mail"
	"github.com/nhle/mail-notifier/internal/ui/setup"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewAccounts ViewState = iota
	ViewMail
	ViewSetup
	ViewCommand
	ViewHistory
)

// HistorySource reads the log of mail that arrived for an account.
type HistorySource interface {
	RecentMail(ctx context.Context, accountID int, limit int) ([]store.MailEntry, error)
}

// Options wires the interface to the rest of the program.
type Options struct {
	Poller     *appsync.Poller
	Bridge     *Bridge
	Config     *model.AppConfig
	ConfigPath string

	// Keyring stores passwords entered in the account form. Nil disables
	// password storage; passwords then only live for this run.
	Keyring *credential.Keyring

	// History backs the recent-mail view. Nil disables the view.
	History HistorySource

	Log zerolog.Logger

	// StartSetup opens the account form on start.
	StartSetup bool
}

// startSetupMsg opens the account form after start-up.
type startSetupMsg struct{}

// Model is the root Bubble Tea model that manages view routing and layout.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	help         help.Model
	showHelp     bool

	accounts    accounts.Model
	mail        mail.Model
	mailAccount int
	setup       setup.Model
	command     command.Model
	history     history.Model

	poller  *appsync.Poller
	bridge  *Bridge
	cfg     *model.AppConfig
	cfgPath string
	creds   *credential.Keyring
	hist    HistorySource
	log     zerolog.Logger

	totals     appsync.Totals
	statusMsg  string
	statusErr  bool
	ready      bool
	startSetup bool
}

// New creates the root model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge()
		opts.Poller.Subscribe(bridge)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &model.AppConfig{}
	}

	return Model{
		currentView: ViewAccounts,
		keys:        k,
		help:        help.New(),
		accounts:    accounts.New(80, 22),
		mail:        mail.New(k, 80, 22),
		setup:       setup.New(80, 22),
		command:     command.New(80),
		history:     history.New(k, 80, 22),
		poller:      opts.Poller,
		bridge:      bridge,
		cfg:         cfg,
		cfgPath:     opts.ConfigPath,
		creds:       opts.Keyring,
		hist:        opts.History,
		log:         opts.Log.With().Str("component", "ui").Logger(),
		startSetup:  opts.StartSetup,
	}
}

// Init starts listening for poller events and loads the accounts.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.bridge.Wait(),
		func() tea.Msg { return accountsChangedMsg{} },
	}
	if m.startSetup {
		cmds = append(cmds, func() tea.Msg { return startSetupMsg{} })
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case accountsChangedMsg:
		m.refresh()
		return m, m.bridge.Wait()

	case newMailMsg:
		if a, ok := m.poller.Accounts().Get(msg.accountID); ok {
			m.setStatus(fmt.Sprintf("%d new message(s) for %s", msg.count, a.Config().DisplayName()), false)
		}
		m.refresh()
		return m, m.bridge.Wait()

	case startSetupMsg:
		cmd := m.openSetup(nil)
		return m, cmd

	case mail.BackMsg, history.BackMsg:
		m.currentView = ViewAccounts
		return m, nil

	case historyLoadedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.history.Open(msg.account, msg.entries)
		m.currentView = ViewHistory
		return m, nil

	case setup.SavedMsg:
		m.currentView = ViewAccounts
		return m, m.saveAccount(msg)

	case setup.CancelMsg:
		m.currentView = ViewAccounts
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		cmd := m.executeCommand(string(msg))
		return m, cmd

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case accountSavedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.storeAccount(msg.account)
		m.setStatus(fmt.Sprintf("Saved %s", msg.account.DisplayName()), false)
		if msg.warning != "" {
			m.setStatus(msg.warning, true)
		}
		m.refresh()
		return m, m.saveConfig()

	case accountRemovedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			return m, nil
		}
		m.dropAccount(msg.id)
		m.refresh()
		return m, m.saveConfig()

	case configSavedMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && m.currentView != ViewSetup {
			return m, tea.Quit
		}
		if m.currentView == ViewAccounts {
			if next, cmd, handled := m.handleAccountKeys(msg); handled {
				return next, cmd
			}
		}
		if (m.currentView == ViewMail || m.currentView == ViewHistory) && key.Matches(msg, m.keys.Help) {
			m.toggleHelp()
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// handleAccountKeys processes the shortcuts of the accounts table.
func (m Model) handleAccountKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	selected, hasSelection := m.accounts.SelectedID()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		m.toggleHelp()
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		cmd := m.command.Focus()
		return m, cmd, true

	case key.Matches(msg, m.keys.CheckAll):
		m.poller.CheckAll()
		m.setStatus("Checking all accounts", false)
		return m, nil, true

	case key.Matches(msg, m.keys.ResetAlerts):
		m.poller.ResetAlerts()
		m.setStatus("Alerts reset", false)
		return m, nil, true

	case key.Matches(msg, m.keys.Add):
		cmd := m.openSetup(nil)
		return m, cmd, true

	case key.Matches(msg, m.keys.Details):
		m.accounts.ToggleDetails()
		return m, nil, true
	}

	if !hasSelection {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		a, ok := m.poller.Accounts().Get(selected)
		if !ok {
			return m, nil, true
		}
		m.mailAccount = selected
		m.mail.Open(a.Config().DisplayName(), a.Mail())
		m.currentView = ViewMail
		return m, nil, true

	case key.Matches(msg, m.keys.CheckNow):
		cmd := m.checkNow(selected)
		return m, cmd, true

	case key.Matches(msg, m.keys.History):
		cmd := m.loadHistory(selected)
		return m, cmd, true

	case key.Matches(msg, m.keys.Toggle):
		cmd := m.toggle(selected)
		return m, cmd, true

	case key.Matches(msg, m.keys.Edit):
		if a, ok := m.poller.Accounts().Get(selected); ok {
			cfg := a.Config()
			cmd := m.openSetup(&cfg)
			return m, cmd, true
		}
		return m, nil, true

	case key.Matches(msg, m.keys.Remove):
		return m, m.remove(selected), true
	}
	return m, nil, false
}

// executeCommand runs a command from the palette against the selected
// account where one is needed.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	selected, hasSelection := m.accounts.SelectedID()
	needsSelection := func() bool {
		if !hasSelection {
			m.setStatus("No account selected", true)
		}
		return hasSelection
	}

	switch cmd {
	case command.CheckAll:
		m.poller.CheckAll()
		return nil
	case command.ResetAlerts:
		m.poller.ResetAlerts()
		return nil
	case command.TestAlerts:
		m.poller.TestAlerts()
		m.setStatus("Testing alerts", false)
		return nil
	case command.History:
		if needsSelection() {
			return m.loadHistory(selected)
		}
	case command.Add:
		return m.openSetup(nil)
	case command.Quit:
		return tea.Quit
	case command.Check:
		if needsSelection() {
			return m.checkNow(selected)
		}
	case command.Enable, command.Disable:
		if needsSelection() {
			if a, ok := m.poller.Accounts().Get(selected); ok && a.Enabled() != (cmd == command.Enable) {
				return m.toggle(selected)
			}
		}
	case command.Edit:
		if needsSelection() {
			if a, ok := m.poller.Accounts().Get(selected); ok {
				cfg := a.Config()
				return m.openSetup(&cfg)
			}
		}
	case command.Remove:
		if needsSelection() {
			return m.remove(selected)
		}
	default:
		m.setStatus(fmt.Sprintf("Unknown command %q", cmd), true)
	}
	return nil
}

// openSetup shows the account form, empty or for cfg.
func (m *Model) openSetup(cfg *model.AccountConfig) tea.Cmd {
	m.previousView = m.currentView
	m.currentView = ViewSetup
	if cfg == nil {
		return m.setup.StartCreate()
	}
	cmd := m.setup.StartEdit(*cfg)
	m.updateSetupNotice()
	return cmd
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewAccounts:
		m.accounts, cmd = m.accounts.Update(msg)
	case ViewMail:
		m.mail, cmd = m.mail.Update(msg)
	case ViewSetup:
		m.setup, cmd = m.setup.Update(msg)
	case ViewCommand:
		m.command, cmd = m.command.Update(msg)
	case ViewHistory:
		m.history, cmd = m.history.Update(msg)
	}

	return m, cmd
}

// refresh re-reads account state from the poller.
func (m *Model) refresh() {
	m.accounts.SetRows(accounts.RowsFrom(m.poller.Accounts().All()))
	m.totals = m.poller.Totals()
	if m.currentView == ViewSetup {
		m.updateSetupNotice()
	}
	if m.currentView == ViewMail {
		if _, ok := m.poller.Accounts().Get(m.mailAccount); !ok {
			m.currentView = ViewAccounts
			return
		}
		m.mail.Refresh()
	}
}

// updateSetupNotice shows a login failure of the account being edited in
// the form, so the user can correct the credentials.
func (m *Model) updateSetupNotice() {
	id, ok := m.setup.Editing()
	if !ok {
		return
	}
	a, ok := m.poller.Accounts().Get(id)
	if !ok {
		return
	}
	st := a.State()
	if st.LoginFailed() {
		m.setup.SetNotice(st.Error + ". " + st.ErrorDetail)
		return
	}
	m.setup.SetNotice("")
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusErr = isErr
}

func (m *Model) toggleHelp() {
	m.showHelp = !m.showHelp
	m.resize()
}

func (m *Model) resize() {
	width := m.layout.Width
	height := m.layout.ContentHeight()
	if m.showHelp {
		m.help.ShowAll = true
		m.help.Width = width
		height -= lipgloss.Height(m.help.View(m.keys))
	}
	m.accounts.SetSize(width, height)
	m.mail.SetSize(width, height)
	m.setup.SetSize(width, height)
	m.history.SetSize(width, height)
	m.command.SetSize(width)
}

// View renders the full terminal UI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	style := theme.HeaderStyle
	if m.totals.NewUnread {
		style = theme.HotHeaderStyle
	}
	header := m.layout.RenderHeader(style, "Mail Notifier", m.summary())

	content := m.renderContent()
	if m.showHelp {
		content = lipgloss.JoinVertical(lipgloss.Left, content, m.help.View(m.keys))
	}

	var statusBar string
	if m.currentView == ViewCommand {
		statusBar = m.command.View()
	} else {
		statusBar = m.layout.RenderStatusBar(m.statusText())
	}

	return m.layout.Frame(header, content, statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewMail:
		return m.mail.View()
	case ViewSetup:
		return m.setup.View()
	case ViewHistory:
		return m.history.View()
	default:
		return m.accounts.View()
	}
}

// summary describes the totals for the header.
func (m Model) summary() string {
	t := m.totals
	s := fmt.Sprintf("%d unread · %d of %d accounts", t.Unread, t.EnabledAccounts, m.poller.Accounts().Len())
	if t.Error {
		s += " · ⚠ errors"
	}
	return s
}

func (m Model) statusText() string {
	if m.statusMsg != "" {
		if m.statusErr {
			return theme.ErrorStyle.Render(m.statusMsg)
		}
		return m.statusMsg
	}

	switch m.currentView {
	case ViewMail:
		return "esc back | n next | p previous | j/k scroll | ? help"
	case ViewSetup:
		return "enter next | shift+tab back | esc cancel"
	case ViewHistory:
		return "esc back | j/k scroll | ? help"
	default:
		return m.help.ShortHelpView(m.keys.ShortHelp())
	}
}
