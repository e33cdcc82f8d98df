package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/store"
	"github.com/nhle/mail-notifier/internal/ui/history"
	"github.com/nhle/mail-notifier/internal/ui/setup"
)

const actionTimeout = 10 * time.Second

// accountSavedMsg reports the result of adding or editing an account.
type accountSavedMsg struct {
	account model.AccountConfig
	warning string
	err     error
}

// accountRemovedMsg reports the result of removing an account.
type accountRemovedMsg struct {
	id  int
	err error
}

// historyLoadedMsg carries the recent mail of one account.
type historyLoadedMsg struct {
	account string
	entries []store.MailEntry
	err     error
}

// configSavedMsg reports the result of writing the config file.
type configSavedMsg struct {
	err error
}

func (m *Model) checkNow(id int) tea.Cmd {
	if err := m.poller.CheckNow(id); err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}
	m.setStatus("Checking...", false)
	return nil
}

// loadHistory reads the account's recent mail in the background.
func (m *Model) loadHistory(id int) tea.Cmd {
	if m.hist == nil {
		m.setStatus("Mail history is not available", true)
		return nil
	}
	a, ok := m.poller.Accounts().Get(id)
	if !ok {
		return nil
	}
	name := a.Config().DisplayName()
	src := m.hist

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		entries, err := src.RecentMail(ctx, id, history.Limit)
		return historyLoadedMsg{account: name, entries: entries, err: err}
	}
}

// toggle enables or disables an account and persists the change.
func (m *Model) toggle(id int) tea.Cmd {
	a, ok := m.poller.Accounts().Get(id)
	if !ok {
		return nil
	}

	var err error
	if a.Enabled() {
		err = m.poller.Disable(id)
	} else {
		err = m.poller.Enable(id)
	}
	if err != nil {
		m.setStatus(err.Error(), true)
		return nil
	}

	cfg := a.Config()
	cfg.Password = ""
	m.storeAccount(cfg)
	m.refresh()
	return m.saveConfig()
}

// remove forgets an account and its stored password.
func (m *Model) remove(id int) tea.Cmd {
	a, ok := m.poller.Accounts().Get(id)
	if !ok {
		return nil
	}
	username := a.Username()
	p := m.poller
	creds := m.creds
	log := m.log

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		if err := p.RemoveAccount(ctx, id); err != nil {
			return accountRemovedMsg{id: id, err: err}
		}
		if creds != nil {
			if err := creds.DeletePassword(username); err != nil {
				log.Warn().Err(err).Str("account", username).Msg("removing stored password")
			}
		}
		return accountRemovedMsg{id: id}
	}
}

// saveAccount stores the password and applies the form result to the
// poller. A blank password on edit keeps the current one.
func (m *Model) saveAccount(msg setup.SavedMsg) tea.Cmd {
	p := m.poller
	creds := m.creds

	return func() tea.Msg {
		cfg := msg.Account
		cfg.Password = ""

		password := msg.Password
		var warning string
		if password != "" {
			if creds == nil {
				warning = "No keyring available, password kept for this session only"
			} else if err := creds.SetPassword(cfg.Username, password); err != nil {
				return accountSavedMsg{err: fmt.Errorf("storing password: %w", err)}
			}
		}

		if cfg.ID != 0 {
			a, ok := p.Accounts().Get(cfg.ID)
			if !ok {
				return accountSavedMsg{err: fmt.Errorf("account %d no longer exists", cfg.ID)}
			}
			if password == "" {
				password = a.Config().Password
			}
			running := cfg
			running.Password = password
			if err := p.UpdateAccount(running); err != nil {
				return accountSavedMsg{err: err}
			}
			return accountSavedMsg{account: cfg, warning: warning}
		}

		if password == "" {
			return accountSavedMsg{err: errors.New("a password is required")}
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		running := cfg
		running.Password = password
		a, err := p.AddAccount(ctx, running)
		if err != nil {
			return accountSavedMsg{err: err}
		}
		cfg.ID = a.ID()
		return accountSavedMsg{account: cfg, warning: warning}
	}
}

// storeAccount records cfg in the in-memory config, replacing the entry
// with the same id.
func (m *Model) storeAccount(cfg model.AccountConfig) {
	for i := range m.cfg.Accounts {
		if m.cfg.Accounts[i].ID == cfg.ID {
			m.cfg.Accounts[i] = cfg
			return
		}
	}
	m.cfg.Accounts = append(m.cfg.Accounts, cfg)
}

func (m *Model) dropAccount(id int) {
	accounts := m.cfg.Accounts[:0]
	for _, a := range m.cfg.Accounts {
		if a.ID != id {
			accounts = append(accounts, a)
		}
	}
	m.cfg.Accounts = accounts
}

// saveConfig writes a snapshot of the config in the background.
func (m *Model) saveConfig() tea.Cmd {
	if m.cfgPath == "" {
		return nil
	}
	snapshot := *m.cfg
	snapshot.Accounts = append([]model.AccountConfig(nil), m.cfg.Accounts...)
	path := m.cfgPath

	return func() tea.Msg {
		return configSavedMsg{err: model.SaveConfig(path, &snapshot)}
	}
}
