package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-notifier/internal/model"
	appsync "github.com/nhle/mail-notifier/internal/sync"
)

// accountsChangedMsg asks the UI to re-read account state.
type accountsChangedMsg struct{}

// newMailMsg reports mail that arrived for one account.
type newMailMsg struct {
	accountID int
	count     int
}

// Bridge turns poller events into Bubble Tea messages. Poller goroutines
// must never block on the UI, so state changes are coalesced into one
// pending refresh and new-mail notices are dropped when the UI falls
// behind.
type Bridge struct {
	changed chan struct{}
	newMail chan newMailMsg
}

// NewBridge creates a bridge. Subscribe it to the poller before running.
func NewBridge() *Bridge {
	return &Bridge{
		changed: make(chan struct{}, 1),
		newMail: make(chan newMailMsg, 16),
	}
}

func (b *Bridge) signal() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

func (b *Bridge) AccountStatusChanged(int) { b.signal() }

func (b *Bridge) UnreadCountChanged(int, int) { b.signal() }

func (b *Bridge) TotalsChanged(appsync.Totals) { b.signal() }

func (b *Bridge) NewMailArrived(accountID int, mails []model.MailSummary) {
	select {
	case b.newMail <- newMailMsg{accountID: accountID, count: len(mails)}:
	default:
	}
	b.signal()
}

// Wait returns a command that delivers the next event. New-mail notices
// are delivered before refreshes.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-b.newMail:
			return m
		default:
		}
		select {
		case m := <-b.newMail:
			return m
		case <-b.changed:
			return accountsChangedMsg{}
		}
	}
}
