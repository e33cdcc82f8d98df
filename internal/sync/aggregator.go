package sync

import (
	"context"

	"github.com/nhle/mail-notifier/internal/alert"
	"github.com/nhle/mail-notifier/internal/model"
)

// Totals summarizes all accounts.
type Totals struct {
	// Unread is the unread mail count over enabled accounts.
	Unread int

	// EnabledAccounts is the number of accounts being checked.
	EnabledAccounts int

	// NewUnread reports whether any account has mail the user has not
	// acknowledged yet.
	NewUnread bool

	// Error reports whether any enabled account is failing.
	Error bool
}

// aggregate recomputes the totals whenever an account changes.
func (p *Poller) aggregate(ctx context.Context) error {
	p.recompute()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.dirty:
			p.recompute()
		}
	}
}

// recompute rebuilds the totals, stops alerts that are no longer warranted
// and notifies observers when anything changed.
func (p *Poller) recompute() {
	var t Totals
	for _, a := range p.accounts.All() {
		st := a.State()
		if !st.Enabled {
			continue
		}
		if st.Unread == 0 && st.NewUnread {
			a.clearNewUnread()
			st.NewUnread = false
		}
		t.EnabledAccounts++
		t.Unread += st.Unread
		t.NewUnread = t.NewUnread || st.NewUnread
		t.Error = t.Error || st.Status == model.StatusError
	}

	if !t.NewUnread {
		p.sinks.Tray.Stop()
		p.sinks.Chime.Stop()
		p.sinks.Bell.Stop()
		p.sinks.LED.Stop()
	}
	if t.Unread == 0 {
		p.sinks.Popup.Stop()
	}

	p.mu.Lock()
	prev := p.totals
	p.totals = t
	p.mu.Unlock()

	if t.Error != prev.Error {
		if ind, ok := p.sinks.Tray.(alert.ErrorIndicator); ok {
			ind.SetError(t.Error)
		}
	}
	if t != prev {
		p.events.TotalsChanged(t)
	}
}
