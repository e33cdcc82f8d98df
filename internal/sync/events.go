package sync

import (
	gosync "sync"

	"github.com/nhle/mail-notifier/internal/model"
)

// Observer receives account events. Methods are called from checker
// goroutines and must not block.
type Observer interface {
	AccountStatusChanged(accountID int)
	UnreadCountChanged(accountID int, count int)
	NewMailArrived(accountID int, mails []model.MailSummary)
}

// TotalsObserver is optionally implemented by observers interested in the
// totals across all accounts.
type TotalsObserver interface {
	TotalsChanged(t Totals)
}

// BaseObserver implements Observer with no-ops, for embedding.
type BaseObserver struct{}

func (BaseObserver) AccountStatusChanged(int) {}
func (BaseObserver) UnreadCountChanged(int, int) {}
func (BaseObserver) NewMailArrived(int, []model.MailSummary) {}

// Broadcaster fans events out to subscribed observers.
type Broadcaster struct {
	mu        gosync.RWMutex
	observers map[int]Observer
	next      int
}

// NewBroadcaster creates a Broadcaster with no observers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{observers: make(map[int]Observer)}
}

// Subscribe registers o and returns a function that removes it.
func (b *Broadcaster) Subscribe(o Observer) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.observers[id] = o
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

func (b *Broadcaster) snapshot() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		out = append(out, o)
	}
	return out
}

func (b *Broadcaster) AccountStatusChanged(accountID int) {
	for _, o := range b.snapshot() {
		o.AccountStatusChanged(accountID)
	}
}

func (b *Broadcaster) UnreadCountChanged(accountID int, count int) {
	for _, o := range b.snapshot() {
		o.UnreadCountChanged(accountID, count)
	}
}

func (b *Broadcaster) NewMailArrived(accountID int, mails []model.MailSummary) {
	for _, o := range b.snapshot() {
		o.NewMailArrived(accountID, mails)
	}
}

func (b *Broadcaster) TotalsChanged(t Totals) {
	for _, o := range b.snapshot() {
		if to, ok := o.(TotalsObserver); ok {
			to.TotalsChanged(t)
		}
	}
}
