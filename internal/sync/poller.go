// Package sync runs the per-account mail check loops and the goroutines
// that supervise them.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-notifier/internal/alert"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
	"github.com/nhle/mail-notifier/internal/store"
)

// ErrUnknownAccount is returned for operations on an id that is not in the
// collection.
var ErrUnknownAccount = errors.New("unknown account")

// Store is the persistence the poller needs.
type Store interface {
	store.SequenceStore
	LogMail(ctx context.Context, mails []model.MailSummary) error
}

// Options tunes the poller's timing.
type Options struct {
	// Tick is how often a check loop wakes to see whether a check is due.
	Tick time.Duration

	// SupervisorInterval is how often stalled loops are looked for.
	SupervisorInterval time.Duration

	// WatcherPause separates consecutive IDLE waits.
	WatcherPause time.Duration
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		Tick:               200 * time.Millisecond,
		SupervisorInterval: model.DefaultSupervisorInterval,
		WatcherPause:       time.Second,
	}
}

// storeTimeout bounds each write to the local store.
const storeTimeout = 5 * time.Second

// Poller owns the accounts and runs one check loop per enabled account,
// a supervisor that restarts stalled loops, and an aggregator that keeps
// the totals and alerts up to date.
type Poller struct {
	accounts   *Collection
	sessions   *session.Manager
	store      Store
	sinks      alert.Sinks
	watermarks *alert.Watermarks
	events     *Broadcaster
	opts       Options
	log        zerolog.Logger

	wake  chan struct{}
	dirty chan struct{}

	mu      gosync.Mutex
	totals  Totals
	running bool
}

// New creates a Poller. st may be nil, in which case nothing is persisted.
func New(
	sessions *session.Manager,
	st Store,
	sinks alert.Sinks,
	log zerolog.Logger,
	opts Options,
) *Poller {
	def := DefaultOptions()
	if opts.Tick <= 0 {
		opts.Tick = def.Tick
	}
	if opts.SupervisorInterval <= 0 {
		opts.SupervisorInterval = def.SupervisorInterval
	}
	if opts.WatcherPause <= 0 {
		opts.WatcherPause = def.WatcherPause
	}
	if st == nil {
		st = nopStore{}
	}

	return &Poller{
		accounts:   NewCollection(),
		sessions:   sessions,
		store:      st,
		sinks:      sinks.WithDefaults(),
		watermarks: alert.NewWatermarks(),
		events:     NewBroadcaster(),
		opts:       opts,
		log:        log,
		wake:       make(chan struct{}, 1),
		dirty:      make(chan struct{}, 1),
	}
}

// Accounts returns the account collection.
func (p *Poller) Accounts() *Collection { return p.accounts }

// Subscribe registers an observer. The returned function unsubscribes it.
func (p *Poller) Subscribe(o Observer) func() { return p.events.Subscribe(o) }

// Totals returns the latest totals across accounts.
func (p *Poller) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

// AddAccount adds an account. An id of zero is replaced with the next free
// id. The sequence counter resumes from the value saved in the store.
func (p *Poller) AddAccount(ctx context.Context, cfg model.AccountConfig) (*Account, error) {
	if cfg.ID == 0 {
		cfg.ID = p.accounts.nextID()
	}

	last, err := p.store.LastSequence(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("adding account %s: %w", cfg.DisplayName(), err)
	}

	a := newAccount(cfg, last)
	if !p.accounts.add(a) {
		return nil, fmt.Errorf("adding account %s: id %d already in use", cfg.DisplayName(), cfg.ID)
	}

	p.log.Info().Int("account_id", a.id).Str("account", cfg.Username).Bool("enabled", cfg.Enabled).Msg("account added")
	p.events.AccountStatusChanged(a.id)
	p.markDirty()
	p.wakeSupervisor()
	return a, nil
}

// UpdateAccount replaces the settings of an existing account. A change to
// the enabled flag is applied as Enable or Disable.
func (p *Poller) UpdateAccount(cfg model.AccountConfig) error {
	a, ok := p.accounts.Get(cfg.ID)
	if !ok {
		return fmt.Errorf("updating account %d: %w", cfg.ID, ErrUnknownAccount)
	}
	a.setConfig(cfg)

	if cfg.Enabled {
		return p.Enable(cfg.ID)
	}
	return p.Disable(cfg.ID)
}

// RemoveAccount stops checking the account and forgets it.
func (p *Poller) RemoveAccount(ctx context.Context, id int) error {
	a, ok := p.accounts.remove(id)
	if !ok {
		return fmt.Errorf("removing account %d: %w", id, ErrUnknownAccount)
	}

	a.disable()
	p.sessions.Close(a.takeSession())
	p.watermarks.Forget(id)

	if del, ok := p.store.(interface {
		DeleteAccount(context.Context, int) error
	}); ok {
		if err := del.DeleteAccount(ctx, id); err != nil {
			p.log.Warn().Err(err).Int("account_id", id).Msg("deleting stored account state")
		}
	}

	p.events.AccountStatusChanged(id)
	p.markDirty()
	return nil
}

// Enable starts checking the account and requests an immediate check.
func (p *Poller) Enable(id int) error {
	a, ok := p.accounts.Get(id)
	if !ok {
		return fmt.Errorf("enabling account %d: %w", id, ErrUnknownAccount)
	}
	if a.enable() {
		p.events.AccountStatusChanged(id)
	}
	a.requestCheck()
	p.markDirty()
	p.wakeSupervisor()
	return nil
}

// Disable stops checking the account. The running loop exits at its next
// checkpoint.
func (p *Poller) Disable(id int) error {
	a, ok := p.accounts.Get(id)
	if !ok {
		return fmt.Errorf("disabling account %d: %w", id, ErrUnknownAccount)
	}
	a.disable()
	p.sessions.Close(a.takeSession())

	p.events.AccountStatusChanged(id)
	p.markDirty()
	return nil
}

// CheckNow requests an immediate check of the account.
func (p *Poller) CheckNow(id int) error {
	a, ok := p.accounts.Get(id)
	if !ok {
		return fmt.Errorf("checking account %d: %w", id, ErrUnknownAccount)
	}
	a.requestCheck()
	return nil
}

// CheckAll requests an immediate check of every account.
func (p *Poller) CheckAll() {
	for _, a := range p.accounts.All() {
		a.requestCheck()
	}
}

// ResetAlerts marks all unread mail as no longer new and stops every
// alert.
func (p *Poller) ResetAlerts() {
	for _, a := range p.accounts.All() {
		a.clearNewUnread()
	}
	p.sinks.StopAll()
	p.markDirty()
}

// TestAlerts fires every alert sink once.
func (p *Poller) TestAlerts() {
	p.sinks.TestAll()
}

// Run starts the supervisor and the aggregator and blocks until ctx is
// cancelled. On return all check loops have been told to stop and their
// sessions are being closed.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("poller already running")
	}
	p.running = true
	p.mu.Unlock()

	defer p.shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.supervise(ctx) })
	g.Go(func() error { return p.aggregate(ctx) })
	return g.Wait()
}

func (p *Poller) shutdown() {
	for _, a := range p.accounts.All() {
		a.stopLoop()
		p.sessions.Close(a.takeSession())
	}
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *Poller) wakeSupervisor() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// markDirty asks the aggregator to recompute the totals.
func (p *Poller) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

type nopStore struct{}

func (nopStore) LastSequence(context.Context, int) (int64, error) { return 0, nil }
func (nopStore) SaveSequence(context.Context, int, int64) error { return nil }
func (nopStore) LogMail(context.Context, []model.MailSummary) error { return nil }
