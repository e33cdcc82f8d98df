package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nhle/mail-notifier/internal/mailcache"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
)

// MailView is read-only access to an account's unread mail.
type MailView interface {
	Count() int
	First() (model.MailSummary, bool)
	Last() (model.MailSummary, bool)
	Next(m model.MailSummary) (model.MailSummary, bool)
	Previous(m model.MailSummary) (model.MailSummary, bool)
	Snapshot() []model.MailSummary
	Since(seq int64) []model.MailSummary
}

// State is a point-in-time copy of an account's status.
type State struct {
	ID          int
	Username    string
	Enabled     bool
	Status      model.Status
	Error       string
	ErrorDetail string
	LastAttempt time.Time
	LastSuccess time.Time
	Unread      int
	NewUnread   bool
}

// LoginFailed reports whether the last check failed to log in.
func (s State) LoginFailed() bool {
	return s.Status == model.StatusError && s.Error == msgLoginFailed
}

// Account is one mail account and everything the checker knows about it.
// Only the account's check loop changes its mail; other callers read
// copies.
type Account struct {
	id    int
	cache *mailcache.Cache

	cfgMu gosync.RWMutex
	cfg   model.AccountConfig

	seqMu   gosync.Mutex
	lastSeq int64

	statusMu gosync.RWMutex
	status   State

	// genMu serializes generation changes with commits so that a
	// superseded loop can never write after its successor started.
	genMu   gosync.Mutex
	gen     epoch
	running bool
	cancel  context.CancelFunc

	sessionGen epoch
	sessMu     gosync.Mutex
	sess       session.Session

	alive    atomic.Int64
	enabled  atomic.Bool
	checkNow chan struct{}
}

func newAccount(cfg model.AccountConfig, lastSeq int64) *Account {
	a := &Account{
		id:       cfg.ID,
		cache:    mailcache.New(),
		cfg:      cfg,
		lastSeq:  lastSeq,
		checkNow: make(chan struct{}, 1),
	}
	a.enabled.Store(cfg.Enabled)
	a.status = State{ID: cfg.ID, Username: cfg.Username, Enabled: cfg.Enabled}
	if cfg.Enabled {
		a.status.Status = model.StatusWaiting
	}
	return a
}

// ID returns the account id.
func (a *Account) ID() int { return a.id }

// Config returns a copy of the account configuration.
func (a *Account) Config() model.AccountConfig {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	cfg := a.cfg
	cfg.Labels = append([]string(nil), a.cfg.Labels...)
	cfg.Enabled = a.enabled.Load()
	return cfg
}

func (a *Account) setConfig(cfg model.AccountConfig) {
	cfg.ID = a.id
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()

	a.statusMu.Lock()
	a.status.Username = cfg.Username
	a.statusMu.Unlock()
}

// Username returns the configured username.
func (a *Account) Username() string {
	return a.Config().Username
}

// Enabled reports whether the account is being checked.
func (a *Account) Enabled() bool { return a.enabled.Load() }

// Mail returns the account's unread mail.
func (a *Account) Mail() MailView { return a.cache }

// State returns a copy of the account's status.
func (a *Account) State() State {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	st := a.status
	st.Enabled = a.enabled.Load()
	return st
}

// LastSequence returns the highest sequence number assigned so far.
func (a *Account) LastSequence() int64 {
	a.seqMu.Lock()
	defer a.seqMu.Unlock()
	return a.lastSeq
}

// nextSequence hands out the next sequence number.
func (a *Account) nextSequence() int64 {
	a.seqMu.Lock()
	defer a.seqMu.Unlock()
	a.lastSeq++
	return a.lastSeq
}

// requestCheck asks the loop to check at its next tick.
func (a *Account) requestCheck() {
	select {
	case a.checkNow <- struct{}{}:
	default:
	}
}

// takeCheckRequest consumes a pending check request.
func (a *Account) takeCheckRequest() bool {
	select {
	case <-a.checkNow:
		return true
	default:
		return false
	}
}

func (a *Account) touch(now time.Time) { a.alive.Store(now.UnixNano()) }

// Alive returns the last time the account's loop made progress.
func (a *Account) Alive() time.Time { return time.Unix(0, a.alive.Load()) }

// startLoop supersedes any running loop and returns the generation and
// context for a new one.
func (a *Account) startLoop(parent context.Context, now time.Time) (int64, context.Context) {
	a.genMu.Lock()
	defer a.genMu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	a.running = true
	a.touch(now)
	return a.gen.advance(), ctx
}

// stopLoop supersedes the running loop without starting another.
func (a *Account) stopLoop() {
	a.genMu.Lock()
	defer a.genMu.Unlock()

	a.gen.advance()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.running = false
}

// loopExited is called by a loop on the way out.
func (a *Account) loopExited(gen int64) {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	if !a.gen.is(gen) {
		return
	}
	a.running = false
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

// loopRunning reports whether a current loop exists.
func (a *Account) loopRunning() bool {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	return a.running
}

// commit runs fn if gen is still current and the account enabled.
// Generation changes wait for fn.
func (a *Account) commit(gen int64, fn func()) bool {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	if !a.gen.is(gen) || !a.enabled.Load() {
		return false
	}
	fn()
	return true
}

func (a *Account) setSession(s session.Session) {
	a.sessMu.Lock()
	a.sess = s
	a.sessMu.Unlock()
}

// takeSession clears and returns the current session.
func (a *Account) takeSession() session.Session {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	s := a.sess
	a.sess = nil
	return s
}

// The setters below must be called with genMu held (inside commit) or by
// the Checker's account operations.

func (a *Account) setStatus(s model.Status) {
	a.statusMu.Lock()
	a.status.Status = s
	a.statusMu.Unlock()
}

func (a *Account) recordFailure(msg, detail string, now time.Time) {
	a.statusMu.Lock()
	a.status.Status = model.StatusError
	a.status.Error = msg
	a.status.ErrorDetail = detail
	a.status.LastAttempt = now
	a.statusMu.Unlock()
}

func (a *Account) recordSuccess(now time.Time) {
	a.statusMu.Lock()
	a.status.Status = model.StatusWaiting
	a.status.Error = ""
	a.status.ErrorDetail = ""
	a.status.LastAttempt = now
	a.status.LastSuccess = now
	a.statusMu.Unlock()
}

func (a *Account) setUnread(count int, newMail bool) {
	a.statusMu.Lock()
	a.status.Unread = count
	if newMail {
		a.status.NewUnread = true
	}
	if count == 0 {
		a.status.NewUnread = false
	}
	a.statusMu.Unlock()
}

func (a *Account) clearNewUnread() {
	a.statusMu.Lock()
	a.status.NewUnread = false
	a.statusMu.Unlock()
}

// enable turns checking on. It reports whether the account was disabled.
func (a *Account) enable() bool {
	a.genMu.Lock()
	defer a.genMu.Unlock()

	if a.enabled.Swap(true) {
		return false
	}
	a.setStatus(model.StatusWaiting)
	return true
}

// disable turns checking off and supersedes the running loop.
func (a *Account) disable() {
	a.genMu.Lock()
	defer a.genMu.Unlock()

	a.enabled.Store(false)
	a.gen.advance()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.running = false

	a.statusMu.Lock()
	a.status.Status = model.StatusDisabled
	a.status.Error = ""
	a.status.ErrorDetail = ""
	a.statusMu.Unlock()
}

// Tooltip describes the account in a few lines for hover text.
func (a *Account) Tooltip() string {
	cfg := a.Config()
	st := a.State()

	var sb strings.Builder
	sb.WriteString(cfg.DisplayName())

	status := st.Status.String()
	if st.Status == model.StatusError && st.Error != "" {
		status = fmt.Sprintf("%s (%s, %s)", status, st.Error, humanize.Time(st.LastAttempt))
	}
	fmt.Fprintf(&sb, "\nStatus: %s", status)
	if st.Status == model.StatusError && st.ErrorDetail != "" {
		fmt.Fprintf(&sb, "\nDetail: %s", st.ErrorDetail)
	}
	fmt.Fprintf(&sb, "\nUnread mail: %d", st.Unread)

	notify := string(cfg.NotifyMode)
	if cfg.NotifyMode == model.NotifyLabels && len(cfg.Labels) > 0 {
		notify = fmt.Sprintf("%s (%s)", notify, strings.Join(cfg.Labels, ", "))
	}
	fmt.Fprintf(&sb, "\nNotify: %s", notify)

	alerts := "none"
	if names := cfg.Alerts.Names(); len(names) > 0 {
		alerts = strings.Join(names, ", ")
	}
	fmt.Fprintf(&sb, "\nAlerts: %s", alerts)

	if !st.LastSuccess.IsZero() {
		fmt.Fprintf(&sb, "\nLast check: %s", humanize.Time(st.LastSuccess))
	}
	return sb.String()
}
