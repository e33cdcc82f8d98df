package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/alert"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
	"github.com/nhle/mail-notifier/internal/session/sessiontest"
)

const (
	waitFor = 3 * time.Second
	pollGap = 5 * time.Millisecond
)

// recorder is an observer that keeps everything it is told.
type recorder struct {
	mu      gosync.Mutex
	newMail [][]model.MailSummary
	counts  map[int]int
	totals  []Totals
}

func newRecorder() *recorder {
	return &recorder{counts: make(map[int]int)}
}

func (r *recorder) AccountStatusChanged(int) {}

func (r *recorder) UnreadCountChanged(id int, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[id] = count
}

func (r *recorder) NewMailArrived(_ int, mails []model.MailSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newMail = append(r.newMail, mails)
}

func (r *recorder) TotalsChanged(t Totals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals = append(r.totals, t)
}

func (r *recorder) arrivals() [][]model.MailSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]model.MailSummary(nil), r.newMail...)
}

type sinkCounts struct {
	triggers, starts, stops int
	tests                   int
	shown                   []model.MailSummary
	shows                   int
	failing                 bool
}

// sink counts calls.
type sink struct {
	mu gosync.Mutex
	c  sinkCounts
}

func (s *sink) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.triggers++
}

func (s *sink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.starts++
}

func (s *sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.stops++
}

func (s *sink) Test() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.tests++
}

func (s *sink) Show(_ int, mails []model.MailSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.shows++
	s.c.shown = append(s.c.shown, mails...)
}

func (s *sink) SetError(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.failing = failing
}

func (s *sink) get() sinkCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.c
	c.shown = append([]model.MailSummary(nil), s.c.shown...)
	return c
}

type harness struct {
	t      *testing.T
	server *sessiontest.Server
	poller *Poller
	rec    *recorder

	tray, popup, chime, bell, led *sink

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, st Store) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		server: sessiontest.NewServer(),
		rec:    newRecorder(),
		tray:   &sink{},
		popup:  &sink{},
		chime:  &sink{},
		bell:   &sink{},
		led:    &sink{},
	}
	h.poller = h.newPoller(st)
	return h
}

func alertSinks(h *harness) alert.Sinks {
	return alert.Sinks{Tray: h.tray, Popup: h.popup, Chime: h.chime, Bell: h.bell, LED: h.led}
}

func (h *harness) newPoller(st Store) *Poller {
	mgr := session.NewManager(h.server, model.ServerConfig{
		Host:           "imap.test",
		Port:           993,
		UsernameSuffix: "@gmail.com",
	}, model.ProxyConfig{}, zerolog.Nop())

	p := New(mgr, st, alertSinks(h), zerolog.Nop(), Options{
		Tick:               5 * time.Millisecond,
		SupervisorInterval: 10 * time.Millisecond,
		WatcherPause:       5 * time.Millisecond,
	})
	p.Subscribe(h.rec)
	return p
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	p := h.poller
	go func() { h.done <- p.Run(ctx) }()
	h.t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(h.t, err)
	case <-time.After(waitFor):
		h.t.Error("poller did not stop")
	}
	h.cancel = nil
}

func (h *harness) add(cfg model.AccountConfig) *Account {
	h.t.Helper()
	a, err := h.poller.AddAccount(context.Background(), cfg)
	require.NoError(h.t, err)
	return a
}

// waitChecked waits until the account has completed a check after since.
func (h *harness) waitChecked(a *Account, since time.Time) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st := a.State()
		return st.Status == model.StatusWaiting && st.LastSuccess.After(since)
	}, waitFor, pollGap)
}

// checkNow requests a check and waits for it to complete.
func (h *harness) checkNow(a *Account) {
	h.t.Helper()
	since := a.State().LastSuccess
	require.NoError(h.t, h.poller.CheckNow(a.ID()))
	h.waitChecked(a, since)
}

func testAccount(username string) model.AccountConfig {
	cfg := model.DefaultAccountConfig()
	cfg.Username = username
	cfg.Password = "secret"
	cfg.CheckInterval = time.Hour
	cfg.CheckTimeout = time.Hour
	return cfg
}

func putMail(s *sessiontest.Server, folder string, uids ...uint32) {
	for _, uid := range uids {
		s.Put(folder, sessiontest.Message(uid, "sender@example.com", "subject", "hello"))
	}
}

func identities(mails []model.MailSummary) []model.MailIdentity {
	out := make([]model.MailIdentity, len(mails))
	for i, m := range mails {
		out[i] = m.ID
	}
	return out
}

func sequences(mails []model.MailSummary) []int64 {
	out := make([]int64, len(mails))
	for i, m := range mails {
		out[i] = m.Sequence
	}
	return out
}
