package sync

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/label"
	"github.com/nhle/mail-notifier/internal/message"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
	"github.com/nhle/mail-notifier/tests/testutil"
)

func TestCheckFindsUnreadMail(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2, 3)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	mail := a.Mail()
	assert.Equal(t, 3, mail.Count())
	assert.Equal(t, []int64{1, 2, 3}, sequences(mail.Snapshot()))

	first, ok := mail.First()
	require.True(t, ok)
	assert.Equal(t, model.MailIdentity{Folder: label.Inbox, UID: 1}, first.ID)
	assert.Equal(t, "subject", first.Subject)
	assert.Equal(t, "hello", first.Snippet)

	last, ok := mail.Last()
	require.True(t, ok)
	assert.Equal(t, model.MailIdentity{Folder: label.Inbox, UID: 3}, last.ID)

	st := a.State()
	assert.Equal(t, 3, st.Unread)
	assert.True(t, st.NewUnread)
	assert.Empty(t, st.Error)

	require.Eventually(t, func() bool { return len(h.rec.arrivals()) == 1 }, waitFor, pollGap)
	assert.Len(t, h.rec.arrivals()[0], 3)

	require.Eventually(t, func() bool { return h.popup.get().shows == 1 }, waitFor, pollGap)
	assert.Len(t, h.popup.get().shown, 3)
	assert.Equal(t, 1, h.tray.get().triggers)
	assert.Equal(t, 1, h.chime.get().triggers)
	assert.Zero(t, h.bell.get().starts)
	assert.Zero(t, h.led.get().starts)
}

func TestUnchangedMailIsNotNewTwice(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})
	require.Eventually(t, func() bool { return len(h.rec.arrivals()) == 1 }, waitFor, pollGap)

	h.checkNow(a)

	assert.Never(t, func() bool { return len(h.rec.arrivals()) > 1 }, 100*time.Millisecond, pollGap)
	assert.Equal(t, []int64{1, 2}, sequences(a.Mail().Snapshot()))
	assert.Equal(t, 2, h.server.Dials(), "each check opens a fresh session")
}

func TestReadMailIsPruned(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2, 3)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})
	before := a.Mail().Count()

	h.server.MarkRead(label.Inbox, 2)
	h.checkNow(a)

	assert.Equal(t, before-1, a.Mail().Count())
	assert.Equal(t, []model.MailIdentity{
		{Folder: label.Inbox, UID: 1},
		{Folder: label.Inbox, UID: 3},
	}, identities(a.Mail().Snapshot()))
	assert.Equal(t, 2, a.State().Unread)
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.server.SetPassword("correct horse")

	a := h.add(testAccount("alice"))
	h.start()

	require.Eventually(t, func() bool { return a.State().Status == model.StatusError }, waitFor, pollGap)
	st := a.State()
	assert.Equal(t, msgLoginFailed, st.Error)
	assert.Equal(t, session.AuthHint, st.ErrorDetail)
	assert.False(t, st.LastAttempt.IsZero())
	assert.True(t, st.LastSuccess.IsZero())

	require.Eventually(t, func() bool { return h.poller.Totals().Error }, waitFor, pollGap)
	require.Eventually(t, func() bool { return h.tray.get().failing }, waitFor, pollGap)
}

func TestMissingLabelFolderIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.server.AddFolder("Work")
	putMail(h.server, "Work", 7)

	cfg := testAccount("alice")
	cfg.NotifyMode = model.NotifyLabels
	cfg.Labels = []string{"Missing", "work", "Work"}

	a := h.add(cfg)
	h.start()
	h.waitChecked(a, time.Time{})

	assert.Empty(t, a.State().Error)
	assert.Equal(t, []model.MailIdentity{{Folder: "Work", UID: 7}}, identities(a.Mail().Snapshot()))
}

func TestUnreadableMessageIsStillCounted(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2, 3)
	h.server.SetFetchError(2, errors.New("malformed message"))

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	assert.Equal(t, 3, a.Mail().Count())
	mails := a.Mail().Snapshot()
	assert.Equal(t, message.NoSubject, mails[1].Subject)
	assert.Empty(t, mails[1].Snippet)
	assert.Equal(t, "subject", mails[2].Subject)
}

func TestConnectionLossFailsCheck(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)
	h.server.SetFetchError(1, &session.ConnectivityError{Op: "fetch", Err: io.ErrUnexpectedEOF})

	a := h.add(testAccount("alice"))
	h.start()

	require.Eventually(t, func() bool { return a.State().Status == model.StatusError }, waitFor, pollGap)
	assert.Equal(t, msgCheckFailed, a.State().Error)
	assert.Zero(t, a.Mail().Count())
	require.Eventually(t, func() bool { return h.server.OpenSessions() == 0 }, waitFor, pollGap)
}

func TestWatcherTriggersCheck(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})
	require.Eventually(t, func() bool { return h.server.Idlers() == 1 }, waitFor, pollGap)

	putMail(h.server, label.Inbox, 2)
	h.server.Notify(label.AllMail)

	require.Eventually(t, func() bool { return a.Mail().Count() == 2 }, waitFor, pollGap)
	last, _ := a.Mail().Last()
	assert.Equal(t, int64(2), last.Sequence)
}

func TestSupervisorReplacesStalledLoop(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)

	cfg := testAccount("alice")
	cfg.CheckTimeout = 150 * time.Millisecond
	a := h.add(cfg)
	h.start()
	h.waitChecked(a, time.Time{})

	release := h.server.Block()
	defer release()
	putMail(h.server, label.Inbox, 2)
	gen := a.gen.current()
	require.NoError(t, h.poller.CheckNow(a.ID()))

	require.Eventually(t, func() bool { return h.server.Blocked() == 1 }, waitFor, pollGap)
	require.Eventually(t, func() bool { return a.gen.current() > gen }, waitFor, pollGap)
	assert.True(t, a.loopRunning())

	// The stalled loop wakes up superseded and must not touch the account.
	release()
	require.Eventually(t, func() bool { return h.server.Blocked() == 0 }, waitFor, pollGap)
	assert.Never(t, func() bool { return a.Mail().Count() != 1 }, 100*time.Millisecond, pollGap)

	h.checkNow(a)
	assert.Equal(t, []int64{1, 2}, sequences(a.Mail().Snapshot()))
	require.Eventually(t, func() bool { return len(h.rec.arrivals()) == 2 }, waitFor, pollGap)
}

func TestSequencesSurviveRestart(t *testing.T) {
	st := testutil.NewTestStore(t)
	h := newHarness(t, st)
	putMail(h.server, label.Inbox, 1, 2)

	cfg := testAccount("alice")
	cfg.ID = 4
	a := h.add(cfg)
	h.start()
	h.waitChecked(a, time.Time{})
	h.stop()

	last, err := st.LastSequence(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), last)

	h.poller = h.newPoller(st)
	b := h.add(cfg)
	h.start()
	h.waitChecked(b, time.Time{})

	assert.Equal(t, []int64{3, 4}, sequences(b.Mail().Snapshot()))

	require.Eventually(t, func() bool {
		logged, err := st.RecentMail(context.Background(), 4, 10)
		return err == nil && len(logged) == 4
	}, waitFor, pollGap)
}

func TestDisableAndEnable(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	require.NoError(t, h.poller.Disable(a.ID()))
	st := a.State()
	assert.False(t, st.Enabled)
	assert.Equal(t, model.StatusDisabled, st.Status)
	assert.False(t, a.loopRunning())
	require.Eventually(t, func() bool { return h.server.OpenSessions() == 0 }, waitFor, pollGap)
	require.Eventually(t, func() bool { return h.poller.Totals().EnabledAccounts == 0 }, waitFor, pollGap)

	dials := h.server.Dials()
	require.NoError(t, h.poller.CheckNow(a.ID()))
	assert.Never(t, func() bool { return h.server.Dials() > dials }, 100*time.Millisecond, pollGap)

	since := time.Now()
	require.NoError(t, h.poller.Enable(a.ID()))
	h.waitChecked(a, since)
	assert.True(t, a.State().Enabled)
	assert.Equal(t, 1, h.poller.Totals().EnabledAccounts)
}

func TestDisabledLoopDropsLateResults(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	release := h.server.Block()
	defer release()
	putMail(h.server, label.Inbox, 2)
	require.NoError(t, h.poller.CheckNow(a.ID()))
	require.Eventually(t, func() bool { return h.server.Blocked() == 1 }, waitFor, pollGap)

	require.NoError(t, h.poller.Disable(a.ID()))
	release()

	assert.Never(t, func() bool { return a.Mail().Count() != 1 }, 100*time.Millisecond, pollGap)
	assert.Equal(t, model.StatusDisabled, a.State().Status)
}

func TestAlertsFollowAccountSettings(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2)

	cfg := testAccount("alice")
	cfg.Alerts = model.AlertConfig{PeriodicBell: true, LED: true}
	a := h.add(cfg)
	h.start()
	h.waitChecked(a, time.Time{})

	require.Eventually(t, func() bool { return h.led.get().starts == 1 }, waitFor, pollGap)
	assert.Equal(t, 1, h.bell.get().starts)
	assert.Zero(t, h.chime.get().triggers)
	assert.Zero(t, h.popup.get().shows)
	require.Eventually(t, func() bool { return h.poller.watermarks.Seen(a.ID()) == 2 }, waitFor, pollGap)

	// Once the popup is turned on only mail it has not accounted for shows.
	cfg = a.Config()
	cfg.Alerts.Popup = true
	require.NoError(t, h.poller.UpdateAccount(cfg))
	putMail(h.server, label.Inbox, 3)
	h.checkNow(a)

	require.Eventually(t, func() bool { return h.popup.get().shows == 1 }, waitFor, pollGap)
	shown := h.popup.get().shown
	require.Len(t, shown, 1)
	assert.Equal(t, uint32(3), shown[0].ID.UID)
}

func TestAggregatorStopsAlerts(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1, 2)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	want := Totals{Unread: 2, EnabledAccounts: 1, NewUnread: true}
	require.Eventually(t, func() bool { return h.poller.Totals() == want }, waitFor, pollGap)
	trayStops := h.tray.get().stops
	popupStops := h.popup.get().stops

	h.server.MarkRead(label.Inbox, 1)
	h.server.MarkRead(label.Inbox, 2)
	h.checkNow(a)

	want = Totals{EnabledAccounts: 1}
	require.Eventually(t, func() bool { return h.poller.Totals() == want }, waitFor, pollGap)
	assert.False(t, a.State().NewUnread)
	assert.Greater(t, h.tray.get().stops, trayStops)
	assert.Greater(t, h.popup.get().stops, popupStops)
}

func TestResetAlerts(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})
	require.Eventually(t, func() bool { return h.poller.Totals().NewUnread }, waitFor, pollGap)
	ledStops := h.led.get().stops

	h.poller.ResetAlerts()

	assert.False(t, a.State().NewUnread)
	assert.Equal(t, 1, a.State().Unread)
	assert.Greater(t, h.led.get().stops, ledStops)
	require.Eventually(t, func() bool {
		tot := h.poller.Totals()
		return !tot.NewUnread && tot.Unread == 1
	}, waitFor, pollGap)
}

func TestRemoveAccount(t *testing.T) {
	st := testutil.NewTestStore(t)
	h := newHarness(t, st)
	putMail(h.server, label.Inbox, 1)

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	require.NoError(t, h.poller.RemoveAccount(context.Background(), a.ID()))
	_, ok := h.poller.Accounts().Get(a.ID())
	assert.False(t, ok)
	require.Eventually(t, func() bool { return h.server.OpenSessions() == 0 }, waitFor, pollGap)

	last, err := st.LastSequence(context.Background(), a.ID())
	require.NoError(t, err)
	assert.Zero(t, last)

	err = h.poller.RemoveAccount(context.Background(), a.ID())
	assert.ErrorIs(t, err, ErrUnknownAccount)
	assert.ErrorIs(t, h.poller.UpdateAccount(a.Config()), ErrUnknownAccount)
}

func TestAddAccountAssignsIDs(t *testing.T) {
	h := newHarness(t, nil)

	cfg := testAccount("alice")
	cfg.ID = 5
	a := h.add(cfg)
	b := h.add(testAccount("bob"))
	assert.Equal(t, 5, a.ID())
	assert.Equal(t, 6, b.ID())

	_, err := h.poller.AddAccount(context.Background(), cfg)
	assert.Error(t, err)
}

func TestUpdateKeepsDisabledAccountDisabled(t *testing.T) {
	h := newHarness(t, nil)
	a := h.add(testAccount("alice"))

	require.NoError(t, h.poller.Disable(a.ID()))
	cfg := a.Config()
	assert.False(t, cfg.Enabled)

	cfg.CheckInterval = 2 * time.Minute
	require.NoError(t, h.poller.UpdateAccount(cfg))
	assert.False(t, a.Enabled())
	assert.False(t, a.Config().Enabled)
	assert.Equal(t, 2*time.Minute, a.Config().CheckInterval)

	require.NoError(t, h.poller.Enable(a.ID()))
	assert.True(t, a.Config().Enabled)
}

func TestPanicDuringCheckIsRecorded(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)
	h.server.SetSearchPanic("malformed server response")

	a := h.add(testAccount("alice"))
	h.start()

	require.Eventually(t, func() bool { return a.State().Status == model.StatusError }, waitFor, pollGap)
	st := a.State()
	assert.Equal(t, msgCheckFailed, st.Error)
	assert.Contains(t, st.ErrorDetail, "malformed server response")
	require.Eventually(t, func() bool { return h.server.OpenSessions() == 0 }, waitFor, pollGap)

	h.server.SetSearchPanic(nil)
	h.checkNow(a)
	assert.Equal(t, 1, a.State().Unread)
}

func TestPanicInWatcherIsContained(t *testing.T) {
	h := newHarness(t, nil)
	putMail(h.server, label.Inbox, 1)
	h.server.SetIdlePanic("idle broke")

	a := h.add(testAccount("alice"))
	h.start()
	h.waitChecked(a, time.Time{})

	putMail(h.server, label.Inbox, 2)
	h.checkNow(a)
	assert.Equal(t, 2, a.State().Unread)
	assert.Zero(t, h.server.Idlers())
}

func TestTestAlertsFiresEverySink(t *testing.T) {
	h := newHarness(t, nil)

	h.poller.TestAlerts()

	for _, s := range []*sink{h.tray, h.popup, h.chime, h.bell, h.led} {
		assert.Equal(t, 1, s.get().tests)
	}
}
