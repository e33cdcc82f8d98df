package sync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/label"
	"github.com/nhle/mail-notifier/internal/message"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
)

const (
	msgLoginFailed = "Login failed"
	msgCheckFailed = "Mail check failed"
)

// pollLoop is one generation of an account's check loop.
type pollLoop struct {
	p   *Poller
	a   *Account
	gen int64
	ctx context.Context
	log zerolog.Logger

	sess session.Session
}

func (p *Poller) newPollLoop(ctx context.Context, a *Account, gen int64) *pollLoop {
	return &pollLoop{
		p:   p,
		a:   a,
		gen: gen,
		ctx: ctx,
		log: p.log.With().
			Str("component", "poll-loop").
			Str("account", a.Username()).
			Int64("loop", gen).
			Logger(),
	}
}

// run loops until the loop is superseded, the account is disabled or the
// context is cancelled.
func (l *pollLoop) run() {
	l.log.Debug().Msg("check loop started")
	defer func() {
		l.closeSession()
		l.a.loopExited(l.gen)
		l.log.Debug().Msg("check loop stopped")
	}()

	ticker := time.NewTicker(l.p.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
		}

		if err := l.checkpoint(); err != nil {
			return
		}
		if !l.due() {
			continue
		}
		if err := l.check(); errors.Is(err, errTerminated) {
			return
		}
	}
}

// checkpoint records progress and reports errTerminated once this loop
// should stop.
func (l *pollLoop) checkpoint() error {
	if !l.a.Enabled() || !l.a.gen.is(l.gen) {
		return errTerminated
	}
	l.a.touch(time.Now())
	return nil
}

// due reports whether a check should start now.
func (l *pollLoop) due() bool {
	if l.a.takeCheckRequest() {
		return true
	}

	st := l.a.State()
	interval := l.a.Config().CheckInterval
	if st.Status == model.StatusError {
		interval /= 10
	}
	return time.Since(st.LastAttempt) >= interval
}

// check runs one mail check. Failures are recorded on the account; the
// only error returned is errTerminated.
func (l *pollLoop) check() (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("mail check panicked")
			l.closeSession()
			err = l.fail(msgCheckFailed, fmt.Sprint(r))
		}
	}()

	cfg := l.a.Config()

	ctx, cancel := context.WithTimeout(l.ctx, cfg.CheckTimeout)
	defer cancel()

	// Sessions are never reused across checks.
	l.closeSession()

	if err := l.setStatus(model.StatusLoggingIn); err != nil {
		return err
	}

	sess, err := l.p.sessions.Connect(ctx, cfg.Username, cfg.Password)
	if cerr := l.checkpoint(); cerr != nil {
		l.p.sessions.Close(sess)
		return cerr
	}
	if err != nil {
		detail := err.Error()
		if session.IsAuthError(err) {
			detail = session.AuthHint
		}
		l.log.Warn().Err(err).Msg("login failed")
		return l.fail(msgLoginFailed, detail)
	}
	l.sess = sess
	l.a.setSession(sess)

	sessionGen := l.a.sessionGen.advance()
	go l.p.watch(l.ctx, l.a, sess, sessionGen)

	if err := l.setStatus(model.StatusChecking); err != nil {
		return err
	}

	present, added, err := l.fetch(ctx, sess, cfg)
	if errors.Is(err, errTerminated) {
		return err
	}
	if err != nil {
		l.log.Warn().Err(err).Msg("mail check failed")
		l.closeSession()
		return l.fail(msgCheckFailed, err.Error())
	}

	return l.publish(cfg, present, added)
}

// fetch collects the unread identities of every watched folder and builds
// summaries for the ones not cached yet.
func (l *pollLoop) fetch(
	ctx context.Context,
	sess session.Session,
	cfg model.AccountConfig,
) (map[model.MailIdentity]struct{}, []model.MailSummary, error) {
	cached := l.a.cache.Keys()
	present := make(map[model.MailIdentity]struct{})
	var added []model.MailSummary

	for _, f := range label.Folders(cfg.NotifyMode, cfg.Labels) {
		if err := l.checkpoint(); err != nil {
			return nil, nil, err
		}

		err := sess.Examine(ctx, f.Folder)
		if errors.Is(err, session.ErrFolderNotFound) {
			l.log.Debug().Str("folder", f.Folder).Msg("folder does not exist, skipping")
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		if err := l.checkpoint(); err != nil {
			return nil, nil, err
		}
		uids, err := sess.SearchUnseen(ctx)
		if err != nil {
			return nil, nil, err
		}

		var fresh []model.MailIdentity
		for _, uid := range uids {
			id := model.MailIdentity{Folder: f.Folder, UID: uid}
			if _, dup := present[id]; dup {
				continue
			}
			present[id] = struct{}{}
			if _, ok := cached[id]; !ok {
				fresh = append(fresh, id)
			}
		}

		for _, id := range fresh {
			if err := l.checkpoint(); err != nil {
				return nil, nil, err
			}

			msg, err := sess.Fetch(ctx, id.UID)
			if err != nil {
				if session.IsConnectivityError(err) || ctx.Err() != nil {
					return nil, nil, err
				}
				l.log.Debug().Err(err).Stringer("mail", id).Msg("could not read message")
				msg = nil
			}

			added = append(added, message.Summarize(l.a.id, id, l.a.nextSequence(), msg, time.Now()))
		}

		if len(fresh) > 0 {
			l.saveSequence()
		}
	}

	return present, added, nil
}

// publish commits a successful check and raises events and alerts.
func (l *pollLoop) publish(
	cfg model.AccountConfig,
	present map[model.MailIdentity]struct{},
	added []model.MailSummary,
) error {
	var count int
	now := time.Now()
	ok := l.a.commit(l.gen, func() {
		l.a.cache.Replace(present, added)
		count = l.a.cache.Count()
		l.a.setUnread(count, len(added) > 0)
		l.a.recordSuccess(now)
	})
	if !ok {
		l.log.Debug().Msg("discarding results of superseded check")
		return errTerminated
	}

	l.log.Debug().Int("unread", count).Int("new", len(added)).Msg("mail check completed")

	p := l.p
	p.events.UnreadCountChanged(l.a.id, count)
	p.events.AccountStatusChanged(l.a.id)

	if len(added) > 0 {
		for _, m := range added {
			l.log.Info().Str("mail", m.String()).Msg("new mail")
		}
		p.events.NewMailArrived(l.a.id, added)
		l.logMail(added)

		p.sinks.Tray.Trigger()
		if cfg.Alerts.Chime {
			p.sinks.Chime.Trigger()
		}
		if cfg.Alerts.PeriodicBell {
			p.sinks.Bell.Start()
		}
		if cfg.Alerts.LED {
			p.sinks.LED.Start()
		}
	}

	if cfg.Alerts.Popup {
		if recent := l.a.cache.Since(p.watermarks.Seen(l.a.id)); len(recent) > 0 {
			p.sinks.Popup.Show(l.a.id, recent)
		}
	}
	p.watermarks.Advance(l.a.id, l.a.LastSequence())

	p.markDirty()
	return nil
}

// fail records a failed check.
func (l *pollLoop) fail(msg, detail string) error {
	now := time.Now()
	if !l.a.commit(l.gen, func() { l.a.recordFailure(msg, detail, now) }) {
		return errTerminated
	}
	l.p.events.AccountStatusChanged(l.a.id)
	l.p.markDirty()
	return nil
}

func (l *pollLoop) setStatus(s model.Status) error {
	if !l.a.commit(l.gen, func() { l.a.setStatus(s) }) {
		return errTerminated
	}
	l.p.events.AccountStatusChanged(l.a.id)
	return nil
}

// closeSession closes this loop's session, if any, in the background.
func (l *pollLoop) closeSession() {
	if l.sess == nil {
		return
	}
	l.a.sessMu.Lock()
	if l.a.sess == l.sess {
		l.a.sess = nil
	}
	l.a.sessMu.Unlock()

	l.p.sessions.Close(l.sess)
	l.sess = nil
}

func (l *pollLoop) saveSequence() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.p.store.SaveSequence(ctx, l.a.id, l.a.LastSequence()); err != nil {
		l.log.Warn().Err(err).Msg("saving sequence number")
	}
}

func (l *pollLoop) logMail(mails []model.MailSummary) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.p.store.LogMail(ctx, mails); err != nil {
		l.log.Warn().Err(err).Msg("recording new mail")
	}
}
