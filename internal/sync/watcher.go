package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/nhle/mail-notifier/internal/label"
	"github.com/nhle/mail-notifier/internal/session"
)

// watch holds an IDLE wait on the account's All Mail folder for as long as
// sess is the account's current session. Every change reported by the
// server turns into a check request. Any error ends the watcher; the next
// session starts a new one.
func (p *Poller) watch(ctx context.Context, a *Account, sess session.Session, sessionGen int64) {
	log := p.log.With().
		Str("component", "watcher").
		Str("account", a.Username()).
		Str("session", sess.ID()).
		Logger()
	log.Debug().Msg("watcher started")
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Msg("watcher panicked")
		}
		log.Debug().Msg("watcher stopped")
	}()

	onChange := func() {
		log.Debug().Msg("mailbox changed")
		a.requestCheck()
	}

	for a.sessionGen.is(sessionGen) && ctx.Err() == nil {
		if err := sess.Idle(ctx, label.AllMail, onChange); err != nil {
			if ctx.Err() == nil && a.sessionGen.is(sessionGen) {
				log.Debug().Err(err).Msg("idle ended")
			}
			return
		}

		// The server ended the wait; pause before issuing another.
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.WatcherPause):
		}
	}
}
