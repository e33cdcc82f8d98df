package sync

import (
	"context"
	"time"
)

// supervise starts a check loop for every enabled account that has none and
// replaces loops that have made no progress within the account's check
// timeout. It returns when ctx is cancelled.
func (p *Poller) supervise(ctx context.Context) error {
	log := p.log.With().Str("component", "supervisor").Logger()
	log.Debug().Dur("interval", p.opts.SupervisorInterval).Msg("supervisor started")

	ticker := time.NewTicker(p.opts.SupervisorInterval)
	defer ticker.Stop()

	p.superviseOnce(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("supervisor stopped")
			return nil
		case <-ticker.C:
		case <-p.wake:
		}
		p.superviseOnce(ctx, time.Now())
	}
}

func (p *Poller) superviseOnce(ctx context.Context, now time.Time) {
	for _, a := range p.accounts.All() {
		if !a.Enabled() {
			continue
		}

		timeout := a.Config().CheckTimeout
		if a.loopRunning() {
			idle := now.Sub(a.Alive())
			if idle < timeout {
				continue
			}
			p.log.Warn().
				Str("component", "supervisor").
				Str("account", a.Username()).
				Dur("idle", idle).
				Msg("check loop stalled, restarting")
			// The stalled loop's session may be what it is stuck on.
			p.sessions.Close(a.takeSession())
		}

		gen, loopCtx := a.startLoop(ctx, now)
		go p.newPollLoop(loopCtx, a, gen).run()
	}
}
