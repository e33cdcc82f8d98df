package imapstore

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/session"
)

const (
	// MaxBodySize caps how much of each message body is downloaded. The
	// body is only used to build a short snippet.
	MaxBodySize = 64 << 10

	// IdleRefresh ends an IDLE before servers typically drop it.
	IdleRefresh = 25 * time.Minute

	logoutTimeout = 5 * time.Second
)

// Session is one authenticated IMAP connection plus, once Idle has been
// called, a second connection dedicated to IDLE.
type Session struct {
	id     string
	dialer *Dialer
	params session.Params
	log    zerolog.Logger

	client *imapclient.Client

	mu         gosync.Mutex
	closed     bool
	idleClient *imapclient.Client
	idleFolder string

	changes chan struct{}
}

// ID returns the session id used in logs.
func (s *Session) ID() string { return s.id }

// Examine opens folder read-only.
func (s *Session) Examine(ctx context.Context, folder string) error {
	if s.isClosed() {
		return session.ErrClosed
	}
	stop := s.closeOnCancel(ctx, s.client)
	defer stop()

	return examine(s.client, folder)
}

func examine(c *imapclient.Client, folder string) error {
	mailboxes, err := c.List("", folder, nil).Collect()
	if err != nil {
		return session.Classify("listing "+folder, err)
	}
	if len(mailboxes) == 0 {
		return fmt.Errorf("%s: %w", folder, session.ErrFolderNotFound)
	}

	if _, err := c.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return session.Classify("examining "+folder, err)
	}
	return nil
}

// SearchUnseen returns the UIDs of unread messages, ascending.
func (s *Session) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if s.isClosed() {
		return nil, session.ErrClosed
	}
	stop := s.closeOnCancel(ctx, s.client)
	defer stop()

	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, session.Classify("searching unseen", err)
	}

	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	slices.Sort(uids)
	return uids, nil
}

// Fetch downloads the envelope and up to MaxBodySize bytes of the body.
// The body is fetched with PEEK so the message stays unread.
func (s *Session) Fetch(ctx context.Context, uid uint32) (*session.Message, error) {
	if s.isClosed() {
		return nil, session.ErrClosed
	}
	stop := s.closeOnCancel(ctx, s.client)
	defer stop()

	bodySection := &imap.FetchItemBodySection{
		Peek:    true,
		Partial: &imap.SectionPartial{Offset: 0, Size: MaxBodySize},
	}
	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		if err := fetchCmd.Close(); err != nil {
			return nil, session.Classify(fmt.Sprintf("fetching UID %d", uid), err)
		}
		return nil, &session.ProtocolError{
			Op:  fmt.Sprintf("fetching UID %d", uid),
			Err: fmt.Errorf("message not found"),
		}
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, session.Classify(fmt.Sprintf("collecting UID %d", uid), err)
	}

	out := messageFromBuffer(buf)
	out.UID = uid
	out.Body = buf.FindBodySection(bodySection)

	if err := fetchCmd.Close(); err != nil {
		return out, session.Classify(fmt.Sprintf("fetching UID %d", uid), err)
	}
	return out, nil
}

// Idle waits on folder using a dedicated connection, opened on first use
// and kept until Close. It returns nil once a change has been reported or
// after IdleRefresh, so the caller can issue the next wait.
func (s *Session) Idle(ctx context.Context, folder string, onChange func()) error {
	c, err := s.idleConn(ctx, folder)
	if err != nil {
		return err
	}
	stop := s.closeOnCancel(ctx, c)
	defer stop()

	idleCmd, err := c.Idle()
	if err != nil {
		return session.Classify("starting idle", err)
	}

	done := make(chan error, 1)
	go func() { done <- idleCmd.Wait() }()

	timer := time.NewTimer(IdleRefresh)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return session.Classify("idle", err)
		}
		return nil
	case <-ctx.Done():
		_ = idleCmd.Close()
		return ctx.Err()
	case <-s.changes:
		onChange()
	case <-timer.C:
	}

	if err := idleCmd.Close(); err != nil {
		return session.Classify("ending idle", err)
	}
	if err := <-done; err != nil {
		return session.Classify("idle", err)
	}
	return nil
}

// idleConn returns the IDLE connection, dialing it and examining folder
// the first time.
func (s *Session) idleConn(ctx context.Context, folder string) (*imapclient.Client, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, session.ErrClosed
	}
	if s.idleClient != nil {
		c, current := s.idleClient, s.idleFolder
		s.mu.Unlock()
		if current != folder {
			if err := examine(c, folder); err != nil {
				return nil, err
			}
			s.mu.Lock()
			s.idleFolder = folder
			s.mu.Unlock()
		}
		return c, nil
	}
	s.mu.Unlock()

	handler := &imapclient.UnilateralDataHandler{
		Expunge: func(uint32) { s.notifyChange() },
		Mailbox: func(data *imapclient.UnilateralDataMailbox) {
			if data.NumMessages != nil {
				s.notifyChange()
			}
		},
	}
	c, err := s.dialer.connect(ctx, s.params, s.log, handler)
	if err != nil {
		return nil, err
	}

	stop := s.closeOnCancel(ctx, c)
	err = examine(c, folder)
	stop()
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = c.Close()
		return nil, session.ErrClosed
	}
	s.idleClient = c
	s.idleFolder = folder
	return c, nil
}

func (s *Session) notifyChange() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Close logs out of both connections. It never blocks for longer than a
// few seconds.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	idle := s.idleClient
	s.idleClient = nil
	s.mu.Unlock()

	if idle != nil {
		_ = idle.Close()
	}
	return logout(s.client)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// closeOnCancel closes c when ctx is done, unblocking any pending command.
// The returned func detaches the hook.
func (s *Session) closeOnCancel(ctx context.Context, c *imapclient.Client) func() {
	stop := context.AfterFunc(ctx, func() {
		s.log.Debug().Msg("context done, closing connection")
		_ = c.Close()
	})
	return func() { stop() }
}

func logout(c *imapclient.Client) error {
	done := make(chan error, 1)
	go func() { done <- c.Logout().Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(logoutTimeout):
		err = fmt.Errorf("logout timed out after %s", logoutTimeout)
	}
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	return err
}

// messageFromBuffer converts the fetched envelope. Cc and Bcc recipients are
// folded into To.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) *session.Message {
	msg := &session.Message{UID: uint32(buf.UID)}

	env := buf.Envelope
	if env == nil {
		return msg
	}

	msg.Subject = env.Subject
	msg.Date = env.Date
	msg.From = addresses(env.From)
	for _, list := range [][]imap.Address{env.To, env.Cc, env.Bcc} {
		msg.To = append(msg.To, addresses(list)...)
	}
	return msg
}

func addresses(list []imap.Address) []session.Address {
	out := make([]session.Address, 0, len(list))
	for _, a := range list {
		if a.IsGroupStart() || a.IsGroupEnd() {
			continue
		}
		out = append(out, session.Address{Name: a.Name, Email: a.Addr()})
	}
	return out
}
