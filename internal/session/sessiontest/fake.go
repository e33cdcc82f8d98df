// Package sessiontest provides an in-memory mail store for tests.
package sessiontest

import (
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/nhle/mail-notifier/internal/session"
)

// Server is an in-memory mail store. It implements session.Dialer.
type Server struct {
	mu       gosync.Mutex
	folders  map[string]map[uint32]*session.Message
	password string

	dialErr     error
	fetchErrs   map[uint32]error
	searchPanic any
	idlePanic   any
	blockCh    chan struct{}
	blockedCnt int

	dials  int
	open   map[*Session]struct{}
	idlers map[chan struct{}]string
	nextID int
}

// NewServer creates a server with an empty INBOX and All Mail folder.
func NewServer() *Server {
	s := &Server{
		folders:   make(map[string]map[uint32]*session.Message),
		fetchErrs: make(map[uint32]error),
		open:      make(map[*Session]struct{}),
		idlers:    make(map[chan struct{}]string),
	}
	s.AddFolder("INBOX")
	s.AddFolder("[Gmail]/All Mail")
	return s
}

// AddFolder creates an empty folder if it does not exist.
func (s *Server) AddFolder(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[name]; !ok {
		s.folders[name] = make(map[uint32]*session.Message)
	}
}

// SetPassword makes Dial reject any other password with an AuthError.
func (s *Server) SetPassword(pw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = pw
}

// SetDialError makes every Dial fail with err until it is reset with nil.
func (s *Server) SetDialError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialErr = err
}

// SetFetchError makes fetching uid fail with err.
func (s *Server) SetFetchError(uid uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErrs[uid] = err
}

// SetSearchPanic makes SearchUnseen panic with v until it is reset with nil.
func (s *Server) SetSearchPanic(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchPanic = v
}

// SetIdlePanic makes Idle panic with v until it is reset with nil.
func (s *Server) SetIdlePanic(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idlePanic = v
}

// Put adds an unread message to folder, creating the folder if needed.
func (s *Server) Put(folder string, msg *session.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[folder]; !ok {
		s.folders[folder] = make(map[uint32]*session.Message)
	}
	s.folders[folder][msg.UID] = msg
}

// MarkRead removes the message from the unread set.
func (s *Server) MarkRead(folder string, uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.folders[folder], uid)
}

// Block makes SearchUnseen hang, ignoring its context, until the returned
// function is called.
func (s *Server) Block() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.blockCh = ch
	var once gosync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.blockCh == ch {
				s.blockCh = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Blocked returns the number of calls currently hanging in SearchUnseen.
func (s *Server) Blocked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockedCnt
}

// Notify wakes every session idling on folder.
func (s *Server) Notify(folder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, f := range s.idlers {
		if f == folder {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Idlers returns the number of sessions currently idling.
func (s *Server) Idlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idlers)
}

// Dials returns the number of successful and failed Dial calls.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// OpenSessions returns the number of sessions not yet closed.
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

// Dial opens a session.
func (s *Server) Dial(ctx context.Context, p session.Params) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++

	if err := ctx.Err(); err != nil {
		return nil, &session.ConnectivityError{Op: "dial", Err: err}
	}
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	if s.password != "" && p.Password != s.password {
		return nil, &session.AuthError{Username: p.Username, Err: fmt.Errorf("invalid credentials")}
	}

	s.nextID++
	sess := &Session{server: s, id: fmt.Sprintf("fake-%d", s.nextID), closed: make(chan struct{})}
	s.open[sess] = struct{}{}
	return sess, nil
}

// Session is a fake session bound to a Server.
type Session struct {
	server *Server
	id     string

	mu       gosync.Mutex
	folder   string
	closed   chan struct{}
	isClosed bool
}

func (c *Session) ID() string { return c.id }

func (c *Session) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return session.ErrClosed
	}
	return nil
}

func (c *Session) Examine(ctx context.Context, folder string) error {
	if err := c.check(); err != nil {
		return err
	}
	s := c.server
	s.mu.Lock()
	_, ok := s.folders[folder]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", folder, session.ErrFolderNotFound)
	}
	c.mu.Lock()
	c.folder = folder
	c.mu.Unlock()
	return nil
}

func (c *Session) SearchUnseen(ctx context.Context) ([]uint32, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	s := c.server

	s.mu.Lock()
	if v := s.searchPanic; v != nil {
		s.mu.Unlock()
		panic(v)
	}
	block := s.blockCh
	if block != nil {
		s.blockedCnt++
	}
	s.mu.Unlock()
	if block != nil {
		<-block
		s.mu.Lock()
		s.blockedCnt--
		s.mu.Unlock()
	}

	c.mu.Lock()
	folder := c.folder
	c.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	uids := make([]uint32, 0, len(s.folders[folder]))
	for uid := range s.folders[folder] {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids, nil
}

func (c *Session) Fetch(ctx context.Context, uid uint32) (*session.Message, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	folder := c.folder
	c.mu.Unlock()

	s := c.server
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fetchErrs[uid]; err != nil {
		return nil, err
	}
	msg, ok := s.folders[folder][uid]
	if !ok {
		return nil, &session.ProtocolError{Op: "fetch", Err: fmt.Errorf("no message %d", uid)}
	}
	out := *msg
	return &out, nil
}

func (c *Session) Idle(ctx context.Context, folder string, onChange func()) error {
	if err := c.check(); err != nil {
		return err
	}
	s := c.server
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if v := s.idlePanic; v != nil {
		s.mu.Unlock()
		panic(v)
	}
	s.idlers[ch] = folder
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.idlers, ch)
		s.mu.Unlock()
	}()

	select {
	case <-ch:
		onChange()
		return nil
	case <-c.closed:
		return session.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Session) Close() error {
	c.mu.Lock()
	if c.isClosed {
		c.mu.Unlock()
		return nil
	}
	c.isClosed = true
	close(c.closed)
	c.mu.Unlock()

	c.server.mu.Lock()
	delete(c.server.open, c)
	c.server.mu.Unlock()
	return nil
}

// Message builds a plain-text message.
func Message(uid uint32, from, subject, body string) *session.Message {
	return &session.Message{
		UID:     uid,
		From:    []session.Address{{Email: from}},
		To:      []session.Address{{Name: "Me", Email: "me@example.com"}},
		Subject: subject,
		Date:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Body:    []byte("Content-Type: text/plain; charset=utf-8\r\n\r\n" + body),
	}
}
