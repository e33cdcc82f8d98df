package imapstore

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/session"
)

const (
	testUser     = "alice@example.com"
	testPassword = "secret"
)

type testServer struct {
	params session.Params
	user   *imapmemserver.User
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	mem := imapmemserver.New()
	user := imapmemserver.NewUser(testUser, testPassword)
	require.NoError(t, user.Create("INBOX", nil))
	require.NoError(t, user.Create("[Gmail]/All Mail", nil))
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
		InsecureAuth: true,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	addr := ln.Addr().(*net.TCPAddr)
	return &testServer{
		params: session.Params{
			Host:     "127.0.0.1",
			Port:     addr.Port,
			Username: testUser,
			Password: testPassword,
		},
		user: user,
	}
}

func (ts *testServer) appendMessage(t *testing.T, folder, from, subject string, flags ...imap.Flag) {
	t.Helper()
	require.NoError(t, ts.appendRaw(folder, from, subject, flags...))
}

func (ts *testServer) appendRaw(folder, from, subject string, flags ...imap.Flag) error {
	raw := strings.Join([]string{
		"From: " + from,
		"To: Alice <alice@example.com>",
		"Cc: bob@example.com",
		"Subject: " + subject,
		"Date: Mon, 02 Jan 2006 15:04:05 +0000",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hello there, this is the body.",
		"",
	}, "\r\n")
	_, err := ts.user.Append(folder, bytes.NewReader([]byte(raw)), &imap.AppendOptions{Flags: flags})
	return err
}

func testDialer() *Dialer {
	d := NewDialer(zerolog.Nop())
	d.plaintext = true
	return d
}

func TestDialSearchAndFetch(t *testing.T) {
	ts := startServer(t)
	ts.appendMessage(t, "INBOX", "Carol <carol@example.com>", "first")
	ts.appendMessage(t, "INBOX", "dave@example.com", "already read", imap.FlagSeen)
	ts.appendMessage(t, "INBOX", "Erin <erin@example.com>", "second")

	ctx := context.Background()
	s, err := testDialer().Dial(ctx, ts.params)
	require.NoError(t, err)
	defer s.Close()
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.Examine(ctx, "INBOX"))
	uids, err := s.SearchUnseen(ctx)
	require.NoError(t, err)
	require.Len(t, uids, 2)
	assert.Less(t, uids[0], uids[1])

	msg, err := s.Fetch(ctx, uids[0])
	require.NoError(t, err)
	assert.Equal(t, uids[0], msg.UID)
	assert.Equal(t, "first", msg.Subject)
	require.Len(t, msg.From, 1)
	assert.Equal(t, "Carol", msg.From[0].Name)
	assert.Equal(t, "carol@example.com", msg.From[0].Email)
	assert.Len(t, msg.To, 2)
	assert.Equal(t, 2006, msg.Date.Year())

	// Fetching must not mark the message as read.
	again, err := s.SearchUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, uids, again)
}

func TestExamineMissingFolder(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	s, err := testDialer().Dial(ctx, ts.params)
	require.NoError(t, err)
	defer s.Close()

	err = s.Examine(ctx, "no-such-label")
	require.ErrorIs(t, err, session.ErrFolderNotFound)
}

func TestDialRejectsBadPassword(t *testing.T) {
	ts := startServer(t)
	p := ts.params
	p.Password = "wrong"

	_, err := testDialer().Dial(context.Background(), p)
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err), "got %v", err)
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = testDialer().Dial(context.Background(), session.Params{Host: "127.0.0.1", Port: port})
	require.Error(t, err)
	assert.True(t, session.IsConnectivityError(err), "got %v", err)
}

func TestIdleReportsNewMessages(t *testing.T) {
	ts := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := testDialer().Dial(ctx, ts.params)
	require.NoError(t, err)
	defer s.Close()

	changed := make(chan struct{}, 1)
	idleErr := make(chan error, 1)
	go func() {
		idleErr <- s.Idle(ctx, "[Gmail]/All Mail", func() {
			changed <- struct{}{}
		})
	}()

	require.Eventually(t, func() bool {
		_ = ts.appendRaw("[Gmail]/All Mail", "frank@example.com", "ping")
		select {
		case <-changed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 200*time.Millisecond)

	select {
	case err := <-idleErr:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("idle did not return after a change")
	}
}

func TestClosedSessionRejectsCalls(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	s, err := testDialer().Dial(ctx, ts.params)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Examine(ctx, "INBOX"), session.ErrClosed)
	_, err = s.SearchUnseen(ctx)
	assert.ErrorIs(t, err, session.ErrClosed)
	assert.ErrorIs(t, s.Idle(ctx, "INBOX", func() {}), session.ErrClosed)
}
