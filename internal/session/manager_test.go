package session_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
	"github.com/nhle/mail-notifier/internal/session/sessiontest"
)

func newManager(d session.Dialer) *session.Manager {
	return session.NewManager(d, model.ServerConfig{
		Host:           "imap.example.com",
		Port:           993,
		UsernameSuffix: "@gmail.com",
	}, model.ProxyConfig{}, zerolog.Nop())
}

func TestNormalizeUsername(t *testing.T) {
	m := newManager(sessiontest.NewServer())
	assert.Equal(t, "alice@gmail.com", m.NormalizeUsername("alice"))
	assert.Equal(t, "alice@gmail.com", m.NormalizeUsername(" alice "))
	assert.Equal(t, "bob@corp.example", m.NormalizeUsername("bob@corp.example"))
	assert.Equal(t, "", m.NormalizeUsername(""))
}

func TestConnectPassesNormalizedParams(t *testing.T) {
	var got session.Params
	d := session.DialerFunc(func(ctx context.Context, p session.Params) (session.Session, error) {
		got = p
		return sessiontest.NewServer().Dial(ctx, p)
	})

	s, err := newManager(d).Connect(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "alice@gmail.com", got.Username)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, "imap.example.com", got.Host)
	assert.Equal(t, 993, got.Port)
}

func TestConnectAuthFailure(t *testing.T) {
	srv := sessiontest.NewServer()
	srv.SetPassword("right")

	_, err := newManager(srv).Connect(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, session.IsAuthError(err))

	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "alice@gmail.com", authErr.Username)
	assert.NotContains(t, err.Error(), "wrong")
}

func TestConnectClassifiesRawErrors(t *testing.T) {
	d := session.DialerFunc(func(context.Context, session.Params) (session.Session, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	})
	_, err := newManager(d).Connect(context.Background(), "alice", "pw")
	assert.True(t, session.IsConnectivityError(err))
}

func TestCloseIsAsyncAndNilSafe(t *testing.T) {
	srv := sessiontest.NewServer()
	m := newManager(srv)

	m.Close(nil)

	s, err := m.Connect(context.Background(), "alice", "pw")
	require.NoError(t, err)
	require.Equal(t, 1, srv.OpenSessions())

	m.Close(s)
	require.Eventually(t, func() bool { return srv.OpenSessions() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClassify(t *testing.T) {
	authFailed := &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCodeAuthenticationFailed, Text: "nope"}
	tryLater := &imap.Error{Type: imap.StatusResponseTypeNo, Code: imap.ResponseCode("UNAVAILABLE"), Text: "later"}

	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"auth code", authFailed, session.IsAuthError},
		{"other imap error", tryLater, func(err error) bool {
			var p *session.ProtocolError
			return errors.As(err, &p)
		}},
		{"eof", io.ErrUnexpectedEOF, session.IsConnectivityError},
		{"deadline", fmt.Errorf("wrapped: %w", context.DeadlineExceeded), session.IsConnectivityError},
		{"closed", session.ErrClosed, session.IsConnectivityError},
		{"folder missing unchanged", session.ErrFolderNotFound, func(err error) bool {
			return err == session.ErrFolderNotFound
		}},
		{"plain", errors.New("boom"), func(err error) bool {
			var p *session.ProtocolError
			return errors.As(err, &p)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(session.Classify("op", tt.err)))
		})
	}

	assert.NoError(t, session.Classify("op", nil))

	typed := &session.AuthError{Username: "a", Err: errors.New("x")}
	assert.Same(t, typed, session.Classify("op", typed))
}
