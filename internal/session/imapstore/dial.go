// Package imapstore implements session.Session on top of go-imap.
package imapstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"strconv"
	"time"

	retry "github.com/StirlingMarketingGroup/go-retry"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"

	"github.com/nhle/mail-notifier/internal/session"
)

const (
	// DialTimeout bounds establishing the TCP connection.
	DialTimeout = 30 * time.Second

	// RetryCount is the number of extra connection attempts. Logins are
	// never retried.
	RetryCount = 2
)

// Dialer opens IMAP sessions over TLS, optionally through a SOCKS5 proxy.
type Dialer struct {
	// TLSConfig is cloned for each connection. ServerName defaults to the
	// server host.
	TLSConfig *tls.Config

	log zerolog.Logger

	// plaintext skips TLS. Only used against local test servers.
	plaintext bool
}

// NewDialer creates a Dialer.
func NewDialer(log zerolog.Logger) *Dialer {
	return &Dialer{log: log.With().Str("component", "imap").Logger()}
}

// Dial connects and logs in. A rejected login is reported as an
// *session.AuthError.
func (d *Dialer) Dial(ctx context.Context, p session.Params) (session.Session, error) {
	s := &Session{
		id:      xid.New().String(),
		dialer:  d,
		params:  p,
		changes: make(chan struct{}, 1),
	}
	s.log = d.log.With().Str("session", s.id).Str("account", p.Username).Logger()

	c, err := d.connect(ctx, p, s.log, nil)
	if err != nil {
		return nil, err
	}
	s.client = c
	return s, nil
}

// connect dials, waits for the greeting and logs in. handler receives
// unilateral mailbox updates when non-nil.
func (d *Dialer) connect(
	ctx context.Context,
	p session.Params,
	log zerolog.Logger,
	handler *imapclient.UnilateralDataHandler,
) (*imapclient.Client, error) {
	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))

	// Retry only the connection establishment, not authentication.
	var conn net.Conn
	err := retry.Retry(func() error {
		var dialErr error
		conn, dialErr = d.dialConn(ctx, p, addr)
		return dialErr
	}, RetryCount, func(err error) error {
		log.Debug().Err(err).Str("addr", addr).Msg("failed to connect, retrying shortly")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}, func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if err != nil {
		return nil, &session.ConnectivityError{Op: "connecting to " + addr, Err: err}
	}

	opts := &imapclient.Options{
		WordDecoder:           &mime.WordDecoder{CharsetReader: charset.Reader},
		UnilateralDataHandler: handler,
	}
	c := imapclient.New(conn, opts)

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.WaitGreeting(); err != nil {
		_ = c.Close()
		return nil, session.Classify("reading greeting from "+addr, err)
	}

	if err := c.Login(p.Username, p.Password).Wait(); err != nil {
		_ = c.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, &session.AuthError{Username: p.Username, Err: err}
		}
		return nil, session.Classify("login", err)
	}

	log.Debug().Str("addr", addr).Msg("logged in")
	return c, nil
}

// dialConn opens the transport connection: direct or via SOCKS5, then TLS.
func (d *Dialer) dialConn(ctx context.Context, p session.Params, addr string) (net.Conn, error) {
	var cd proxy.ContextDialer = &net.Dialer{Timeout: DialTimeout}
	if p.Proxy.Enabled() {
		var auth *proxy.Auth
		if p.Proxy.Username != "" {
			auth = &proxy.Auth{User: p.Proxy.Username, Password: p.Proxy.Password}
		}
		proxyAddr := net.JoinHostPort(p.Proxy.Host, strconv.Itoa(p.Proxy.Port))
		pd, err := proxy.SOCKS5("tcp", proxyAddr, auth, &net.Dialer{Timeout: DialTimeout})
		if err != nil {
			return nil, fmt.Errorf("configuring proxy %s: %w", proxyAddr, err)
		}
		var ok bool
		if cd, ok = pd.(proxy.ContextDialer); !ok {
			return nil, fmt.Errorf("proxy %s: dialer does not support contexts", proxyAddr)
		}
	}

	raw, err := cd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if d.plaintext {
		return raw, nil
	}

	cfg := &tls.Config{}
	if d.TLSConfig != nil {
		cfg = d.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = p.Host
	}
	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tlsConn, nil
}
