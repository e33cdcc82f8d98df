package session

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/model"
)

// Manager connects accounts to the configured server.
type Manager struct {
	dialer Dialer
	server model.ServerConfig
	proxy  model.ProxyConfig
	log    zerolog.Logger
}

// NewManager creates a Manager that opens sessions through dialer.
func NewManager(dialer Dialer, server model.ServerConfig, proxy model.ProxyConfig, log zerolog.Logger) *Manager {
	return &Manager{
		dialer: dialer,
		server: server,
		proxy:  proxy,
		log:    log.With().Str("component", "session").Logger(),
	}
}

// NormalizeUsername appends the default domain to usernames without one.
func (m *Manager) NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	if username == "" || strings.Contains(username, "@") {
		return username
	}
	return username + m.server.UsernameSuffix
}

// Connect opens and authenticates a new session. The returned error is an
// *AuthError, a *ConnectivityError or a *ProtocolError.
func (m *Manager) Connect(ctx context.Context, username, password string) (Session, error) {
	user := m.NormalizeUsername(username)
	log := m.log.With().Str("account", user).Logger()
	log.Debug().Str("host", m.server.Host).Int("port", m.server.Port).Msg("connecting")

	s, err := m.dialer.Dial(ctx, Params{
		Host:     m.server.Host,
		Port:     m.server.Port,
		Username: user,
		Password: password,
		Proxy:    m.proxy,
	})
	if err != nil {
		err = Classify("login", err)
		if IsAuthError(err) {
			if authErr, ok := err.(*AuthError); ok && authErr.Username == "" {
				authErr.Username = user
			}
		}
		log.Debug().Err(err).Msg("connect failed")
		return nil, err
	}

	log.Debug().Str("session", s.ID()).Msg("connected")
	return s, nil
}

// Close closes s in the background. Errors are logged and otherwise
// ignored. A nil session is a no-op.
func (m *Manager) Close(s Session) {
	if s == nil {
		return
	}
	go func() {
		if err := s.Close(); err != nil {
			m.log.Debug().Err(err).Str("session", s.ID()).Msg("close failed")
		}
	}()
}
