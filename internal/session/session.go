// Package session defines the remote mail-store capability used by the
// checking engine and manages connecting to it.
package session

import (
	"context"
	"time"

	"github.com/nhle/mail-notifier/internal/model"
)

// Params describes where and how to connect.
type Params struct {
	Host     string
	Port     int
	Username string
	Password string
	Proxy    model.ProxyConfig
}

// Address is one sender or recipient.
type Address struct {
	Name  string
	Email string
}

// Message is the envelope and (possibly truncated) raw body of one message.
type Message struct {
	UID     uint32
	From    []Address
	To      []Address
	Subject string
	Date    time.Time
	Body    []byte
}

// Session is one authenticated connection to a mail store. A session is
// used for a single check cycle and then closed. Methods other than Close
// are not safe for concurrent use, except Idle which runs on its own
// connection.
type Session interface {
	// ID identifies the session in logs.
	ID() string

	// Examine opens folder read-only. It returns ErrFolderNotFound when the
	// folder does not exist.
	Examine(ctx context.Context, folder string) error

	// SearchUnseen returns the UIDs of messages in the examined folder that
	// lack the \Seen flag, in ascending order.
	SearchUnseen(ctx context.Context) ([]uint32, error)

	// Fetch returns the envelope and body of a message in the examined
	// folder without marking it as seen.
	Fetch(ctx context.Context, uid uint32) (*Message, error)

	// Idle blocks until the server ends the wait, the context is cancelled,
	// or an error occurs. onChange is called whenever messages are added to
	// or removed from folder.
	Idle(ctx context.Context, folder string, onChange func()) error

	// Close releases the session. It is safe to call more than once and
	// from any goroutine.
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, p Params) (Session, error)

// Dial calls f(ctx, p).
func (f DialerFunc) Dial(ctx context.Context, p Params) (Session, error) {
	return f(ctx, p)
}
