package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/emersion/go-imap/v2"
)

// ErrFolderNotFound is returned by Examine when the folder does not exist.
var ErrFolderNotFound = errors.New("folder not found")

// ErrClosed is returned for calls on a session that has been closed.
var ErrClosed = errors.New("session closed")

// AuthHint explains the most common cause of a login failure.
const AuthHint = "Please check that IMAP access is enabled for your Gmail account " +
	"(Settings > Forwarding and POP/IMAP > IMAP Access), and that your username and password are correct."

// AuthError indicates that the server rejected the credentials.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ConnectivityError indicates that the server could not be reached or the
// connection was lost.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ProtocolError indicates an unexpected server response.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectivityError reports whether err (or any error in its chain) is a
// ConnectivityError.
func IsConnectivityError(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}

// Classify wraps a raw error from op into one of the typed errors above.
// Errors that are already typed, and nil, are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		authErr  *AuthError
		connErr  *ConnectivityError
		protoErr *ProtocolError
	)
	if errors.As(err, &authErr) || errors.As(err, &connErr) || errors.As(err, &protoErr) ||
		errors.Is(err, ErrFolderNotFound) {
		return err
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		if imapErr.Code == imap.ResponseCodeAuthenticationFailed {
			return &AuthError{Err: err}
		}
		return &ProtocolError{Op: op, Err: err}
	}

	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &netErr) || errors.As(err, &opErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectivityError{Op: op, Err: err}
	}

	return &ProtocolError{Op: op, Err: err}
}
