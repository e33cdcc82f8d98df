// Package credential keeps account passwords in the system keyring so that
// they never have to be written to the configuration file.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"

	"github.com/nhle/mail-notifier/internal/model"
)

const serviceName = "mailnotify"

// ErrNotFound is returned when no password is stored for an account.
var ErrNotFound = keyring.ErrKeyNotFound

// Keyring stores account passwords.
type Keyring struct {
	ring keyring.Keyring
}

// Open opens the system keyring, falling back to an encrypted file.
func Open() (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailnotify/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailnotify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return New(ring), nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// passwordKey is the keyring key for an account's password. Usernames are
// case-insensitive.
func passwordKey(username string) string {
	return "password:" + strings.ToLower(strings.TrimSpace(username))
}

// Password returns the stored password for username.
func (k *Keyring) Password(username string) (string, error) {
	item, err := k.ring.Get(passwordKey(username))
	if err != nil {
		return "", fmt.Errorf("getting password for %q: %w", username, err)
	}
	return string(item.Data), nil
}

// SetPassword stores the password for username.
func (k *Keyring) SetPassword(username, password string) error {
	err := k.ring.Set(keyring.Item{
		Key:         passwordKey(username),
		Data:        []byte(password),
		Label:       "Mail notifier: " + username,
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting password for %q: %w", username, err)
	}
	return nil
}

// DeletePassword removes the password for username. Removing a missing
// password is not an error.
func (k *Keyring) DeletePassword(username string) error {
	err := k.ring.Remove(passwordKey(username))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting password for %q: %w", username, err)
	}
	return nil
}

// ResolvePasswords fills in the password of every account that has none
// configured. It returns the usernames for which no password was found.
func (k *Keyring) ResolvePasswords(accounts []model.AccountConfig) ([]string, error) {
	var missing []string
	for i := range accounts {
		acct := &accounts[i]
		if acct.Password != "" || strings.TrimSpace(acct.Username) == "" {
			continue
		}
		pw, err := k.Password(acct.Username)
		switch {
		case errors.Is(err, ErrNotFound):
			missing = append(missing, acct.Username)
		case err != nil:
			return missing, err
		default:
			acct.Password = pw
		}
	}
	return missing, nil
}
