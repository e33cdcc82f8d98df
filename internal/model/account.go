package model

import (
	"strings"
	"time"
)

// MaxLabels is the number of label slots an account can watch.
const MaxLabels = 6

// Status is the connection state of an account as shown to the user.
type Status int

const (
	StatusDisabled Status = iota
	StatusLoggingIn
	StatusChecking
	StatusWaiting
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusLoggingIn:
		return "Logging in"
	case StatusChecking:
		return "Checking mail"
	case StatusWaiting:
		return "Waiting for next mail check"
	case StatusError:
		return "Error"
	}
	return "Unknown"
}

// NotifyMode selects which folders an account monitors.
type NotifyMode string

const (
	NotifyInbox  NotifyMode = "inbox"
	NotifyAny    NotifyMode = "any"
	NotifyLabels NotifyMode = "labels"
)

// Valid reports whether m is one of the known modes.
func (m NotifyMode) Valid() bool {
	switch m {
	case NotifyInbox, NotifyAny, NotifyLabels:
		return true
	}
	return false
}

// AlertConfig selects the alerts raised when new mail arrives.
type AlertConfig struct {
	Popup        bool `mapstructure:"popup" yaml:"popup"`
	Chime        bool `mapstructure:"chime" yaml:"chime"`
	PeriodicBell bool `mapstructure:"periodic_bell" yaml:"periodic_bell"`
	LED          bool `mapstructure:"led" yaml:"led"`
}

// Names lists the enabled alerts in display order.
func (a AlertConfig) Names() []string {
	var names []string
	if a.Popup {
		names = append(names, "Popup")
	}
	if a.Chime {
		names = append(names, "Chime")
	}
	if a.PeriodicBell {
		names = append(names, "Periodic Bell")
	}
	if a.LED {
		names = append(names, "LED")
	}
	return names
}

// AccountConfig holds the user settings for a single mail account.
type AccountConfig struct {
	// ID is the externally stable account identifier. Zero means "assign one".
	ID int `mapstructure:"id" yaml:"id"`

	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty, in which case it is looked up in the
	// system keyring.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// Enabled controls whether the account is actively checked.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	NotifyMode NotifyMode `mapstructure:"notify_mode" yaml:"notify_mode"`

	// Labels is only consulted in NotifyLabels mode.
	Labels []string `mapstructure:"labels" yaml:"labels"`

	// CheckInterval is the time between scheduled checks.
	CheckInterval time.Duration `mapstructure:"check_interval" yaml:"check_interval"`

	// CheckTimeout is how long a check loop may go without progress before
	// it is replaced.
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`

	Alerts AlertConfig `mapstructure:"alerts" yaml:"alerts"`
}

// DisplayName returns the username, or a placeholder for unnamed accounts.
func (c AccountConfig) DisplayName() string {
	if strings.TrimSpace(c.Username) == "" {
		return "New Account"
	}
	return c.Username
}
