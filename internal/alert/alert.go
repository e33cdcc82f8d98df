// Package alert defines the notification outputs driven by the checker.
package alert

import "github.com/nhle/mail-notifier/internal/model"

// Sink is an alert output such as a chime or a blinking LED. Calls must
// return quickly; implementations do their work asynchronously.
type Sink interface {
	// Trigger fires the alert once.
	Trigger()

	// Start begins a repeating alert.
	Start()

	// Stop ends a repeating alert. Stopping an idle sink is a no-op.
	Stop()

	// Test fires the alert once for the user to preview.
	Test()
}

// Popup is a sink that can also display messages.
type Popup interface {
	Sink

	// Show displays mail of one account that the user has not seen in a
	// popup yet, oldest first.
	Show(accountID int, mails []model.MailSummary)
}

// ErrorIndicator is implemented by tray sinks that can show that some
// account is failing.
type ErrorIndicator interface {
	SetError(failing bool)
}

// Sinks groups the alert outputs. Nil fields are treated as Nop.
type Sinks struct {
	Tray  Sink
	Popup Popup
	Chime Sink
	Bell  Sink
	LED   Sink
}

// WithDefaults returns a copy of s with nil fields replaced by Nop.
func (s Sinks) WithDefaults() Sinks {
	if s.Tray == nil {
		s.Tray = Nop{}
	}
	if s.Popup == nil {
		s.Popup = Nop{}
	}
	if s.Chime == nil {
		s.Chime = Nop{}
	}
	if s.Bell == nil {
		s.Bell = Nop{}
	}
	if s.LED == nil {
		s.LED = Nop{}
	}
	return s
}

// StopAll stops every sink.
func (s Sinks) StopAll() {
	s.Tray.Stop()
	s.Popup.Stop()
	s.Chime.Stop()
	s.Bell.Stop()
	s.LED.Stop()
}

// TestAll fires every sink once so the user can preview them.
func (s Sinks) TestAll() {
	s.Tray.Test()
	s.Popup.Test()
	s.Chime.Test()
	s.Bell.Test()
	s.LED.Test()
}

// Nop is a sink that does nothing.
type Nop struct{}

func (Nop) Trigger() {}
func (Nop) Start() {}
func (Nop) Stop() {}
func (Nop) Test() {}
func (Nop) Show(int, []model.MailSummary) {}
