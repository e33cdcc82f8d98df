package alert

import (
	"github.com/rs/zerolog"

	"github.com/nhle/mail-notifier/internal/model"
)

// LogSink reports alerts to a logger. It is used in headless mode, where
// there is no desktop to draw on or speaker to play through.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a sink logging under the given alert name.
func NewLogSink(log zerolog.Logger, name string) *LogSink {
	return &LogSink{log: log.With().Str("alert", name).Logger()}
}

func (s *LogSink) Trigger() { s.log.Info().Msg("alert triggered") }
func (s *LogSink) Start() { s.log.Info().Msg("alert started") }
func (s *LogSink) Stop() { s.log.Debug().Msg("alert stopped") }
func (s *LogSink) Test() { s.log.Info().Msg("alert test") }

// SetError logs changes of the overall error state.
func (s *LogSink) SetError(failing bool) {
	if failing {
		s.log.Warn().Msg("an account is failing")
		return
	}
	s.log.Info().Msg("all accounts healthy")
}

// Show logs one line per message.
func (s *LogSink) Show(accountID int, mails []model.MailSummary) {
	for _, m := range mails {
		s.log.Info().
			Int("account_id", accountID).
			Int64("sequence", m.Sequence).
			Str("from", m.From).
			Str("subject", m.Subject).
			Time("date", m.Date).
			Str("snippet", m.Snippet).
			Msg("new mail")
	}
}

// LogSinks returns a full set of logging sinks.
func LogSinks(log zerolog.Logger) Sinks {
	return Sinks{
		Tray:  NewLogSink(log, "tray"),
		Popup: NewLogSink(log, "popup"),
		Chime: NewLogSink(log, "chime"),
		Bell:  NewLogSink(log, "periodic-bell"),
		LED:   NewLogSink(log, "led"),
	}
}
