// Package message turns fetched messages into mail summaries.
package message

import (
	"strings"
	"time"

	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
)

// NoSubject is shown for messages without a subject.
const NoSubject = "(no subject)"

// Summarize builds the summary of msg. A nil msg, as left by a failed
// fetch, still yields a summary so that the message is counted.
func Summarize(accountID int, id model.MailIdentity, seq int64, msg *session.Message, now time.Time) model.MailSummary {
	sum := model.MailSummary{
		AccountID: accountID,
		ID:        id,
		Sequence:  seq,
		Subject:   NoSubject,
		Date:      now,
	}
	if msg == nil {
		return sum
	}

	sum.From = FormatAddresses(msg.From)
	sum.To = FormatAddresses(msg.To)
	if s := strings.TrimSpace(msg.Subject); s != "" {
		sum.Subject = s
	}
	if !msg.Date.IsZero() {
		sum.Date = msg.Date
	}
	sum.Snippet = Snippet(msg.Body)
	return sum
}

// FormatAddresses joins addresses with "; ", preferring display names.
func FormatAddresses(list []session.Address) string {
	parts := make([]string, 0, len(list))
	for _, a := range list {
		switch {
		case a.Name != "":
			parts = append(parts, a.Name)
		case a.Email != "":
			parts = append(parts, a.Email)
		}
	}
	return strings.Join(parts, "; ")
}
