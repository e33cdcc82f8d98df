package model

import (
	"fmt"
	"time"
)

// MailIdentity identifies a message by the folder it was found in and its
// provider-assigned UID. UIDs are only unique within a folder.
type MailIdentity struct {
	Folder string
	UID    uint32
}

// String returns "folder#uid".
func (id MailIdentity) String() string {
	return fmt.Sprintf("%s#%d", id.Folder, id.UID)
}

// MailSummary is the lightweight, immutable view of one unread message.
type MailSummary struct {
	// AccountID is the owning account.
	AccountID int `json:"account_id"`

	// ID locates the message on the server.
	ID MailIdentity `json:"id"`

	// Sequence is assigned locally when the message is first seen and is
	// strictly increasing per account.
	Sequence int64 `json:"sequence"`

	From    string    `json:"from"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet"`
}

// String returns a one-line description used in logs.
func (m MailSummary) String() string {
	return fmt.Sprintf("[FROM] %s [TO] %s [SUBJECT] %s [DATE] %s",
		m.From, m.To, m.Subject, m.Date.Format(time.RFC1123Z))
}

// CompareMail orders summaries by account and then by sequence number.
func CompareMail(a, b MailSummary) int {
	switch {
	case a.AccountID < b.AccountID:
		return -1
	case a.AccountID > b.AccountID:
		return 1
	case a.Sequence < b.Sequence:
		return -1
	case a.Sequence > b.Sequence:
		return 1
	}
	return 0
}
