package store

import (
	"context"
	"time"

	"github.com/nhle/mail-notifier/internal/model"
)

// MailEntry is one row of the new-mail log.
type MailEntry struct {
	ID        string    `db:"id"`
	AccountID int       `db:"account_id"`
	Sequence  int64     `db:"sequence"`
	Folder    string    `db:"folder"`
	UID       uint32    `db:"uid"`
	Sender    string    `db:"sender"`
	Subject   string    `db:"subject"`
	SentAt    time.Time `db:"sent_at"`
	CreatedAt time.Time `db:"created_at"`
}

// SequenceStore persists the last mail sequence number handed out per
// account, so numbers are never reused across restarts.
type SequenceStore interface {
	LastSequence(ctx context.Context, accountID int) (int64, error)
	SaveSequence(ctx context.Context, accountID int, seq int64) error
}

// Store defines the local persistence used by the checker.
type Store interface {
	SequenceStore

	// LogMail records newly arrived mail.
	LogMail(ctx context.Context, mails []model.MailSummary) error

	// RecentMail returns up to limit log entries for the account, newest
	// first.
	RecentMail(ctx context.Context, accountID int, limit int) ([]MailEntry, error)

	// PruneMail deletes log entries created before the cutoff and returns
	// how many were removed.
	PruneMail(ctx context.Context, before time.Time) (int64, error)

	// DeleteAccount removes everything stored for the account.
	DeleteAccount(ctx context.Context, accountID int) error

	Close() error
}
