package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mail-notifier/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" gets its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// LastSequence returns the highest sequence number saved for the account,
// or 0 if none was saved.
func (s *SQLiteStore) LastSequence(ctx context.Context, accountID int) (int64, error) {
	var seq int64
	err := s.db.GetContext(ctx, &seq,
		"SELECT COALESCE(MAX(last_sequence), 0) FROM account_sequences WHERE account_id = ?",
		accountID,
	)
	if err != nil {
		return 0, fmt.Errorf("reading sequence for account %d: %w", accountID, err)
	}
	return seq, nil
}

// SaveSequence records seq for the account. The stored value never
// decreases.
func (s *SQLiteStore) SaveSequence(ctx context.Context, accountID int, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_sequences (account_id, last_sequence, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			last_sequence = MAX(last_sequence, excluded.last_sequence),
			updated_at    = excluded.updated_at`,
		accountID, seq, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving sequence for account %d: %w", accountID, err)
	}
	return nil
}

// LogMail inserts a batch of mail log entries.
func (s *SQLiteStore) LogMail(ctx context.Context, mails []model.MailSummary) error {
	if len(mails) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR IGNORE INTO mail_log (
			id, account_id, sequence, folder, uid,
			sender, subject, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range mails {
		_, err = stmt.ExecContext(ctx,
			uuid.New().String(), m.AccountID, m.Sequence, m.ID.Folder, m.ID.UID,
			m.From, m.Subject, m.Date.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("logging mail %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// RecentMail returns the newest log entries for the account.
func (s *SQLiteStore) RecentMail(ctx context.Context, accountID int, limit int) ([]MailEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []MailEntry
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, account_id, sequence, folder, uid, sender, subject, sent_at, created_at
		FROM mail_log
		WHERE account_id = ?
		ORDER BY sequence DESC
		LIMIT ?`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying mail log for account %d: %w", accountID, err)
	}
	return entries, nil
}

// PruneMail removes log entries older than before.
func (s *SQLiteStore) PruneMail(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM mail_log WHERE created_at < ?", before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning mail log: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// DeleteAccount removes the account's sequence and log entries.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, accountID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM mail_log WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting mail log for account %d: %w", accountID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM account_sequences WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting sequence for account %d: %w", accountID, err)
	}
	return tx.Commit()
}
