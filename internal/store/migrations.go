package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS account_sequences (
	account_id    INTEGER PRIMARY KEY,
	last_sequence INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mail_log (
	id         TEXT PRIMARY KEY,
	account_id INTEGER NOT NULL,
	sequence   INTEGER NOT NULL,
	folder     TEXT NOT NULL,
	uid        INTEGER NOT NULL,
	sender     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	sent_at    DATETIME NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_mail_log_account_sequence
	ON mail_log(account_id, sequence);

CREATE INDEX IF NOT EXISTS idx_mail_log_created_at
	ON mail_log(created_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
