package history

type migration struct {
	version int
	sql     string
}

// Versions must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id                 TEXT PRIMARY KEY,
	started_at         DATETIME NOT NULL,
	finished_at        DATETIME NOT NULL,
	window_start       DATETIME NOT NULL,
	window_end         DATETIME NOT NULL,
	mailboxes          TEXT NOT NULL DEFAULT '',
	result             TEXT NOT NULL,
	records            INTEGER NOT NULL DEFAULT 0,
	duplicates         INTEGER NOT NULL DEFAULT 0,
	folders_visited    INTEGER NOT NULL DEFAULT 0,
	folders_skipped    INTEGER NOT NULL DEFAULT 0,
	folders_unreadable INTEGER NOT NULL DEFAULT 0,
	wrong_class        INTEGER NOT NULL DEFAULT 0,
	no_timestamp       INTEGER NOT NULL DEFAULT 0,
	before_start       INTEGER NOT NULL DEFAULT 0,
	after_end          INTEGER NOT NULL DEFAULT 0,
	identity_dups      INTEGER NOT NULL DEFAULT 0,
	artifact           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_records (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	entry_id    TEXT NOT NULL,
	store_id    TEXT NOT NULL,
	mailbox     TEXT NOT NULL,
	folder_path TEXT NOT NULL,
	sent_on     DATETIME NOT NULL,
	sender      TEXT NOT NULL DEFAULT '',
	behalf_of   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL,
	word_count  INTEGER NOT NULL DEFAULT 0,
	recipients  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_run_records_entry ON run_records(entry_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
