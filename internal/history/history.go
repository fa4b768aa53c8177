// Package history keeps a SQLite log of past runs and the records they
// exported.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tracyhatemice/gomailstat/internal/record"
)

// Run is one recorded execution.
type Run struct {
	ID                string    `db:"id"`
	StartedAt         time.Time `db:"started_at"`
	FinishedAt        time.Time `db:"finished_at"`
	WindowStart       time.Time `db:"window_start"`
	WindowEnd         time.Time `db:"window_end"`
	Mailboxes         string    `db:"mailboxes"`
	Result            string    `db:"result"`
	Records           int       `db:"records"`
	Duplicates        int       `db:"duplicates"`
	FoldersVisited    int       `db:"folders_visited"`
	FoldersSkipped    int       `db:"folders_skipped"`
	FoldersUnreadable int       `db:"folders_unreadable"`
	WrongClass        int       `db:"wrong_class"`
	NoTimestamp       int       `db:"no_timestamp"`
	BeforeStart       int       `db:"before_start"`
	AfterEnd          int       `db:"after_end"`
	IdentityDups      int       `db:"identity_dups"`
	Artifact          string    `db:"artifact"`
}

// Entry is one exported record of a run.
type Entry struct {
	RunID      string    `db:"run_id"`
	Seq        int       `db:"seq"`
	EntryID    string    `db:"entry_id"`
	StoreID    string    `db:"store_id"`
	Mailbox    string    `db:"mailbox"`
	FolderPath string    `db:"folder_path"`
	SentOn     time.Time `db:"sent_on"`
	Sender     string    `db:"sender"`
	BehalfOf   string    `db:"behalf_of"`
	Subject    string    `db:"subject"`
	WordCount  int       `db:"word_count"`
	Recipients string    `db:"recipients"`
}

// Store is a run history database.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// In-memory databases exist per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	current := 0

	var tables int
	err := s.db.Get(&tables, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tables > 0 {
		if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// RecordRun stores run and its exported records in one transaction. An
// empty run ID is replaced by a new UUID, which is returned.
func (s *Store) RecordRun(ctx context.Context, run Run, records []record.MailRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	run.WindowStart = run.WindowStart.UTC()
	run.WindowEnd = run.WindowEnd.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, finished_at, window_start, window_end,
			mailboxes, result, records, duplicates,
			folders_visited, folders_skipped, folders_unreadable,
			wrong_class, no_timestamp, before_start, after_end,
			identity_dups, artifact
		) VALUES (
			:id, :started_at, :finished_at, :window_start, :window_end,
			:mailboxes, :result, :records, :duplicates,
			:folders_visited, :folders_skipped, :folders_unreadable,
			:wrong_class, :no_timestamp, :before_start, :after_end,
			:identity_dups, :artifact
		)`, run)
	if err != nil {
		return "", fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO run_records (
			run_id, seq, entry_id, store_id, mailbox, folder_path,
			sent_on, sender, behalf_of, subject, word_count, recipients
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			run.ID, i, r.EntryID, r.StoreID, r.Mailbox, r.FolderPath,
			r.SentOn.UTC(), r.Sender, r.BehalfOf, r.Subject, r.WordCount, r.Recipients,
		)
		if err != nil {
			return "", fmt.Errorf("inserting record %s: %w", r.EntryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// Runs returns the most recent runs first, at most limit when limit > 0.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT * FROM runs ORDER BY started_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// Entries returns the records of a run in export order.
func (s *Store) Entries(ctx context.Context, runID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM run_records WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("querying records of run %s: %w", runID, err)
	}
	return entries, nil
}
