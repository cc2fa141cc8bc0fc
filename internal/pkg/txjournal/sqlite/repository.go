// Package sqlite provides a SQLite-backed implementation of txjournal.Repository.
//
// WAL mode is enabled on Open so concurrent request goroutines appending rows
// do not block readers inspecting the journal.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/marketplace-gateway/internal/pkg/txjournal"

	// Register the pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// schema is executed once on startup. Each row is an immutable event in a
// submission's lifecycle; the latest row per submission_id is its state.
const schema = `
CREATE TABLE IF NOT EXISTS tx_journal (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id  TEXT    NOT NULL,
    status         TEXT    NOT NULL,
    method         TEXT    NOT NULL,
    from_account   TEXT    NOT NULL DEFAULT '',
    value          TEXT    NOT NULL DEFAULT '0',
    gas            INTEGER NOT NULL DEFAULT 0,
    tx_hash        TEXT    NOT NULL DEFAULT '',
    error          TEXT,
    request_id     TEXT    NOT NULL DEFAULT '',
    trace_id       TEXT    NOT NULL DEFAULT '',
    span_id        TEXT    NOT NULL DEFAULT '',
    updated_at     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tx_journal_submission ON tx_journal(submission_id, id);
CREATE INDEX IF NOT EXISTS idx_tx_journal_tx_hash ON tx_journal(tx_hash);
`

// ErrNotFound is returned when no row matches a lookup.
var ErrNotFound = errors.New("sqlite: journal entry not found")

// Repository is the SQLite implementation of txjournal.Repository.
type Repository struct {
	db *sql.DB
}

var _ txjournal.Repository = (*Repository)(nil)

// Open opens (or creates) the SQLite database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/tx-journal.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	// Use "sqlite", not "sqlite3" for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save appends a journal row. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *txjournal.Entry) error {
	const q = `
		INSERT INTO tx_journal
			(submission_id, status, method, from_account, value, gas, tx_hash, error,
			 request_id, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SubmissionID,
		string(entry.Status),
		entry.Method,
		entry.From,
		entry.Value,
		int64(entry.Gas),
		entry.TxHash,
		nullableString(entry.Error),
		entry.RequestID,
		entry.TraceID,
		entry.SpanID,
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save journal entry for %q: %w", entry.SubmissionID, err)
	}
	return nil
}

// Latest returns the most recent row for a submission.
func (r *Repository) Latest(ctx context.Context, submissionID string) (*txjournal.Entry, error) {
	const q = `
		SELECT submission_id, status, method, from_account, value, gas, tx_hash,
		       COALESCE(error, ''), request_id, trace_id, span_id, updated_at
		FROM   tx_journal
		WHERE  submission_id = ?
		ORDER  BY id DESC
		LIMIT  1`
	entries, err := r.query(ctx, q, submissionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: submission %q", ErrNotFound, submissionID)
	}
	return entries[0], nil
}

// History returns every row written for a submission, oldest first.
func (r *Repository) History(ctx context.Context, submissionID string) ([]*txjournal.Entry, error) {
	const q = `
		SELECT submission_id, status, method, from_account, value, gas, tx_hash,
		       COALESCE(error, ''), request_id, trace_id, span_id, updated_at
		FROM   tx_journal
		WHERE  submission_id = ?
		ORDER  BY id ASC`
	return r.query(ctx, q, submissionID)
}

func (r *Repository) query(ctx context.Context, q string, args ...any) ([]*txjournal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query journal: %w", err)
	}
	defer rows.Close()

	var out []*txjournal.Entry
	for rows.Next() {
		var (
			entry     txjournal.Entry
			gas       int64
			updatedAt string
		)
		if err := rows.Scan(
			&entry.SubmissionID,
			&entry.Status,
			&entry.Method,
			&entry.From,
			&entry.Value,
			&gas,
			&entry.TxHash,
			&entry.Error,
			&entry.RequestID,
			&entry.TraceID,
			&entry.SpanID,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan journal row: %w", err)
		}
		entry.Gas = uint64(gas)
		if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

// nullableString returns nil for empty strings so SQLite stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
