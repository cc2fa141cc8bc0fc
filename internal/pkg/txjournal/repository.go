package txjournal

import "context"

// Repository is the port (interface) for persisting journal entries.
type Repository interface {
	// Save appends a row; the table is an append-only log, not an upsert.
	Save(ctx context.Context, entry *Entry) error
}
