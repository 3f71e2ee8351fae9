package saleslog

import "context"

// Repository is the port for persisting sale log entries. The controller
// depends on this abstraction, not on SQLite directly, so the implementation
// can be swapped for Postgres or an in-memory fake in tests.
type Repository interface {
	// Save appends a new entry; the log is append-only, never upserted.
	Save(ctx context.Context, entry *Entry) error

	// History returns all entries for a ticket in chronological order.
	History(ctx context.Context, ticketID string) ([]Entry, error)
}
