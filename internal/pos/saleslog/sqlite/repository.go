// Package sqlite provides a SQLite-backed implementation of
// saleslog.Repository.
//
// WAL mode is enabled on Open so readers never block writers: the controller
// appends entries while the local status endpoint may be reading history.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jcmexdev/pos-terminal/internal/pos/saleslog"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// which keeps cross-compiling for till hardware painless.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup. The table is append-only:
// each row is an immutable event in a ticket's lifecycle.
const schema = `
CREATE TABLE IF NOT EXISTS sale_logs (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Ticket identifier: one sale in progress on this till.
    ticket_id      TEXT NOT NULL,

    -- Lifecycle transition recorded by this row.
    status         TEXT NOT NULL,

    -- JSON payload describing the transition (item, checkout items, receipt).
    detail         TEXT NOT NULL DEFAULT '',

    -- Error text on FAILED rows.
    error_message  TEXT NOT NULL DEFAULT '',

    -- W3C trace_id / span_id from the active OTel span, for joining a log
    -- row with the backend-call trace it belongs to.
    trace_id       TEXT NOT NULL DEFAULT '',
    span_id        TEXT NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, the SQLite idiom.
    at             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sale_logs_ticket_id ON sale_logs(ticket_id, at);
CREATE INDEX IF NOT EXISTS idx_sale_logs_trace_id  ON sale_logs(trace_id);
`

// Repository is the SQLite implementation of saleslog.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at the given path, creating parent
// directories as needed, and applies the schema.
func Open(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir %q: %w", dir, err)
		}
	}

	// WAL enables concurrent readers; busy_timeout waits for locks instead
	// of failing immediately.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

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

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts a new sale log entry. Safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *saleslog.Entry) error {
	const q = `
		INSERT INTO sale_logs
			(ticket_id, status, detail, error_message, trace_id, span_id, at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.TicketID,
		string(entry.Status),
		entry.Detail,
		entry.ErrorMessage,
		entry.TraceID,
		entry.SpanID,
		entry.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save sale log for %q: %w", entry.TicketID, err)
	}
	return nil
}

// History returns all entries for a ticket in chronological order.
func (r *Repository) History(ctx context.Context, ticketID string) ([]saleslog.Entry, error) {
	const q = `
		SELECT ticket_id, status, detail, error_message, trace_id, span_id, at
		FROM   sale_logs
		WHERE  ticket_id = ?
		ORDER  BY at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, q, ticketID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history for %q: %w", ticketID, err)
	}
	defer rows.Close()

	var entries []saleslog.Entry
	for rows.Next() {
		var entry saleslog.Entry
		var at string
		if err := rows.Scan(
			&entry.TicketID,
			&entry.Status,
			&entry.Detail,
			&entry.ErrorMessage,
			&entry.TraceID,
			&entry.SpanID,
			&at,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan sale log row: %w", err)
		}
		entry.At, err = parseRFC3339(at)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate sale log rows: %w", err)
	}
	return entries, nil
}

// parseRFC3339 parses the timestamp strings stored in SQLite. SQLite has no
// native datetime type; we store RFC3339 TEXT.
func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
