// Package saleslog defines the durable audit trail of a sale in progress.
//
// Every transition a ticket goes through (opened, items added and removed,
// checkout started, settled or failed) is appended as an immutable entry.
// It serves two purposes:
//
//  1. Observability: the local status endpoint can show exactly what
//     happened on a till, and the trace_id field links each row to the
//     distributed trace of the backend calls it triggered.
//
//  2. Dispute resolution: when a cashier reports "the sale vanished", the
//     log answers whether the checkout failed, was cancelled, or never
//     happened.
package saleslog

import "time"

// Status is one lifecycle transition of a ticket.
type Status string

const (
	StatusOpened          Status = "OPENED"
	StatusItemAdded       Status = "ITEM_ADDED"
	StatusItemRemoved     Status = "ITEM_REMOVED"
	StatusCheckoutStarted Status = "CHECKOUT_STARTED"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusCancelled       Status = "CANCELLED"
)

// Entry is a single row in the sale_logs table: a point-in-time snapshot of
// a ticket's lifecycle.
type Entry struct {
	// TicketID identifies one sale in progress, assigned when the first
	// item lands in the cart.
	TicketID string

	// Status is the transition this entry records.
	Status Status

	// Detail is a JSON payload describing the transition: the item added,
	// the checkout items, the settled receipt.
	Detail string

	// ErrorMessage is set on FAILED entries.
	ErrorMessage string

	// TraceID and SpanID come from the OpenTelemetry span active when the
	// entry was written, so a log row can be joined with its trace.
	TraceID string
	SpanID  string

	// At is the wall-clock time of this entry.
	At time.Time
}
