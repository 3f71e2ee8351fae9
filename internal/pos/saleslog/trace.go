package saleslog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers extracted from a context.
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// ExtractTraceInfo reads the active OpenTelemetry span from ctx and returns
// its trace_id and span_id as hex strings. Both come back empty when the
// context carries no valid span (unit tests, background timers).
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// NewEntry builds an Entry with the trace info extracted from ctx and the
// detail payload marshalled to JSON. A nil detail stores an empty string.
func NewEntry(ctx context.Context, ticketID string, status Status, detail any, errMsg string) *Entry {
	ti := ExtractTraceInfo(ctx)

	detailJSON := ""
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			detailJSON = string(b)
		}
	}

	return &Entry{
		TicketID:     ticketID,
		Status:       status,
		Detail:       detailJSON,
		ErrorMessage: errMsg,
		TraceID:      ti.TraceID,
		SpanID:       ti.SpanID,
		At:           time.Now().UTC(),
	}
}
