package auditlog

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Repository is the port for persisting log entries. The sink depends on
// this abstraction, not on SQLite directly, so tests can use an in-memory
// implementation.
type Repository interface {
	// Save appends a row; the table is an audit log, not an upsert.
	Save(ctx context.Context, entry *Entry) error
}

// Sink records entries fire-and-forget: a failed write is itself logged and
// swallowed, never surfaced to the business flow that produced the event.
// A nil *Sink is safe to use and records nothing.
type Sink struct {
	repo Repository
}

func NewSink(repo Repository) *Sink {
	return &Sink{repo: repo}
}

// Record stamps the entry with trace info and the current time, then saves
// it. Safe to call on a nil sink.
func (s *Sink) Record(ctx context.Context, entry Entry) {
	if s == nil || s.repo == nil {
		return
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		entry.TraceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		entry.SpanID = sc.SpanID().String()
	}
	entry.CreatedAt = time.Now().UTC()

	if err := s.repo.Save(ctx, &entry); err != nil {
		slog.ErrorContext(ctx, "failed to write activity log",
			"action", entry.Action,
			"resource", entry.Resource,
			"resource_id", entry.ResourceID,
			"error", err,
		)
	}
}
