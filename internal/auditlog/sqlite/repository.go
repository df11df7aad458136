// Package sqlite provides a SQLite-backed implementation of
// auditlog.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa — the settlement path writes while the admin log endpoint reads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/rodolfot/ebooks/internal/auditlog"

	// Register the pure-Go SQLite driver. modernc.org/sqlite avoids CGO,
	// keeping Alpine/Docker builds simple.
	_ "modernc.org/sqlite"
)

// schema is the DDL executed once on startup. The table is append-only:
// each row is an immutable event.
const schema = `
CREATE TABLE IF NOT EXISTS activity_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,

    -- Attributed user, '' when no user context was available.
    user_id         TEXT        NOT NULL DEFAULT '',

    action          TEXT        NOT NULL,
    resource        TEXT        NOT NULL,
    resource_id     TEXT        NOT NULL DEFAULT '',
    description     TEXT        NOT NULL DEFAULT '',
    error_message   TEXT        NOT NULL DEFAULT '',

    -- W3C trace/span ids from the active OTel span, for jumping from a log
    -- row to the distributed trace.
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, SQLite idiom.
    created_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_logs_user ON activity_logs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_activity_logs_resource ON activity_logs(resource, resource_id);
CREATE INDEX IF NOT EXISTS idx_activity_logs_trace ON activity_logs(trace_id);
`

// Repository is the SQLite implementation of auditlog.Repository.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

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

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts a new log entry. Safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *auditlog.Entry) error {
	const q = `
		INSERT INTO activity_logs
			(user_id, action, resource, resource_id, description, error_message,
			 trace_id, span_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.UserID,
		string(entry.Action),
		string(entry.Resource),
		entry.ResourceID,
		entry.Description,
		entry.ErrorMessage,
		entry.TraceID,
		entry.SpanID,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save activity log: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (r *Repository) List(ctx context.Context, f auditlog.Filter) ([]auditlog.Entry, error) {
	q := `
		SELECT user_id, action, resource, resource_id, description,
		       error_message, trace_id, span_id, created_at
		FROM activity_logs
		WHERE 1=1`
	var args []any
	if f.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Action != "" {
		q += ` AND action = ?`
		args = append(args, string(f.Action))
	}
	if f.Resource != "" {
		q += ` AND resource = ?`
		args = append(args, string(f.Resource))
	}
	q += ` ORDER BY created_at DESC, id DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list activity logs: %w", err)
	}
	defer rows.Close()

	var entries []auditlog.Entry
	for rows.Next() {
		var e auditlog.Entry
		var action, resource, createdAt string
		if err := rows.Scan(
			&e.UserID, &action, &resource, &e.ResourceID, &e.Description,
			&e.ErrorMessage, &e.TraceID, &e.SpanID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan activity log: %w", err)
		}
		e.Action = auditlog.Action(action)
		e.Resource = auditlog.Resource(resource)
		e.CreatedAt, err = parseRFC3339(createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ExportCSV streams entries matching the filter as CSV, for the admin
// export button.
func (r *Repository) ExportCSV(ctx context.Context, f auditlog.Filter, w io.Writer) error {
	entries, err := r.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"created_at", "user_id", "action", "resource", "resource_id", "description", "error_message", "trace_id"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("sqlite: write csv header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.CreatedAt.Format(time.RFC3339),
			e.UserID,
			string(e.Action),
			string(e.Resource),
			e.ResourceID,
			e.Description,
			e.ErrorMessage,
			e.TraceID,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("sqlite: write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func parseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}
