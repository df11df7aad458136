// Package notification creates in-app notifications. Creation is
// best-effort: callers on the settlement path must not fail because a
// notification row could not be written.
package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification for the bell UI.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
)

type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      Type
	Link      string
	Read      bool
	CreatedAt time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a notification for the user.
func (r *Repository) Create(ctx context.Context, userID, title, message string, typ Type, link string) error {
	if typ == "" {
		typ = TypeInfo
	}
	const q = `
		INSERT INTO notifications (id, user_id, title, message, type, link, read, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), FALSE, $7)`
	if _, err := r.db.ExecContext(ctx, q,
		uuid.NewString(), userID, title, message, string(typ), link, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("notification: create: %w", err)
	}
	return nil
}
