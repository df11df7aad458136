// Package referral tracks referrer -> referred relationships. A row starts
// pending when the referred user registers through a referral link and moves
// to completed, at most once, when their first paid order triggers the
// referrer's reward.
package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("referral: not found")

// Status of a referral row. The only transition is pending -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

type Referral struct {
	ID         string
	ReferrerID string
	ReferredID string
	Status     Status
	CouponID   string // reward coupon, set on completion
	CreatedAt  time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindPendingByReferred returns the pending referral naming the given user
// as the referred party, or ErrNotFound.
func (r *Repository) FindPendingByReferred(ctx context.Context, referredID string) (*Referral, error) {
	const q = `
		SELECT id, referrer_id, referred_id, status, COALESCE(coupon_id, ''), created_at
		FROM referrals
		WHERE referred_id = $1 AND status = $2
		LIMIT 1`

	var ref Referral
	var status string
	err := r.db.QueryRowContext(ctx, q, referredID, string(StatusPending)).Scan(
		&ref.ID, &ref.ReferrerID, &ref.ReferredID, &status, &ref.CouponID, &ref.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("referral: find pending: %w", err)
	}
	ref.Status = Status(status)
	return &ref, nil
}

// Complete marks the referral completed and attaches the reward coupon. The
// update is guarded on the row still being pending, so concurrent settlement
// calls reward at most once.
func (r *Repository) Complete(ctx context.Context, id, couponID string) error {
	const q = `
		UPDATE referrals SET status = $2, coupon_id = $3
		WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, id, string(StatusCompleted), couponID, string(StatusPending))
	if err != nil {
		return fmt.Errorf("referral: complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("referral: complete rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
