package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists coupons and coupon usages in PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByCode loads a coupon by its unique code, or ErrNotFound.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	const q = `
		SELECT id, code, discount_type, discount_value,
		       COALESCE(max_uses, 0), used_count, COALESCE(min_purchase, 0),
		       expires_at, active, created_at
		FROM coupons
		WHERE code = $1`

	var c Coupon
	var discountType string
	var expiresAt sql.NullTime
	err := r.db.QueryRowContext(ctx, q, code).Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue,
		&c.MaxUses, &c.UsedCount, &c.MinPurchase,
		&expiresAt, &c.Active, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("coupon: get by code: %w", err)
	}
	c.DiscountType = DiscountType(discountType)
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return &c, nil
}

// RedeemForOrder increments the coupon's used count and records the usage
// row in one transaction. Called exactly once per order, by the settlement
// pipeline on the winning transition into PAID — never at order-creation
// time, so abandoned and failed payments do not consume the coupon.
func (r *Repository) RedeemForOrder(ctx context.Context, couponID, userID, orderID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("coupon: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const bump = `UPDATE coupons SET used_count = used_count + 1 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, bump, couponID); err != nil {
		return fmt.Errorf("coupon: increment used count: %w", err)
	}

	const usage = `
		INSERT INTO coupon_usages (id, coupon_id, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, usage,
		uuid.NewString(), couponID, userID, orderID, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("coupon: insert usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("coupon: commit redeem: %w", err)
	}
	committed = true
	return nil
}

// CreateReferralReward mints the referrer's reward coupon: 15% off, single
// use, 30-day expiry, code REF-<referrer prefix>-<base36 timestamp>.
func (r *Repository) CreateReferralReward(ctx context.Context, referrerID string) (*Coupon, error) {
	now := time.Now().UTC()
	prefix := referrerID
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	expires := now.Add(30 * 24 * time.Hour)
	c := &Coupon{
		ID:            uuid.NewString(),
		Code:          fmt.Sprintf("REF-%s-%s", strings.ToUpper(prefix), strconv.FormatInt(now.UnixMilli(), 36)),
		DiscountType:  Percentage,
		DiscountValue: 15,
		MaxUses:       1,
		ExpiresAt:     &expires,
		Active:        true,
		CreatedAt:     now,
	}

	const q = `
		INSERT INTO coupons
			(id, code, discount_type, discount_value, max_uses, used_count,
			 min_purchase, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8)`
	if _, err := r.db.ExecContext(ctx, q,
		c.ID, c.Code, string(c.DiscountType), c.DiscountValue,
		c.MaxUses, c.ExpiresAt, c.Active, c.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("coupon: create referral reward: %w", err)
	}
	return c, nil
}
