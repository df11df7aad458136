package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateInput carries everything needed to persist a new PENDING order.
type CreateInput struct {
	UserID        string
	PaymentMethod PaymentMethod
	Total         float64
	Discount      float64
	CouponID      string
	CustomerEmail string
	CustomerName  string
	CustomerCPF   string
	Items         []Item
}

// Create inserts the order and its items in one transaction. Every order is
// born PENDING; item prices are the caller's snapshot of catalog prices.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("order: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Status:        StatusPending,
		PaymentMethod: in.PaymentMethod,
		Total:         in.Total,
		Discount:      in.Discount,
		CouponID:      in.CouponID,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
		CustomerCPF:   in.CustomerCPF,
		Items:         in.Items,
		CreatedAt:     time.Now().UTC(),
	}

	const insertOrder = `
		INSERT INTO orders
			(id, user_id, status, payment_method, total, discount, coupon_id,
			 customer_email, customer_name, customer_cpf, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`

	if _, err := tx.ExecContext(ctx, insertOrder,
		o.ID, o.UserID, string(o.Status), string(o.PaymentMethod),
		o.Total, o.Discount, o.CouponID,
		o.CustomerEmail, o.CustomerName, o.CustomerCPF, o.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("order: insert order: %w", err)
	}

	const insertItem = `
		INSERT INTO order_items (id, order_id, ebook_id, title, price)
		VALUES ($1, $2, $3, $4, $5)`

	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, insertItem,
			uuid.NewString(), o.ID, it.EbookID, it.Title, it.Price,
		); err != nil {
			return nil, fmt.Errorf("order: insert item %s: %w", it.EbookID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("order: commit: %w", err)
	}
	committed = true
	return o, nil
}

// Get returns the order and its items, or ErrNotFound.
func (r *Repository) Get(ctx context.Context, id string) (*Order, error) {
	return r.getBy(ctx, "id", id)
}

// GetByPaymentID resolves the order attached to an external gateway payment
// id. Used by webhook and poll handlers to correlate confirmations.
func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (*Order, error) {
	return r.getBy(ctx, "payment_id", paymentID)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (*Order, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, status, payment_method, total, discount,
		       COALESCE(coupon_id, ''), COALESCE(payment_id, ''),
		       customer_email, customer_name, COALESCE(customer_cpf, ''),
		       created_at, paid_at
		FROM orders
		WHERE %s = $1`, column)

	var o Order
	var status, method string
	var paidAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&o.ID, &o.UserID, &status, &method, &o.Total, &o.Discount,
		&o.CouponID, &o.PaymentID,
		&o.CustomerEmail, &o.CustomerName, &o.CustomerCPF,
		&o.CreatedAt, &paidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("order: get by %s: %w", column, err)
	}
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}

	items, err := r.items(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *Repository) items(ctx context.Context, orderID string) ([]Item, error) {
	const q = `SELECT ebook_id, title, price FROM order_items WHERE order_id = $1`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.EbookID, &it.Title, &it.Price); err != nil {
			return nil, fmt.Errorf("order: scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AttachPayment records the gateway payment id and moves the order from
// PENDING to PROCESSING. Used by the async methods (PIX, crypto, boleto) and
// by card charges that were not approved synchronously.
func (r *Repository) AttachPayment(ctx context.Context, orderID, paymentID string) error {
	const q = `
		UPDATE orders SET payment_id = $2, status = $3
		WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, q, orderID, paymentID,
		string(StatusProcessing), string(StatusPending))
	if err != nil {
		return fmt.Errorf("order: attach payment: %w", err)
	}
	return oneRowOr(res, ErrInvalidTransition)
}

// AttachPaymentID stores the gateway payment id without a status change.
// Used for synchronously approved card charges, where MarkPaid follows.
func (r *Repository) AttachPaymentID(ctx context.Context, orderID, paymentID string) error {
	const q = `UPDATE orders SET payment_id = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, q, orderID, paymentID); err != nil {
		return fmt.Errorf("order: attach payment id: %w", err)
	}
	return nil
}

// MarkPaid performs the PENDING/PROCESSING -> PAID transition as a single
// conditional update and reports whether this caller won it. A webhook and a
// client poll racing for the same order both call this; exactly one gets
// won == true and runs the settlement fan-out. paid_at is set once, here,
// and never cleared.
func (r *Repository) MarkPaid(ctx context.Context, orderID string) (won bool, err error) {
	const q = `
		UPDATE orders SET status = $2, paid_at = $3
		WHERE id = $1 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, q, orderID,
		string(StatusPaid), time.Now().UTC(),
		string(StatusPending), string(StatusProcessing))
	if err != nil {
		return false, fmt.Errorf("order: mark paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("order: mark paid rows: %w", err)
	}
	return n == 1, nil
}

// MarkCancelled cancels an order that has not reached PAID. Terminal.
func (r *Repository) MarkCancelled(ctx context.Context, orderID string) error {
	const q = `
		UPDATE orders SET status = $2
		WHERE id = $1 AND status IN ($3, $4)`
	res, err := r.db.ExecContext(ctx, q, orderID,
		string(StatusCancelled), string(StatusPending), string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("order: mark cancelled: %w", err)
	}
	return oneRowOr(res, ErrInvalidTransition)
}

// MarkRefunded performs PAID -> REFUNDED. Terminal, admin-only path.
func (r *Repository) MarkRefunded(ctx context.Context, orderID string) error {
	const q = `UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, q, orderID,
		string(StatusRefunded), string(StatusPaid))
	if err != nil {
		return fmt.Errorf("order: mark refunded: %w", err)
	}
	return oneRowOr(res, ErrInvalidTransition)
}

// CountPaidByUser counts the user's PAID orders. The settlement pipeline
// calls it after the order's own transition so a first purchase counts
// itself and yields exactly 1.
func (r *Repository) CountPaidByUser(ctx context.Context, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2`
	var n int
	if err := r.db.QueryRowContext(ctx, q, userID, string(StatusPaid)).Scan(&n); err != nil {
		return 0, fmt.Errorf("order: count paid: %w", err)
	}
	return n, nil
}

func oneRowOr(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("order: rows affected: %w", err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
