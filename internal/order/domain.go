package order

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an order id or payment id resolves to nothing.
	ErrNotFound = errors.New("order: not found")
	// ErrInvalidTransition is returned when a status change is not on the
	// lifecycle graph (e.g. CANCELLED -> PAID, or refunding an unpaid order).
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// Status is the lifecycle state of an order.
//
// The only edges are:
//
//	PENDING    -> PROCESSING, PAID, CANCELLED
//	PROCESSING -> PAID, CANCELLED
//	PAID       -> REFUNDED
//
// REFUNDED and CANCELLED are terminal. No edge re-enters an earlier state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPaid       Status = "PAID"
	StatusRefunded   Status = "REFUNDED"
	StatusCancelled  Status = "CANCELLED"
)

// CanTransitionTo reports whether the edge s -> next is on the lifecycle graph.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusPaid || next == StatusCancelled
	case StatusProcessing:
		return next == StatusPaid || next == StatusCancelled
	case StatusPaid:
		return next == StatusRefunded
	case StatusRefunded, StatusCancelled:
		return false
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusRefunded || s == StatusCancelled
}

// PaymentMethod identifies how the buyer pays.
type PaymentMethod string

const (
	MethodPix        PaymentMethod = "PIX"
	MethodCreditCard PaymentMethod = "CREDIT_CARD"
	MethodCrypto     PaymentMethod = "CRYPTO"
	MethodBoleto     PaymentMethod = "BOLETO"
	MethodFreeCoupon PaymentMethod = "FREE_COUPON"
)

// Valid reports whether m is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodCreditCard, MethodCrypto, MethodBoleto, MethodFreeCoupon:
		return true
	}
	return false
}

// Item is one line of an order. Price is copied from the catalog at purchase
// time so later catalog changes never alter historical orders.
type Item struct {
	EbookID string
	Title   string
	Price   float64
}

// Order is a single checkout attempt.
type Order struct {
	ID            string
	UserID        string
	Status        Status
	PaymentMethod PaymentMethod
	Total         float64
	Discount      float64
	CouponID      string // empty when no coupon was applied
	PaymentID     string // external gateway payment id, empty until initiated

	// Customer contact snapshot, captured at order time and independent of
	// later profile edits.
	CustomerEmail string
	CustomerName  string
	CustomerCPF   string

	Items     []Item
	CreatedAt time.Time
	PaidAt    *time.Time
}

// Reference is the short human-facing order reference used in descriptions,
// email subjects and notifications.
func (o *Order) Reference() string {
	if len(o.ID) < 8 {
		return o.ID
	}
	return o.ID[:8]
}
