package coupon

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a coupon code resolves to nothing.
var ErrNotFound = errors.New("coupon: not found")

// DiscountType discriminates how DiscountValue is interpreted.
type DiscountType string

const (
	// Percentage discounts take DiscountValue percent off the subtotal.
	Percentage DiscountType = "PERCENTAGE"
	// Fixed discounts take DiscountValue off, clamped to the subtotal.
	Fixed DiscountType = "FIXED"
)

// Coupon is a discount code.
type Coupon struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue float64
	MaxUses       int // 0 means unlimited
	UsedCount     int
	MinPurchase   float64 // 0 means no threshold
	ExpiresAt     *time.Time
	Active        bool
	CreatedAt     time.Time
}

// EligibleFor reports whether the coupon may be applied to a cart with the
// given subtotal: active, not expired, under its max-use ceiling, and the
// subtotal meets the minimum purchase threshold. Evaluated once, at checkout
// time; the resulting discount is frozen onto the order.
func (c *Coupon) EligibleFor(subtotal float64, now time.Time) bool {
	if c == nil || !c.Active {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	if c.MaxUses > 0 && c.UsedCount >= c.MaxUses {
		return false
	}
	if c.MinPurchase > 0 && subtotal < c.MinPurchase {
		return false
	}
	return true
}

// DiscountOn computes the discount amount for the given subtotal. Fixed
// discounts never exceed the subtotal, so the resulting total never goes
// negative.
func (c *Coupon) DiscountOn(subtotal float64) float64 {
	switch c.DiscountType {
	case Percentage:
		return subtotal * (c.DiscountValue / 100)
	case Fixed:
		return min(c.DiscountValue, subtotal)
	}
	return 0
}
