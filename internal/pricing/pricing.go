// Package pricing computes cart totals, coupon discounts and installment
// plans. Everything here is pure: callers may quote a cart any number of
// times (e.g. a preview before confirming payment) without consuming coupon
// uses or touching storage.
package pricing

import (
	"time"

	"github.com/rodolfot/ebooks/internal/coupon"
)

// LineItem is one cart line resolved against the catalog.
type LineItem struct {
	EbookID string
	Price   float64
}

// Quote is the result of pricing a cart.
type Quote struct {
	Subtotal float64
	Discount float64
	Total    float64
}

// QuoteCart prices the cart. c may be nil (no coupon); an ineligible coupon
// contributes no discount rather than failing the quote. The total is
// clamped to a non-negative floor.
func QuoteCart(items []LineItem, c *coupon.Coupon, now time.Time) Quote {
	var subtotal float64
	for _, it := range items {
		subtotal += it.Price
	}

	var discount float64
	if c.EligibleFor(subtotal, now) {
		discount = c.DiscountOn(subtotal)
	}

	return Quote{
		Subtotal: subtotal,
		Discount: discount,
		Total:    max(0, subtotal-discount),
	}
}

// Free reports whether the quote needs no gateway at all.
func (q Quote) Free() bool {
	return q.Total == 0
}
