package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEligibleFor(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name     string
		coupon   *Coupon
		subtotal float64
		want     bool
	}{
		{
			name:     "nil coupon",
			coupon:   nil,
			subtotal: 100,
			want:     false,
		},
		{
			name:     "active without constraints",
			coupon:   &Coupon{Active: true},
			subtotal: 10,
			want:     true,
		},
		{
			name:     "inactive",
			coupon:   &Coupon{Active: false},
			subtotal: 100,
			want:     false,
		},
		{
			name:     "expired",
			coupon:   &Coupon{Active: true, ExpiresAt: &past},
			subtotal: 100,
			want:     false,
		},
		{
			name:     "expires exactly now",
			coupon:   &Coupon{Active: true, ExpiresAt: &now},
			subtotal: 100,
			want:     false,
		},
		{
			name:     "not yet expired",
			coupon:   &Coupon{Active: true, ExpiresAt: &future},
			subtotal: 100,
			want:     true,
		},
		{
			name:     "max uses exhausted",
			coupon:   &Coupon{Active: true, MaxUses: 3, UsedCount: 3},
			subtotal: 100,
			want:     false,
		},
		{
			name:     "one use remaining",
			coupon:   &Coupon{Active: true, MaxUses: 3, UsedCount: 2},
			subtotal: 100,
			want:     true,
		},
		{
			name:     "zero max uses means unlimited",
			coupon:   &Coupon{Active: true, MaxUses: 0, UsedCount: 9999},
			subtotal: 100,
			want:     true,
		},
		{
			name:     "below minimum purchase",
			coupon:   &Coupon{Active: true, MinPurchase: 50},
			subtotal: 49.99,
			want:     false,
		},
		{
			name:     "minimum purchase met exactly",
			coupon:   &Coupon{Active: true, MinPurchase: 50},
			subtotal: 50,
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.coupon.EligibleFor(tt.subtotal, now))
		})
	}
}

func TestDiscountOn(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal float64
		want     float64
	}{
		{
			name:     "percentage",
			coupon:   Coupon{DiscountType: Percentage, DiscountValue: 10},
			subtotal: 49.90,
			want:     4.99,
		},
		{
			name:     "hundred percent",
			coupon:   Coupon{DiscountType: Percentage, DiscountValue: 100},
			subtotal: 30,
			want:     30,
		},
		{
			name:     "fixed below subtotal",
			coupon:   Coupon{DiscountType: Fixed, DiscountValue: 15},
			subtotal: 40,
			want:     15,
		},
		{
			name:     "fixed clamped to subtotal",
			coupon:   Coupon{DiscountType: Fixed, DiscountValue: 50},
			subtotal: 20,
			want:     20,
		},
		{
			name:     "unknown type yields nothing",
			coupon:   Coupon{DiscountType: "MYSTERY", DiscountValue: 50},
			subtotal: 100,
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.coupon.DiscountOn(tt.subtotal), 1e-9)
		})
	}
}
