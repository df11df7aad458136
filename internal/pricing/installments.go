package pricing

import (
	"fmt"
	"math"
)

const (
	// DefaultMaxInstallments caps the installment count offered to the
	// buyer; the gateway applies its own cap on top.
	DefaultMaxInstallments = 12
	// minInstallmentValue stops the plan once a single installment would
	// fall below this amount.
	minInstallmentValue = 10.0
)

// InstallmentOption is one row of an installment plan.
type InstallmentOption struct {
	Installments int     `json:"installments"`
	Value        float64 `json:"value"`
	Total        float64 `json:"total"`
}

// Installments returns the plans available for a price: 1..max installments,
// stopping once a multi-installment value would drop below the minimum.
// Per-installment values are rounded to cents; the total is not inflated
// (interest-free plans only).
func Installments(price float64, maxInstallments int) []InstallmentOption {
	if maxInstallments <= 0 {
		maxInstallments = DefaultMaxInstallments
	}

	var options []InstallmentOption
	for i := 1; i <= maxInstallments; i++ {
		value := price / float64(i)
		if i > 1 && value < minInstallmentValue {
			break
		}
		options = append(options, InstallmentOption{
			Installments: i,
			Value:        math.Round(value*100) / 100,
			Total:        price,
		})
	}
	return options
}

// InstallmentLabel renders the storefront "ou 12x de R$ 9,99" hint, or ""
// when the price is too low to offer more than one installment.
func InstallmentLabel(price float64) string {
	if price < 20 {
		return ""
	}
	options := Installments(price, DefaultMaxInstallments)
	last := options[len(options)-1]
	if last.Installments <= 1 {
		return ""
	}
	return fmt.Sprintf("ou %dx de R$ %.2f", last.Installments, last.Value)
}
