package catalog

import "errors"

// ErrUnavailable is returned when a cart references an e-book that does not
// exist or is not currently published. The whole lookup fails; no partial
// carts.
var ErrUnavailable = errors.New("catalog: ebook not found or unavailable")

// EbookStatus is the publication state of a catalog entry.
type EbookStatus string

const (
	StatusDraft     EbookStatus = "DRAFT"
	StatusPublished EbookStatus = "PUBLISHED"
	StatusArchived  EbookStatus = "ARCHIVED"
)

// Ebook is the slice of a catalog entry the checkout flow needs.
type Ebook struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Price      float64     `json:"price"`
	Status     EbookStatus `json:"status"`
	SalesCount int         `json:"sales_count"`
}
