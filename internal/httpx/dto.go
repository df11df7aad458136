package httpx

import "time"

type CheckoutItemDTO struct {
	EbookID string  `json:"ebookId" validate:"required"`
	Price   float64 `json:"price" validate:"gte=0"`
}

type CheckoutRequest struct {
	Items         []CheckoutItemDTO `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,oneof=PIX CREDIT_CARD CRYPTO BOLETO FREE_COUPON"`
	CouponCode    string            `json:"couponCode"`
	CustomerEmail string            `json:"customerEmail" validate:"omitempty,email"`
	CustomerName  string            `json:"customerName"`
	CustomerCPF   string            `json:"customerCpf"`
	CardToken     string            `json:"cardToken"`
	Installments  int               `json:"installments" validate:"omitempty,min=1,max=12"`
}

// CheckoutResponse is method-specific: only the fields relevant to the
// chosen payment method are populated.
type CheckoutResponse struct {
	OrderID       string     `json:"orderId"`
	PaymentMethod string     `json:"paymentMethod"`
	Status        string     `json:"status,omitempty"`
	QRCode        string     `json:"qrCode,omitempty"`
	QRCodeBase64  string     `json:"qrCodeBase64,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ChargeURL     string     `json:"chargeUrl,omitempty"`
	Barcode       string     `json:"barcode,omitempty"`
	BoletoURL     string     `json:"boletoUrl,omitempty"`
}

type OrderItemDTO struct {
	EbookID string  `json:"ebookId"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
}

type OrderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PaymentMethod string         `json:"paymentMethod"`
	Total         float64        `json:"total"`
	Discount      float64        `json:"discount"`
	Items         []OrderItemDTO `json:"items"`
	CreatedAt     time.Time      `json:"createdAt"`
	PaidAt        *time.Time     `json:"paidAt,omitempty"`
}

type OrderStatusResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type DownloadResponse struct {
	EbookID string `json:"ebookId"`
	Format  string `json:"format"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
