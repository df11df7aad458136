// Package payments defines the common gateway adapter contract. One adapter
// exists per payment method; each translates an internal request into a
// vendor API call and normalizes the response into a Charge.
package payments

import (
	"context"
	"errors"
	"time"
)

// ErrGateway wraps any vendor-side failure. Raw vendor detail stays in the
// wrapped error for logs; handlers surface only a generic message.
var ErrGateway = errors.New("payments: gateway error")

// ChargeStatus is the normalized status of an initiated charge.
type ChargeStatus string

const (
	// StatusPending: confirmation arrives out-of-band (webhook or poll).
	StatusPending ChargeStatus = "pending"
	// StatusApproved: the gateway settled synchronously (card).
	StatusApproved ChargeStatus = "approved"
	// StatusRejected: the gateway declined the charge.
	StatusRejected ChargeStatus = "rejected"
)

// Request carries everything an adapter needs to initiate a charge.
type Request struct {
	Amount      float64
	Description string
	OrderID     string
	PayerEmail  string
	PayerName   string
	PayerCPF    string

	// Card only: a pre-tokenized card reference from the client (never raw
	// card data) and the requested installment count, capped and validated
	// by the gateway itself.
	CardToken    string
	Installments int
}

// Charge is the normalized result of initiating a payment. Only the fields
// relevant to the method are set.
type Charge struct {
	PaymentID string
	Status    ChargeStatus

	// PIX
	QRCode       string
	QRCodeBase64 string
	ExpiresAt    time.Time

	// Crypto
	ChargeURL string

	// Boleto
	Barcode   string
	BoletoURL string
}

// Gateway initiates a charge for one payment method.
type Gateway interface {
	Initiate(ctx context.Context, req Request) (Charge, error)
}

// Refunder is implemented by gateways that support server-side refunds.
// Refund failures are logged, never block the local status update.
type Refunder interface {
	Refund(ctx context.Context, paymentID string) error
}

// StatusChecker is implemented by gateways whose charges can be polled.
type StatusChecker interface {
	Status(ctx context.Context, paymentID string) (ChargeStatus, error)
}
