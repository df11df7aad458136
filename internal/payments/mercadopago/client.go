// Package mercadopago is a thin REST client for the Mercado Pago payments
// API, backing the PIX, credit card and boleto adapters.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rodolfot/ebooks/internal/payments"
)

const defaultBaseURL = "https://api.mercadopago.com"

// pixExpiry is the QR-code window communicated to the buyer. Confirmation
// still arrives via webhook; the window is not enforced server-side.
const pixExpiry = 30 * time.Minute

// Client calls the Mercado Pago payments API.
type Client struct {
	baseURL     string
	accessToken string
	notifyURL   string
	httpClient  *http.Client
}

func NewClient(accessToken, notifyURL string) *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		accessToken: accessToken,
		notifyURL:   notifyURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// paymentRequest is the vendor wire shape for POST /v1/payments.
type paymentRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id,omitempty"`
	Token             string  `json:"token,omitempty"`
	Installments      int     `json:"installments,omitempty"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
	Payer             payer   `json:"payer"`
}

type payer struct {
	Email          string          `json:"email"`
	FirstName      string          `json:"first_name,omitempty"`
	LastName       string          `json:"last_name,omitempty"`
	Identification *identification `json:"identification,omitempty"`
}

type identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

// paymentResponse is the subset of the vendor response the adapters need.
type paymentResponse struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	DateOfExpiration   string `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
	} `json:"transaction_details"`
	Barcode struct {
		Content string `json:"content"`
	} `json:"barcode"`
}

func (c *Client) createPayment(ctx context.Context, body paymentRequest) (*paymentResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("mercadopago: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	// The payments API requires an idempotency key; a fresh UUID per charge
	// attempt matches the SDK behaviour.
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	return c.do(req)
}

// GetStatus polls a payment and normalizes its status.
func (c *Client) Status(ctx context.Context, paymentID string) (payments.ChargeStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return "", fmt.Errorf("mercadopago: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	return normalizeStatus(resp.Status), nil
}

// Refund issues a full refund for a payment.
func (c *Client) Refund(ctx context.Context, paymentID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments/"+paymentID+"/refunds", bytes.NewReader([]byte("{}")))
	if err != nil {
		return fmt.Errorf("mercadopago: build refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Idempotency-Key", uuid.NewString())

	if _, err := c.do(req); err != nil {
		return err
	}
	return nil
}

func (c *Client) do(req *http.Request) (*paymentResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: mercadopago: %v", payments.ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: mercadopago: read response: %v", payments.ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: mercadopago: status %d", payments.ErrGateway, resp.StatusCode)
	}

	var out paymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: mercadopago: decode response: %v", payments.ErrGateway, err)
	}
	return &out, nil
}

func normalizeStatus(vendor string) payments.ChargeStatus {
	switch vendor {
	case "approved":
		return payments.StatusApproved
	case "rejected", "cancelled":
		return payments.StatusRejected
	default:
		// pending, in_process, authorized, ...
		return payments.StatusPending
	}
}

// splitName splits a display name into the first/last fields the vendor
// payer shape expects.
func splitName(name string) (first, last string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Cliente", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// digitsOnly strips CPF punctuation before it goes on the wire.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
