package mercadopago

import (
	"context"
	"fmt"
	"time"

	"github.com/rodolfot/ebooks/internal/payments"
)

// PixAdapter initiates PIX charges. The returned status is always pending:
// confirmation arrives out-of-band via webhook or poll.
type PixAdapter struct {
	client *Client
}

func NewPixAdapter(c *Client) *PixAdapter { return &PixAdapter{client: c} }

func (a *PixAdapter) Initiate(ctx context.Context, req payments.Request) (payments.Charge, error) {
	expires := time.Now().UTC().Add(pixExpiry)
	body := paymentRequest{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.OrderID,
		NotificationURL:   a.client.notifyURL,
		DateOfExpiration:  expires.Format("2006-01-02T15:04:05.000-07:00"),
		Payer:             payerFrom(req),
	}

	resp, err := a.client.createPayment(ctx, body)
	if err != nil {
		return payments.Charge{}, err
	}

	return payments.Charge{
		PaymentID:    fmt.Sprintf("%d", resp.ID),
		Status:       payments.StatusPending,
		QRCode:       resp.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64: resp.PointOfInteraction.TransactionData.QRCodeBase64,
		ExpiresAt:    expires,
	}, nil
}

func payerFrom(req payments.Request) payer {
	p := payer{Email: req.PayerEmail}
	if cpf := digitsOnly(req.PayerCPF); cpf != "" {
		p.Identification = &identification{Type: "CPF", Number: cpf}
	}
	return p
}

// CardAdapter charges a pre-tokenized card. Authorization is synchronous, so
// the returned status may already be final.
type CardAdapter struct {
	client *Client
}

func NewCardAdapter(c *Client) *CardAdapter { return &CardAdapter{client: c} }

func (a *CardAdapter) Initiate(ctx context.Context, req payments.Request) (payments.Charge, error) {
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}
	body := paymentRequest{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		Token:             req.CardToken,
		Installments:      installments,
		ExternalReference: req.OrderID,
		NotificationURL:   a.client.notifyURL,
		Payer:             payerFrom(req),
	}

	resp, err := a.client.createPayment(ctx, body)
	if err != nil {
		return payments.Charge{}, err
	}

	return payments.Charge{
		PaymentID: fmt.Sprintf("%d", resp.ID),
		Status:    normalizeStatus(resp.Status),
	}, nil
}

// BoletoAdapter issues a bolbradesco boleto. A payer CPF is mandatory;
// settlement may take several business days, so the status is pending.
type BoletoAdapter struct {
	client *Client
}

func NewBoletoAdapter(c *Client) *BoletoAdapter { return &BoletoAdapter{client: c} }

func (a *BoletoAdapter) Initiate(ctx context.Context, req payments.Request) (payments.Charge, error) {
	cpf := digitsOnly(req.PayerCPF)
	if cpf == "" {
		return payments.Charge{}, fmt.Errorf("%w: mercadopago: boleto requires payer CPF", payments.ErrGateway)
	}
	first, last := splitName(req.PayerName)
	body := paymentRequest{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "bolbradesco",
		ExternalReference: req.OrderID,
		NotificationURL:   a.client.notifyURL,
		Payer: payer{
			Email:          req.PayerEmail,
			FirstName:      first,
			LastName:       last,
			Identification: &identification{Type: "CPF", Number: cpf},
		},
	}

	resp, err := a.client.createPayment(ctx, body)
	if err != nil {
		return payments.Charge{}, err
	}

	return payments.Charge{
		PaymentID: fmt.Sprintf("%d", resp.ID),
		Status:    payments.StatusPending,
		Barcode:   resp.Barcode.Content,
		BoletoURL: resp.TransactionDetails.ExternalResourceURL,
	}, nil
}
