// Package checkout orchestrates the purchase flow: validate the cart, price
// it, create the order, initiate the payment with the selected gateway
// adapter, and hand confirmed payments to the settlement pipeline.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rodolfot/ebooks/internal/auditlog"
	"github.com/rodolfot/ebooks/internal/catalog"
	"github.com/rodolfot/ebooks/internal/coupon"
	"github.com/rodolfot/ebooks/internal/metrics"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/payments"
	"github.com/rodolfot/ebooks/internal/pricing"
)

// ErrPayment is returned when a gateway call fails during initiation. The
// just-created order is cancelled best-effort and no vendor detail reaches
// the caller.
var ErrPayment = errors.New("checkout: payment processing failed")

// ValidationError is a business/validation failure surfaced to the caller
// as a 4xx with a short message. No order is created when one is returned.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

// CatalogReader resolves cart ids against published catalog entries.
type CatalogReader interface {
	FindPublished(ctx context.Context, ids []string) ([]catalog.Ebook, error)
}

// CouponReader loads coupons by code.
type CouponReader interface {
	GetByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

// OrderStore is the slice of the order repository checkout needs.
type OrderStore interface {
	Create(ctx context.Context, in order.CreateInput) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*order.Order, error)
	AttachPayment(ctx context.Context, orderID, paymentID string) error
	AttachPaymentID(ctx context.Context, orderID, paymentID string) error
	MarkCancelled(ctx context.Context, orderID string) error
	MarkRefunded(ctx context.Context, orderID string) error
}

// Settler is the settlement pipeline entry point.
type Settler interface {
	Settle(ctx context.Context, orderID string) (bool, error)
}

// User is the authenticated buyer, used to default the customer snapshot.
type User struct {
	ID    string
	Email string
	Name  string
}

// ItemInput is one cart line as submitted by the client. The client price is
// advisory only; the catalog price is what gets charged and copied onto the
// order.
type ItemInput struct {
	EbookID string
	Price   float64
}

// Input is a checkout request.
type Input struct {
	Items         []ItemInput
	PaymentMethod order.PaymentMethod
	CouponCode    string
	CustomerEmail string
	CustomerName  string
	CustomerCPF   string
	CardToken     string
	Installments  int
}

// Result is the method-specific payload returned to the caller.
type Result struct {
	OrderID       string
	PaymentMethod order.PaymentMethod
	Status        string

	QRCode       string
	QRCodeBase64 string
	ExpiresAt    *time.Time

	ChargeURL string

	Barcode   string
	BoletoURL string
}

// Service wires the checkout collaborators.
type Service struct {
	catalog   CatalogReader
	coupons   CouponReader
	orders    OrderStore
	settler   Settler
	gateways  map[order.PaymentMethod]payments.Gateway
	refunders map[order.PaymentMethod]payments.Refunder
	poller    payments.StatusChecker
	audit     *auditlog.Sink
	storeName string
}

func NewService(
	cat CatalogReader,
	coupons CouponReader,
	orders OrderStore,
	settler Settler,
	gateways map[order.PaymentMethod]payments.Gateway,
	refunders map[order.PaymentMethod]payments.Refunder,
	poller payments.StatusChecker,
	audit *auditlog.Sink,
	storeName string,
) *Service {
	return &Service{
		catalog:   cat,
		coupons:   coupons,
		orders:    orders,
		settler:   settler,
		gateways:  gateways,
		refunders: refunders,
		poller:    poller,
		audit:     audit,
		storeName: storeName,
	}
}

// Checkout runs the full purchase flow for the authenticated user.
func (s *Service) Checkout(ctx context.Context, user User, in Input) (*Result, error) {
	if len(in.Items) == 0 {
		return nil, ValidationError("carrinho vazio")
	}
	if !in.PaymentMethod.Valid() {
		return nil, ValidationError("método de pagamento inválido")
	}
	if in.PaymentMethod == order.MethodCreditCard && in.CardToken == "" {
		return nil, ValidationError("token do cartão necessário")
	}
	if in.PaymentMethod == order.MethodBoleto && in.CustomerCPF == "" {
		return nil, ValidationError("CPF necessário para boleto")
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.EbookID)
	}
	ebooks, err := s.catalog.FindPublished(ctx, ids)
	if err != nil {
		if errors.Is(err, catalog.ErrUnavailable) {
			return nil, ValidationError("e-book não encontrado ou indisponível")
		}
		return nil, fmt.Errorf("checkout: resolve catalog: %w", err)
	}

	lineItems := make([]pricing.LineItem, 0, len(ebooks))
	orderItems := make([]order.Item, 0, len(ebooks))
	for _, e := range ebooks {
		lineItems = append(lineItems, pricing.LineItem{EbookID: e.ID, Price: e.Price})
		orderItems = append(orderItems, order.Item{EbookID: e.ID, Title: e.Title, Price: e.Price})
	}

	now := time.Now().UTC()
	var cpn *coupon.Coupon
	if in.CouponCode != "" {
		cpn, err = s.coupons.GetByCode(ctx, in.CouponCode)
		if err != nil && !errors.Is(err, coupon.ErrNotFound) {
			return nil, fmt.Errorf("checkout: load coupon: %w", err)
		}
		// Unknown or ineligible codes are silently priced without discount,
		// same as the storefront preview.
	}

	quote := pricing.QuoteCart(lineItems, cpn, now)
	couponID := ""
	if cpn.EligibleFor(quote.Subtotal, now) {
		couponID = cpn.ID
	}

	createIn := order.CreateInput{
		UserID:        user.ID,
		PaymentMethod: in.PaymentMethod,
		Total:         quote.Total,
		Discount:      quote.Discount,
		CouponID:      couponID,
		CustomerEmail: fallback(in.CustomerEmail, user.Email),
		CustomerName:  fallback(in.CustomerName, user.Name),
		CustomerCPF:   in.CustomerCPF,
		Items:         orderItems,
	}

	// Free path: the coupon covers the entire amount, no gateway contact.
	if quote.Free() || in.PaymentMethod == order.MethodFreeCoupon {
		if quote.Total > 0 && in.PaymentMethod == order.MethodFreeCoupon {
			return nil, ValidationError("pagamento gratuito não permitido para este valor")
		}
		createIn.PaymentMethod = order.MethodFreeCoupon
		return s.freeCheckout(ctx, user, createIn)
	}

	ord, err := s.orders.Create(ctx, createIn)
	if err != nil {
		return nil, fmt.Errorf("checkout: create order: %w", err)
	}
	s.recordOrderCreated(ctx, ord)

	res, err := s.initiatePayment(ctx, ord, in)
	if err != nil {
		// Best-effort cancellation; failure to cancel is logged, not retried.
		if cancelErr := s.orders.MarkCancelled(ctx, ord.ID); cancelErr != nil {
			slog.ErrorContext(ctx, "failed to cancel order after gateway error",
				"order_id", ord.ID, "gateway_error", err, "cancel_error", cancelErr)
		}
		slog.ErrorContext(ctx, "checkout payment initiation failed",
			"order_id", ord.ID, "method", in.PaymentMethod, "error", err)
		s.audit.Record(ctx, auditlog.Entry{
			UserID:       user.ID,
			Action:       auditlog.ActionError,
			Resource:     auditlog.ResourceOrder,
			ResourceID:   ord.ID,
			Description:  "payment initiation failed",
			ErrorMessage: err.Error(),
		})
		metrics.CheckoutTotal.WithLabelValues(string(in.PaymentMethod), "gateway_error").Inc()
		return nil, ErrPayment
	}

	metrics.CheckoutTotal.WithLabelValues(string(in.PaymentMethod), "created").Inc()
	return res, nil
}

func (s *Service) freeCheckout(ctx context.Context, user User, in order.CreateInput) (*Result, error) {
	ord, err := s.orders.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("checkout: create free order: %w", err)
	}
	s.recordOrderCreated(ctx, ord)

	if _, err := s.settler.Settle(ctx, ord.ID); err != nil {
		// The order exists and is payable; settlement can be re-triggered.
		slog.ErrorContext(ctx, "settlement failed for free order", "order_id", ord.ID, "error", err)
	}
	metrics.CheckoutTotal.WithLabelValues(string(order.MethodFreeCoupon), "free").Inc()

	return &Result{
		OrderID:       ord.ID,
		PaymentMethod: order.MethodFreeCoupon,
		Status:        string(payments.StatusApproved),
	}, nil
}

func (s *Service) initiatePayment(ctx context.Context, ord *order.Order, in Input) (*Result, error) {
	gw, ok := s.gateways[ord.PaymentMethod]
	if !ok {
		return nil, fmt.Errorf("checkout: no gateway for method %s", ord.PaymentMethod)
	}

	req := payments.Request{
		Amount:       ord.Total,
		Description:  fmt.Sprintf("%s - Pedido #%s", s.storeName, ord.Reference()),
		OrderID:      ord.ID,
		PayerEmail:   ord.CustomerEmail,
		PayerName:    ord.CustomerName,
		PayerCPF:     ord.CustomerCPF,
		CardToken:    in.CardToken,
		Installments: in.Installments,
	}

	started := time.Now()
	charge, err := gw.Initiate(ctx, req)
	metrics.GatewayRequestDuration.WithLabelValues(string(ord.PaymentMethod)).
		Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}

	res := &Result{
		OrderID:       ord.ID,
		PaymentMethod: ord.PaymentMethod,
		Status:        string(charge.Status),
	}

	switch ord.PaymentMethod {
	case order.MethodCreditCard:
		if charge.Status == payments.StatusApproved {
			// Synchronous approval: record the payment id, then settle.
			if err := s.orders.AttachPaymentID(ctx, ord.ID, charge.PaymentID); err != nil {
				return nil, err
			}
			if _, err := s.settler.Settle(ctx, ord.ID); err != nil {
				slog.ErrorContext(ctx, "settlement failed after card approval",
					"order_id", ord.ID, "error", err)
			}
			return res, nil
		}
		if err := s.orders.AttachPayment(ctx, ord.ID, charge.PaymentID); err != nil {
			return nil, err
		}
		return res, nil

	case order.MethodPix:
		if err := s.orders.AttachPayment(ctx, ord.ID, charge.PaymentID); err != nil {
			return nil, err
		}
		expires := charge.ExpiresAt
		res.QRCode = charge.QRCode
		res.QRCodeBase64 = charge.QRCodeBase64
		res.ExpiresAt = &expires
		return res, nil

	case order.MethodCrypto:
		if err := s.orders.AttachPayment(ctx, ord.ID, charge.PaymentID); err != nil {
			return nil, err
		}
		res.ChargeURL = charge.ChargeURL
		return res, nil

	case order.MethodBoleto:
		if err := s.orders.AttachPayment(ctx, ord.ID, charge.PaymentID); err != nil {
			return nil, err
		}
		res.Barcode = charge.Barcode
		res.BoletoURL = charge.BoletoURL
		return res, nil
	}

	return nil, fmt.Errorf("checkout: unhandled payment method %s", ord.PaymentMethod)
}

// ConfirmPayment resolves an external gateway payment id to its order and
// triggers settlement. Webhook handlers call it after verifying the event.
func (s *Service) ConfirmPayment(ctx context.Context, externalPaymentID string) error {
	ord, err := s.orders.GetByPaymentID(ctx, externalPaymentID)
	if err != nil {
		return fmt.Errorf("checkout: confirm payment: %w", err)
	}
	if _, err := s.settler.Settle(ctx, ord.ID); err != nil {
		return fmt.Errorf("checkout: confirm payment: %w", err)
	}
	return nil
}

// HandleGatewayNotification processes an async payment notification that
// only carries the external payment id (the Mercado Pago webhook shape). The
// gateway is polled for the real status first — notifications also fire on
// creation and rejection — and only approvals reach settlement.
func (s *Service) HandleGatewayNotification(ctx context.Context, externalPaymentID string) error {
	if s.poller == nil {
		return nil
	}
	status, err := s.poller.Status(ctx, externalPaymentID)
	if err != nil {
		return fmt.Errorf("checkout: notification status check: %w", err)
	}
	if status != payments.StatusApproved {
		return nil
	}
	return s.ConfirmPayment(ctx, externalPaymentID)
}

// PollPayment checks the gateway-side status of a PROCESSING order and
// settles it when the gateway reports approval. It returns the order's
// (possibly updated) status. Both this and the webhook path converge on the
// same idempotent settlement entry point.
func (s *Service) PollPayment(ctx context.Context, orderID string) (order.Status, error) {
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if ord.Status != order.StatusProcessing || ord.PaymentID == "" || s.poller == nil {
		return ord.Status, nil
	}
	if ord.PaymentMethod == order.MethodCrypto {
		// Crypto confirmation is exclusively webhook-driven.
		return ord.Status, nil
	}

	status, err := s.poller.Status(ctx, ord.PaymentID)
	if err != nil {
		slog.WarnContext(ctx, "payment status poll failed", "order_id", ord.ID, "error", err)
		return ord.Status, nil
	}
	if status != payments.StatusApproved {
		return ord.Status, nil
	}

	if _, err := s.settler.Settle(ctx, ord.ID); err != nil {
		return ord.Status, fmt.Errorf("checkout: settle after poll: %w", err)
	}
	return order.StatusPaid, nil
}

// Refund moves a PAID order to REFUNDED. The gateway-side refund is
// best-effort: its failure is logged and audited but does not block the
// local status update.
func (s *Service) Refund(ctx context.Context, adminUserID, orderID string) error {
	ord, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if ord.Status != order.StatusPaid {
		metrics.RefundsTotal.WithLabelValues("invalid").Inc()
		return order.ErrInvalidTransition
	}

	if refunder, ok := s.refunders[ord.PaymentMethod]; ok && ord.PaymentID != "" {
		if err := refunder.Refund(ctx, ord.PaymentID); err != nil {
			slog.ErrorContext(ctx, "gateway refund failed, updating local status anyway",
				"order_id", ord.ID, "payment_id", ord.PaymentID, "error", err)
			s.audit.Record(ctx, auditlog.Entry{
				UserID:       adminUserID,
				Action:       auditlog.ActionError,
				Resource:     auditlog.ResourceOrder,
				ResourceID:   ord.ID,
				Description:  "gateway refund failed",
				ErrorMessage: err.Error(),
			})
			metrics.RefundsTotal.WithLabelValues("gateway_failed").Inc()
		}
	}

	if err := s.orders.MarkRefunded(ctx, orderID); err != nil {
		return err
	}
	metrics.RefundsTotal.WithLabelValues("refunded").Inc()
	s.audit.Record(ctx, auditlog.Entry{
		UserID:      adminUserID,
		Action:      auditlog.ActionRefund,
		Resource:    auditlog.ResourceOrder,
		ResourceID:  ord.ID,
		Description: fmt.Sprintf("order #%s refunded", ord.Reference()),
	})
	return nil
}

// GetOrder exposes order lookups to the HTTP layer (receipt page, status
// polling guard).
func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.Get(ctx, orderID)
}

func (s *Service) recordOrderCreated(ctx context.Context, ord *order.Order) {
	s.audit.Record(ctx, auditlog.Entry{
		UserID:      ord.UserID,
		Action:      auditlog.ActionCreate,
		Resource:    auditlog.ResourceOrder,
		ResourceID:  ord.ID,
		Description: fmt.Sprintf("order #%s created (%s, total %.2f)", ord.Reference(), ord.PaymentMethod, ord.Total),
	})
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
