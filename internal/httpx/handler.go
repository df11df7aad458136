package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/rodolfot/ebooks/internal/auditlog"
	"github.com/rodolfot/ebooks/internal/checkout"
	"github.com/rodolfot/ebooks/internal/download"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/pricing"
)

// LogStore is the admin-facing slice of the audit log repository.
type LogStore interface {
	List(ctx context.Context, f auditlog.Filter) ([]auditlog.Entry, error)
	ExportCSV(ctx context.Context, f auditlog.Filter, w io.Writer) error
}

// WebhookVerifier checks a webhook payload signature.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// Handler handles the storefront checkout/payment HTTP surface.
type Handler struct {
	svc      *checkout.Service
	minter   *download.Minter
	logs     LogStore
	coinbase WebhookVerifier
	validate *validator.Validate
}

func NewHandler(svc *checkout.Service, minter *download.Minter, logs LogStore, coinbase WebhookVerifier) *Handler {
	return &Handler{
		svc:      svc,
		minter:   minter,
		logs:     logs,
		coinbase: coinbase,
		validate: validator.New(),
	}
}

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_required", "")
		return
	}

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	items := make([]checkout.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, checkout.ItemInput{EbookID: it.EbookID, Price: it.Price})
	}

	result, err := h.svc.Checkout(r.Context(), user.User, checkout.Input{
		Items:         items,
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		CouponCode:    req.CouponCode,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerCPF:   req.CustomerCPF,
		CardToken:     req.CardToken,
		Installments:  req.Installments,
	})
	if err != nil {
		var verr checkout.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, verr.Error(), "")
		case errors.Is(err, checkout.ErrPayment):
			// No gateway detail leaks to the client.
			writeError(w, http.StatusBadGateway, "erro no checkout", "")
		default:
			slog.ErrorContext(r.Context(), "checkout failed", "error", err)
			writeError(w, http.StatusInternalServerError, "erro no checkout", "")
		}
		return
	}

	writeJSON(w, http.StatusCreated, CheckoutResponse{
		OrderID:       result.OrderID,
		PaymentMethod: string(result.PaymentMethod),
		Status:        result.Status,
		QRCode:        result.QRCode,
		QRCodeBase64:  result.QRCodeBase64,
		ExpiresAt:     result.ExpiresAt,
		ChargeURL:     result.ChargeURL,
		Barcode:       result.Barcode,
		BoletoURL:     result.BoletoURL,
	})
}

// GetOrder handles GET /api/orders/{id}: the receipt view. Buyers only see
// their own orders; admins see all.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	ord, ok := h.loadOwnedOrder(w, r, user)
	if !ok {
		return
	}

	items := make([]OrderItemDTO, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, OrderItemDTO{EbookID: it.EbookID, Title: it.Title, Price: it.Price})
	}
	writeJSON(w, http.StatusOK, OrderResponse{
		ID:            ord.ID,
		Status:        string(ord.Status),
		PaymentMethod: string(ord.PaymentMethod),
		Total:         ord.Total,
		Discount:      ord.Discount,
		Items:         items,
		CreatedAt:     ord.CreatedAt,
		PaidAt:        ord.PaidAt,
	})
}

// OrderStatus handles GET /api/orders/{id}/status: the client poll path. It
// may push a PROCESSING order into settlement when the gateway reports the
// payment approved.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	ord, ok := h.loadOwnedOrder(w, r, user)
	if !ok {
		return
	}

	status, err := h.svc.PollPayment(r.Context(), ord.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "order status poll failed", "order_id", ord.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "erro ao consultar pedido", "")
		return
	}
	writeJSON(w, http.StatusOK, OrderStatusResponse{OrderID: ord.ID, Status: string(status)})
}

// Refund handles POST /api/orders/{id}/refund (admin only).
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	err := h.svc.Refund(r.Context(), user.ID, orderID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "refunded"})
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "pedido não encontrado", "")
	case errors.Is(err, order.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "pedido não reembolsável", "")
	default:
		slog.ErrorContext(r.Context(), "refund failed", "order_id", orderID, "error", err)
		writeError(w, http.StatusInternalServerError, "erro ao reembolsar", "")
	}
}

// Installments handles GET /api/installments?price=49.90.
func (h *Handler) Installments(w http.ResponseWriter, r *http.Request) {
	price, err := strconv.ParseFloat(r.URL.Query().Get("price"), 64)
	if err != nil || price <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_price", "")
		return
	}
	writeJSON(w, http.StatusOK, pricing.Installments(price, pricing.DefaultMaxInstallments))
}

// Download handles GET /api/download/{token}: verifies the grant and
// returns the file reference. Actual file storage is behind a separate
// delivery layer; this endpoint is the capability check.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	grant, err := h.minter.Verify(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusForbidden, "link de download inválido ou expirado", "")
		return
	}
	writeJSON(w, http.StatusOK, DownloadResponse{EbookID: grant.EbookID, Format: grant.Format})
}

// AdminLogs handles GET /api/admin/logs with filtering and pagination.
func (h *Handler) AdminLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.logs.List(r.Context(), logFilterFromQuery(r))
	if err != nil {
		slog.ErrorContext(r.Context(), "activity log query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "erro ao consultar logs", "")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// AdminLogsExport handles GET /api/admin/logs/export, streaming CSV.
func (h *Handler) AdminLogsExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="activity-logs.csv"`)
	if err := h.logs.ExportCSV(r.Context(), logFilterFromQuery(r), w); err != nil {
		slog.ErrorContext(r.Context(), "activity log export failed", "error", err)
	}
}

func logFilterFromQuery(r *http.Request) auditlog.Filter {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return auditlog.Filter{
		UserID:   q.Get("userId"),
		Action:   auditlog.Action(q.Get("action")),
		Resource: auditlog.Resource(q.Get("resource")),
		Limit:    limit,
		Offset:   offset,
	}
}

func (h *Handler) loadOwnedOrder(w http.ResponseWriter, r *http.Request, user AuthedUser) (*order.Order, bool) {
	ord, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "pedido não encontrado", "")
		return nil, false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "order lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "erro ao consultar pedido", "")
		return nil, false
	}
	if ord.UserID != user.ID && user.Role != "ADMIN" {
		writeError(w, http.StatusNotFound, "pedido não encontrado", "")
		return nil, false
	}
	return ord, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}
