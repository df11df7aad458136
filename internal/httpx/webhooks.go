package httpx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// mpNotification is the Mercado Pago webhook body. Only payment events
// matter; the payment id is re-checked against the API before settlement,
// so a forged or stale notification cannot confirm an unpaid order.
type mpNotification struct {
	Type string `json:"type"`
	Data struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// MercadoPagoWebhook handles POST /api/webhooks/mercadopago. Always answers
// 200 so the gateway stops retrying; processing failures are logged.
func (h *Handler) MercadoPagoWebhook(w http.ResponseWriter, r *http.Request) {
	var note mpNotification
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}
	if note.Type != "payment" || note.Data.ID.String() == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.svc.HandleGatewayNotification(r.Context(), note.Data.ID.String()); err != nil {
		slog.ErrorContext(r.Context(), "mercadopago webhook processing failed",
			"payment_id", note.Data.ID.String(), "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// coinbaseEvent is the Coinbase Commerce webhook envelope.
type coinbaseEvent struct {
	Event struct {
		Type string `json:"type"`
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	} `json:"event"`
}

// CoinbaseWebhook handles POST /api/webhooks/coinbase. The HMAC signature
// is verified against the raw payload before anything is trusted.
func (h *Handler) CoinbaseWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "")
		return
	}

	signature := r.Header.Get("X-CC-Webhook-Signature")
	if signature == "" || !h.coinbase.VerifyWebhookSignature(payload, signature) {
		writeError(w, http.StatusUnauthorized, "invalid_signature", "")
		return
	}

	var evt coinbaseEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "")
		return
	}

	switch evt.Event.Type {
	case "charge:confirmed", "charge:resolved":
		if err := h.svc.ConfirmPayment(r.Context(), evt.Event.Data.Code); err != nil {
			slog.ErrorContext(r.Context(), "coinbase webhook processing failed",
				"charge_code", evt.Event.Data.Code, "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}
