// Package coinbase is a REST client for Coinbase Commerce hosted checkout
// charges. Confirmation is exclusively webhook-driven.
package coinbase

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rodolfot/ebooks/internal/payments"
)

const (
	defaultBaseURL = "https://api.commerce.coinbase.com"
	apiVersion     = "2018-03-22"
)

// Client calls the Coinbase Commerce API.
type Client struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	redirectURL   string
	cancelURL     string
	httpClient    *http.Client
}

func NewClient(apiKey, webhookSecret, redirectURL, cancelURL string) *Client {
	return &Client{
		baseURL:       defaultBaseURL,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		redirectURL:   redirectURL,
		cancelURL:     cancelURL,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chargeRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PricingType string            `json:"pricing_type"`
	LocalPrice  localPrice        `json:"local_price"`
	Metadata    map[string]string `json:"metadata"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	CancelURL   string            `json:"cancel_url,omitempty"`
}

type localPrice struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type chargeResponse struct {
	Data struct {
		Code      string `json:"code"`
		HostedURL string `json:"hosted_url"`
	} `json:"data"`
}

// Initiate creates a fixed-price BRL charge and returns the hosted checkout
// URL the browser is redirected to.
func (c *Client) Initiate(ctx context.Context, req payments.Request) (payments.Charge, error) {
	body := chargeRequest{
		Name:        req.Description,
		Description: req.Description,
		PricingType: "fixed_price",
		LocalPrice: localPrice{
			Amount:   fmt.Sprintf("%.2f", req.Amount),
			Currency: "BRL",
		},
		Metadata:    map[string]string{"order_id": req.OrderID},
		RedirectURL: c.redirectURL,
		CancelURL:   c.cancelURL,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return payments.Charge{}, fmt.Errorf("coinbase: encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/charges", bytes.NewReader(raw))
	if err != nil {
		return payments.Charge{}, fmt.Errorf("coinbase: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-CC-Api-Key", c.apiKey)
	httpReq.Header.Set("X-CC-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return payments.Charge{}, fmt.Errorf("%w: coinbase: %v", payments.ErrGateway, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return payments.Charge{}, fmt.Errorf("%w: coinbase: read response: %v", payments.ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return payments.Charge{}, fmt.Errorf("%w: coinbase: status %d", payments.ErrGateway, resp.StatusCode)
	}

	var out chargeResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return payments.Charge{}, fmt.Errorf("%w: coinbase: decode response: %v", payments.ErrGateway, err)
	}

	return payments.Charge{
		PaymentID: out.Data.Code,
		Status:    payments.StatusPending,
		ChargeURL: out.Data.HostedURL,
	}, nil
}

// VerifyWebhookSignature checks the X-CC-Webhook-Signature header: an
// HMAC-SHA256 of the raw payload, hex encoded, compared in constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(signature))
}
