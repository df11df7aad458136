package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RateLimit configures the checkout rate limiter.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

func NewRouter(handler *Handler, authSecret string, rl RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public surface: webhooks authenticate by signature / status re-check,
	// downloads by the grant token itself.
	r.Post("/api/webhooks/mercadopago", handler.MercadoPagoWebhook)
	r.Post("/api/webhooks/coinbase", handler.CoinbaseWebhook)
	r.Get("/api/download/{token}", handler.Download)
	r.Get("/api/installments", handler.Installments)

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(Authenticator(authSecret))

		r.With(httprate.LimitByIP(rl.Requests, rl.Window)).
			Post("/api/checkout", handler.Checkout)

		r.Get("/api/orders/{id}", handler.GetOrder)
		r.Get("/api/orders/{id}/status", handler.OrderStatus)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/api/orders/{id}/refund", handler.Refund)
			r.Get("/api/admin/logs", handler.AdminLogs)
			r.Get("/api/admin/logs/export", handler.AdminLogsExport)
		})
	})

	return otelhttp.NewHandler(r, "storeapi")
}
