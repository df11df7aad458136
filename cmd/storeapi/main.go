package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rodolfot/ebooks/internal/auditlog"
	auditsqlite "github.com/rodolfot/ebooks/internal/auditlog/sqlite"
	"github.com/rodolfot/ebooks/internal/catalog"
	"github.com/rodolfot/ebooks/internal/checkout"
	"github.com/rodolfot/ebooks/internal/config"
	"github.com/rodolfot/ebooks/internal/coupon"
	"github.com/rodolfot/ebooks/internal/download"
	"github.com/rodolfot/ebooks/internal/httpx"
	"github.com/rodolfot/ebooks/internal/mailer"
	"github.com/rodolfot/ebooks/internal/notification"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/payments"
	"github.com/rodolfot/ebooks/internal/payments/coinbase"
	"github.com/rodolfot/ebooks/internal/payments/mercadopago"
	"github.com/rodolfot/ebooks/internal/pkg/cache"
	"github.com/rodolfot/ebooks/internal/pkg/postgres"
	"github.com/rodolfot/ebooks/internal/pkg/telemetry"
	"github.com/rodolfot/ebooks/internal/referral"
	"github.com/rodolfot/ebooks/internal/settlement"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	shutdown, err := telemetry.SetupTracer(ctx, getEnv("OTEL_SERVICE_NAME", "storeapi"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	db, err := postgres.Open(cfg.PostgresDSN())
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	auditRepo, err := auditsqlite.Open(cfg.AuditLog.Path)
	if err != nil {
		slog.Error("failed to open activity log", "path", cfg.AuditLog.Path, "error", err)
		os.Exit(1)
	}
	defer auditRepo.Close()
	audit := auditlog.NewSink(auditRepo)

	redisCache := cache.NewRedisCache(cfg.Redis.Addr, "storeapi")

	catalogRepo := catalog.NewRepository(db, redisCache)
	couponRepo := coupon.NewRepository(db)
	orderRepo := order.NewRepository(db)
	referralRepo := referral.NewRepository(db)
	notifier := notification.NewRepository(db)
	minter := download.NewMinter(cfg.Download.Secret, cfg.Download.TTL)
	mail := mailer.NewResendMailer(cfg.Resend.APIKey, cfg.Resend.From)

	mpClient := mercadopago.NewClient(cfg.MercadoPago.AccessToken, cfg.MercadoPago.NotificationURL)
	cbClient := coinbase.NewClient(
		cfg.Coinbase.APIKey,
		cfg.Coinbase.WebhookSecret,
		cfg.Server.AppURL+"/pedidos",
		cfg.Server.AppURL+"/carrinho",
	)

	pipeline := settlement.NewPipeline(
		orderRepo, couponRepo, catalogRepo, referralRepo,
		notifier, minter, mail, audit, cfg.Server.AppURL,
	)

	gateways := map[order.PaymentMethod]payments.Gateway{
		order.MethodPix:        mercadopago.NewPixAdapter(mpClient),
		order.MethodCreditCard: mercadopago.NewCardAdapter(mpClient),
		order.MethodBoleto:     mercadopago.NewBoletoAdapter(mpClient),
		order.MethodCrypto:     cbClient,
	}
	refunders := map[order.PaymentMethod]payments.Refunder{
		order.MethodPix:        mpClient,
		order.MethodCreditCard: mpClient,
		order.MethodBoleto:     mpClient,
	}

	svc := checkout.NewService(
		catalogRepo, couponRepo, orderRepo, pipeline,
		gateways, refunders, mpClient, audit, cfg.Server.StoreName,
	)

	handler := httpx.NewHandler(svc, minter, auditRepo, cbClient)
	router := httpx.NewRouter(handler, cfg.Auth.Secret, httpx.RateLimit{
		Requests: cfg.RateLimit.CheckoutRequests,
		Window:   cfg.RateLimit.CheckoutWindow,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("storeapi running", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
