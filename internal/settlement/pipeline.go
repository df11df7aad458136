// Package settlement runs the side effects triggered when an order is
// confirmed paid: coupon bookkeeping, sales counters, download grants,
// delivery email, buyer notification and the first-purchase referral reward.
//
// The pipeline is idempotent at the order level: the atomic
// PENDING/PROCESSING -> PAID transition gates the whole fan-out, so when a
// webhook and a client poll race for the same order exactly one invocation
// runs the steps and the other is a no-op end to end.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rodolfot/ebooks/internal/auditlog"
	"github.com/rodolfot/ebooks/internal/coupon"
	"github.com/rodolfot/ebooks/internal/download"
	"github.com/rodolfot/ebooks/internal/mailer"
	"github.com/rodolfot/ebooks/internal/metrics"
	"github.com/rodolfot/ebooks/internal/notification"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/referral"
)

// OrderStore is the slice of the order repository the pipeline needs.
type OrderStore interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	MarkPaid(ctx context.Context, id string) (bool, error)
	CountPaidByUser(ctx context.Context, userID string) (int, error)
}

// CouponStore redeems coupons and mints referral rewards.
type CouponStore interface {
	RedeemForOrder(ctx context.Context, couponID, userID, orderID string) error
	CreateReferralReward(ctx context.Context, referrerID string) (*coupon.Coupon, error)
}

// CatalogStore maintains per-ebook sales counters.
type CatalogStore interface {
	IncrementSales(ctx context.Context, ebookID string) error
}

// ReferralStore finds and completes pending referrals.
type ReferralStore interface {
	FindPendingByReferred(ctx context.Context, referredID string) (*referral.Referral, error)
	Complete(ctx context.Context, id, couponID string) error
}

// Notifier creates in-app notifications.
type Notifier interface {
	Create(ctx context.Context, userID, title, message string, typ notification.Type, link string) error
}

// GrantMinter signs download grants.
type GrantMinter interface {
	Mint(g download.Grant) (string, error)
}

// Pipeline wires the settlement dependencies.
type Pipeline struct {
	orders    OrderStore
	coupons   CouponStore
	catalog   CatalogStore
	referrals ReferralStore
	notifier  Notifier
	minter    GrantMinter
	mail      mailer.Mailer
	audit     *auditlog.Sink
	appURL    string
}

func NewPipeline(
	orders OrderStore,
	coupons CouponStore,
	catalog CatalogStore,
	referrals ReferralStore,
	notifier Notifier,
	minter GrantMinter,
	mail mailer.Mailer,
	audit *auditlog.Sink,
	appURL string,
) *Pipeline {
	return &Pipeline{
		orders:    orders,
		coupons:   coupons,
		catalog:   catalog,
		referrals: referrals,
		notifier:  notifier,
		minter:    minter,
		mail:      mail,
		audit:     audit,
		appURL:    appURL,
	}
}

// step is one unit of the fan-out. Unlike a saga there is no compensation:
// the policy for every step is log-and-continue, never roll back PAID.
type step struct {
	name string
	run  func(ctx context.Context) error
}

// Settle confirms the order as paid and runs the side-effect steps. It
// reports whether this invocation won the PAID transition; callers invoking
// it twice (webhook plus poll) get won == false the second time and nothing
// is duplicated — no second email, no double counters, no extra coupon use.
func (p *Pipeline) Settle(ctx context.Context, orderID string) (won bool, err error) {
	o, err := p.orders.Get(ctx, orderID)
	if err != nil {
		metrics.SettlementRuns.WithLabelValues("not_found").Inc()
		return false, fmt.Errorf("settlement: load order: %w", err)
	}

	won, err = p.orders.MarkPaid(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("settlement: mark paid: %w", err)
	}
	if !won {
		slog.InfoContext(ctx, "settlement skipped, order not in a payable state",
			"order_id", orderID, "status", o.Status)
		metrics.SettlementRuns.WithLabelValues("noop").Inc()
		return false, nil
	}
	metrics.SettlementRuns.WithLabelValues("won").Inc()

	p.audit.Record(ctx, auditlog.Entry{
		UserID:      o.UserID,
		Action:      auditlog.ActionPayment,
		Resource:    auditlog.ResourceOrder,
		ResourceID:  o.ID,
		Description: fmt.Sprintf("order #%s confirmed paid via %s", o.Reference(), o.PaymentMethod),
	})

	run := &settlementRun{Pipeline: p, order: o}

	steps := []step{
		// Coupon bookkeeping happens first and only on the winning edge,
		// never on repeated settlement calls.
		{name: "redeem_coupon", run: run.redeemCoupon},
		{name: "increment_sales", run: run.incrementSales},
		{name: "mint_grants", run: run.mintGrants},
		{name: "delivery_email", run: run.sendDeliveryEmail},
		{name: "buyer_notification", run: run.notifyBuyer},
		{name: "referral_reward", run: run.rewardReferral},
	}

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			slog.ErrorContext(ctx, "settlement step failed",
				"order_id", o.ID, "step", s.name, "error", err)
			metrics.SettlementStepFailures.WithLabelValues(s.name).Inc()
			p.audit.Record(ctx, auditlog.Entry{
				UserID:       o.UserID,
				Action:       auditlog.ActionError,
				Resource:     auditlog.ResourceOrder,
				ResourceID:   o.ID,
				Description:  fmt.Sprintf("settlement step %s failed", s.name),
				ErrorMessage: err.Error(),
			})
		}
	}

	return true, nil
}
