package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rodolfot/ebooks/internal/auditlog"
	"github.com/rodolfot/ebooks/internal/download"
	"github.com/rodolfot/ebooks/internal/mailer"
	"github.com/rodolfot/ebooks/internal/notification"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/referral"
)

// settlementRun carries per-order state across steps: the minted grants are
// produced by mintGrants and consumed by the delivery email.
type settlementRun struct {
	*Pipeline
	order  *order.Order
	grants []mailer.DeliveryItem
}

func (r *settlementRun) redeemCoupon(ctx context.Context) error {
	if r.order.CouponID == "" {
		return nil
	}
	if err := r.coupons.RedeemForOrder(ctx, r.order.CouponID, r.order.UserID, r.order.ID); err != nil {
		return err
	}
	r.audit.Record(ctx, auditlog.Entry{
		UserID:      r.order.UserID,
		Action:      auditlog.ActionUpdate,
		Resource:    auditlog.ResourceCoupon,
		ResourceID:  r.order.CouponID,
		Description: fmt.Sprintf("coupon consumed by order #%s", r.order.Reference()),
	})
	return nil
}

func (r *settlementRun) incrementSales(ctx context.Context) error {
	// Each item counted independently; one failing counter does not stop
	// the rest.
	var firstErr error
	for _, it := range r.order.Items {
		if err := r.catalog.IncrementSales(ctx, it.EbookID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *settlementRun) mintGrants(ctx context.Context) error {
	items := make([]mailer.DeliveryItem, 0, len(r.order.Items))
	for _, it := range r.order.Items {
		di := mailer.DeliveryItem{Title: it.Title}
		for _, format := range download.Formats {
			token, err := r.minter.Mint(download.Grant{
				UserID:  r.order.UserID,
				EbookID: it.EbookID,
				Format:  format,
			})
			if err != nil {
				return fmt.Errorf("mint %s grant for %s: %w", format, it.EbookID, err)
			}
			di.Grants = append(di.Grants, mailer.DeliveryGrant{Format: format, Token: token})
		}
		items = append(items, di)
	}
	r.grants = items
	return nil
}

func (r *settlementRun) sendDeliveryEmail(ctx context.Context) error {
	if r.order.CustomerEmail == "" {
		slog.WarnContext(ctx, "no recipient for delivery email", "order_id", r.order.ID)
		return nil
	}
	body, err := mailer.RenderDelivery(mailer.DeliveryData{
		CustomerName: r.order.CustomerName,
		OrderRef:     r.order.Reference(),
		AppURL:       r.appURL,
		Items:        r.grants,
	})
	if err != nil {
		return err
	}
	return r.mail.Send(ctx, mailer.Message{
		To:      r.order.CustomerEmail,
		Subject: fmt.Sprintf("Seus e-books estão prontos! Pedido #%s", r.order.Reference()),
		HTML:    body,
	})
}

func (r *settlementRun) notifyBuyer(ctx context.Context) error {
	return r.notifier.Create(ctx,
		r.order.UserID,
		"Pedido confirmado!",
		fmt.Sprintf("Seu pedido #%s foi confirmado. Acesse sua biblioteca para baixar seus e-books.", r.order.Reference()),
		notification.TypeSuccess,
		"/biblioteca",
	)
}

// rewardReferral rewards the referrer on the buyer's first paid order. The
// count runs after the order's own transition so the order includes itself:
// a first purchase yields exactly 1.
func (r *settlementRun) rewardReferral(ctx context.Context) error {
	count, err := r.orders.CountPaidByUser(ctx, r.order.UserID)
	if err != nil {
		return fmt.Errorf("count paid orders: %w", err)
	}
	if count != 1 {
		return nil
	}

	ref, err := r.referrals.FindPendingByReferred(ctx, r.order.UserID)
	if err != nil {
		if errors.Is(err, referral.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find pending referral: %w", err)
	}

	reward, err := r.coupons.CreateReferralReward(ctx, ref.ReferrerID)
	if err != nil {
		return fmt.Errorf("create reward coupon: %w", err)
	}
	if err := r.referrals.Complete(ctx, ref.ID, reward.ID); err != nil {
		return fmt.Errorf("complete referral: %w", err)
	}

	r.audit.Record(ctx, auditlog.Entry{
		UserID:      ref.ReferrerID,
		Action:      auditlog.ActionCreate,
		Resource:    auditlog.ResourceReferral,
		ResourceID:  ref.ID,
		Description: fmt.Sprintf("referral completed, reward coupon %s", reward.Code),
	})

	if err := r.notifier.Create(ctx,
		ref.ReferrerID,
		"Indicação recompensada!",
		fmt.Sprintf("Alguém que você indicou fez uma compra! Use o cupom %s para 15%% de desconto.", reward.Code),
		notification.TypeSuccess,
		"/configuracoes",
	); err != nil {
		// The reward itself stands; only the heads-up failed.
		slog.ErrorContext(ctx, "failed to notify referrer", "referral_id", ref.ID, "error", err)
	}
	return nil
}
