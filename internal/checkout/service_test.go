package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodolfot/ebooks/internal/auditlog"
	"github.com/rodolfot/ebooks/internal/catalog"
	"github.com/rodolfot/ebooks/internal/coupon"
	"github.com/rodolfot/ebooks/internal/order"
	"github.com/rodolfot/ebooks/internal/payments"
)

type fakeCatalog struct {
	ebooks map[string]catalog.Ebook
}

func (f *fakeCatalog) FindPublished(_ context.Context, ids []string) ([]catalog.Ebook, error) {
	out := make([]catalog.Ebook, 0, len(ids))
	for _, id := range ids {
		e, ok := f.ebooks[id]
		if !ok {
			return nil, catalog.ErrUnavailable
		}
		out = append(out, e)
	}
	return out, nil
}

type fakeCoupons struct {
	byCode map[string]*coupon.Coupon
}

func (f *fakeCoupons) GetByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := f.byCode[code]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

type fakeOrderStore struct {
	created   []*order.Order
	byID      map[string]*order.Order
	cancelled []string
	refunded  []string
	attached  map[string]string // orderID -> paymentID (with PROCESSING move)
	idOnly    map[string]string // orderID -> paymentID (id only)
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		byID:     map[string]*order.Order{},
		attached: map[string]string{},
		idOnly:   map[string]string{},
	}
}

func (f *fakeOrderStore) Create(_ context.Context, in order.CreateInput) (*order.Order, error) {
	o := &order.Order{
		ID:            "order-" + in.UserID,
		UserID:        in.UserID,
		Status:        order.StatusPending,
		PaymentMethod: in.PaymentMethod,
		Total:         in.Total,
		Discount:      in.Discount,
		CouponID:      in.CouponID,
		CustomerEmail: in.CustomerEmail,
		CustomerName:  in.CustomerName,
		CustomerCPF:   in.CustomerCPF,
		Items:         in.Items,
		CreatedAt:     time.Now().UTC(),
	}
	f.created = append(f.created, o)
	f.byID[o.ID] = o
	return o, nil
}

func (f *fakeOrderStore) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderStore) GetByPaymentID(_ context.Context, paymentID string) (*order.Order, error) {
	for _, o := range f.byID {
		if o.PaymentID == paymentID {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (f *fakeOrderStore) AttachPayment(_ context.Context, orderID, paymentID string) error {
	f.attached[orderID] = paymentID
	if o, ok := f.byID[orderID]; ok {
		o.PaymentID = paymentID
		o.Status = order.StatusProcessing
	}
	return nil
}

func (f *fakeOrderStore) AttachPaymentID(_ context.Context, orderID, paymentID string) error {
	f.idOnly[orderID] = paymentID
	if o, ok := f.byID[orderID]; ok {
		o.PaymentID = paymentID
	}
	return nil
}

func (f *fakeOrderStore) MarkCancelled(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeOrderStore) MarkRefunded(_ context.Context, orderID string) error {
	f.refunded = append(f.refunded, orderID)
	if o, ok := f.byID[orderID]; ok {
		o.Status = order.StatusRefunded
	}
	return nil
}

type fakeSettler struct {
	settled []string
}

func (f *fakeSettler) Settle(_ context.Context, orderID string) (bool, error) {
	f.settled = append(f.settled, orderID)
	return true, nil
}

type fakeGateway struct {
	charge payments.Charge
	err    error
	reqs   []payments.Request
}

func (f *fakeGateway) Initiate(_ context.Context, req payments.Request) (payments.Charge, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return payments.Charge{}, f.err
	}
	return f.charge, nil
}

type fakeRefunder struct {
	refunded []string
	err      error
}

func (f *fakeRefunder) Refund(_ context.Context, paymentID string) error {
	if f.err != nil {
		return f.err
	}
	f.refunded = append(f.refunded, paymentID)
	return nil
}

type fakePoller struct {
	status payments.ChargeStatus
	err    error
}

func (f *fakePoller) Status(_ context.Context, _ string) (payments.ChargeStatus, error) {
	return f.status, f.err
}

type serviceFixture struct {
	catalog *fakeCatalog
	coupons *fakeCoupons
	orders  *fakeOrderStore
	settler *fakeSettler
	gateway *fakeGateway
	refund  *fakeRefunder
	poller  *fakePoller
	svc     *Service
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		catalog: &fakeCatalog{ebooks: map[string]catalog.Ebook{
			"ebook-1": {ID: "ebook-1", Title: "Go em Português", Price: 49.90, Status: catalog.StatusPublished},
		}},
		coupons: &fakeCoupons{byCode: map[string]*coupon.Coupon{
			"DEZ":  {ID: "coupon-10", Code: "DEZ", DiscountType: coupon.Percentage, DiscountValue: 10, Active: true},
			"TUDO": {ID: "coupon-full", Code: "TUDO", DiscountType: coupon.Fixed, DiscountValue: 1000, Active: true},
		}},
		orders:  newFakeOrderStore(),
		settler: &fakeSettler{},
		gateway: &fakeGateway{charge: payments.Charge{PaymentID: "pay-1", Status: payments.StatusPending}},
		refund:  &fakeRefunder{},
		poller:  &fakePoller{status: payments.StatusPending},
	}
	gateways := map[order.PaymentMethod]payments.Gateway{
		order.MethodPix:        f.gateway,
		order.MethodCreditCard: f.gateway,
		order.MethodBoleto:     f.gateway,
		order.MethodCrypto:     f.gateway,
	}
	refunders := map[order.PaymentMethod]payments.Refunder{
		order.MethodPix:        f.refund,
		order.MethodCreditCard: f.refund,
	}
	f.svc = NewService(
		f.catalog, f.coupons, f.orders, f.settler,
		gateways, refunders, f.poller, auditlog.NewSink(nil), "Fude Kotoba",
	)
	return f
}

func buyer() User {
	return User{ID: "user-1", Email: "leitor@example.com", Name: "Ana"}
}

func pixInput() Input {
	return Input{
		Items:         []ItemInput{{EbookID: "ebook-1", Price: 49.90}},
		PaymentMethod: order.MethodPix,
	}
}

func TestCheckoutValidationCreatesNoOrder(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{name: "empty cart", in: Input{PaymentMethod: order.MethodPix}},
		{
			name: "invalid method",
			in:   Input{Items: []ItemInput{{EbookID: "ebook-1"}}, PaymentMethod: "PAYPAL"},
		},
		{
			name: "card without token",
			in:   Input{Items: []ItemInput{{EbookID: "ebook-1"}}, PaymentMethod: order.MethodCreditCard},
		},
		{
			name: "boleto without cpf",
			in:   Input{Items: []ItemInput{{EbookID: "ebook-1"}}, PaymentMethod: order.MethodBoleto},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture()
			_, err := f.svc.Checkout(context.Background(), buyer(), tt.in)

			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Empty(t, f.orders.created)
			assert.Empty(t, f.gateway.reqs)
		})
	}
}

func TestCheckoutUnknownEbook(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.Items = []ItemInput{{EbookID: "missing"}}

	_, err := f.svc.Checkout(context.Background(), buyer(), in)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, f.orders.created)
}

func TestCheckoutChargesCatalogPriceNotClientPrice(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.Items[0].Price = 0.01 // tampered client price

	_, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	require.Len(t, f.orders.created, 1)
	assert.InDelta(t, 49.90, f.orders.created[0].Total, 1e-9)
	require.Len(t, f.gateway.reqs, 1)
	assert.InDelta(t, 49.90, f.gateway.reqs[0].Amount, 1e-9)
}

func TestCheckoutPixReturnsQRAndMovesToProcessing(t *testing.T) {
	f := newServiceFixture()
	expires := time.Now().UTC().Add(30 * time.Minute)
	f.gateway.charge = payments.Charge{
		PaymentID:    "pay-1",
		Status:       payments.StatusPending,
		QRCode:       "qr-data",
		QRCodeBase64: "cXItZGF0YQ==",
		ExpiresAt:    expires,
	}

	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	assert.Equal(t, "qr-data", res.QRCode)
	assert.Equal(t, "cXItZGF0YQ==", res.QRCodeBase64)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, expires, *res.ExpiresAt)

	assert.Equal(t, "pay-1", f.orders.attached[res.OrderID])
	got, _ := f.orders.Get(context.Background(), res.OrderID)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Empty(t, f.settler.settled)
}

func TestCheckoutCardApprovedSettlesImmediately(t *testing.T) {
	f := newServiceFixture()
	f.gateway.charge = payments.Charge{PaymentID: "pay-card", Status: payments.StatusApproved}
	in := pixInput()
	in.PaymentMethod = order.MethodCreditCard
	in.CardToken = "tok_abc"
	in.Installments = 3

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	assert.Equal(t, string(payments.StatusApproved), res.Status)
	assert.Equal(t, "pay-card", f.orders.idOnly[res.OrderID])
	assert.Equal(t, []string{res.OrderID}, f.settler.settled)
	require.Len(t, f.gateway.reqs, 1)
	assert.Equal(t, "tok_abc", f.gateway.reqs[0].CardToken)
	assert.Equal(t, 3, f.gateway.reqs[0].Installments)
}

func TestCheckoutCardPendingDoesNotSettle(t *testing.T) {
	f := newServiceFixture()
	f.gateway.charge = payments.Charge{PaymentID: "pay-card", Status: payments.StatusPending}
	in := pixInput()
	in.PaymentMethod = order.MethodCreditCard
	in.CardToken = "tok_abc"

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	assert.Empty(t, f.settler.settled)
	assert.Equal(t, "pay-card", f.orders.attached[res.OrderID])
}

func TestCheckoutCryptoReturnsChargeURL(t *testing.T) {
	f := newServiceFixture()
	f.gateway.charge = payments.Charge{
		PaymentID: "CB-CODE",
		Status:    payments.StatusPending,
		ChargeURL: "https://commerce.coinbase.com/charges/CB-CODE",
	}
	in := pixInput()
	in.PaymentMethod = order.MethodCrypto

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)
	assert.Equal(t, "https://commerce.coinbase.com/charges/CB-CODE", res.ChargeURL)
	assert.Equal(t, "CB-CODE", f.orders.attached[res.OrderID])
}

func TestCheckoutBoletoReturnsBarcode(t *testing.T) {
	f := newServiceFixture()
	f.gateway.charge = payments.Charge{
		PaymentID: "pay-bol",
		Status:    payments.StatusPending,
		Barcode:   "23790000012345",
		BoletoURL: "https://mp.example.com/boleto/1",
	}
	in := pixInput()
	in.PaymentMethod = order.MethodBoleto
	in.CustomerCPF = "123.456.789-09"

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)
	assert.Equal(t, "23790000012345", res.Barcode)
	assert.Equal(t, "https://mp.example.com/boleto/1", res.BoletoURL)
}

func TestCheckoutGatewayFailureCancelsOrder(t *testing.T) {
	f := newServiceFixture()
	f.gateway.err = payments.ErrGateway

	_, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.ErrorIs(t, err, ErrPayment)

	require.Len(t, f.orders.created, 1)
	assert.Equal(t, []string{f.orders.created[0].ID}, f.orders.cancelled)
}

func TestCheckoutFreeCouponSkipsGateway(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.CouponCode = "TUDO" // fixed discount above the subtotal

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	assert.Equal(t, order.MethodFreeCoupon, res.PaymentMethod)
	assert.Equal(t, string(payments.StatusApproved), res.Status)
	assert.Empty(t, f.gateway.reqs)
	assert.Equal(t, []string{res.OrderID}, f.settler.settled)

	require.Len(t, f.orders.created, 1)
	assert.Zero(t, f.orders.created[0].Total)
	assert.Equal(t, "coupon-full", f.orders.created[0].CouponID)
}

func TestCheckoutFreeCouponMethodRejectedWhenTotalPositive(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.PaymentMethod = order.MethodFreeCoupon
	in.CouponCode = "DEZ" // only 10% off, total stays positive

	_, err := f.svc.Checkout(context.Background(), buyer(), in)

	var verr ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, f.orders.created)
}

func TestCheckoutAppliesEligibleCoupon(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.CouponCode = "DEZ"

	_, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Equal(t, "coupon-10", o.CouponID)
	assert.InDelta(t, 4.99, o.Discount, 1e-9)
	assert.InDelta(t, 44.91, o.Total, 1e-9)
}

func TestCheckoutIgnoresUnknownCoupon(t *testing.T) {
	f := newServiceFixture()
	in := pixInput()
	in.CouponCode = "NADA"

	_, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	require.Len(t, f.orders.created, 1)
	o := f.orders.created[0]
	assert.Empty(t, o.CouponID)
	assert.InDelta(t, 49.90, o.Total, 1e-9)
}

func TestCheckoutDefaultsCustomerFromUser(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	o := f.orders.created[0]
	assert.Equal(t, "leitor@example.com", o.CustomerEmail)
	assert.Equal(t, "Ana", o.CustomerName)
}

func TestHandleGatewayNotification(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	// Notification for a still-pending payment settles nothing.
	f.poller.status = payments.StatusPending
	require.NoError(t, f.svc.HandleGatewayNotification(context.Background(), "pay-1"))
	assert.Empty(t, f.settler.settled)

	// Approval settles the order resolved by payment id.
	f.poller.status = payments.StatusApproved
	require.NoError(t, f.svc.HandleGatewayNotification(context.Background(), "pay-1"))
	assert.Equal(t, []string{res.OrderID}, f.settler.settled)
}

func TestConfirmPaymentUnknownPaymentID(t *testing.T) {
	f := newServiceFixture()
	err := f.svc.ConfirmPayment(context.Background(), "ghost")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestPollPayment(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	// Pending at the gateway: status unchanged, no settlement.
	f.poller.status = payments.StatusPending
	st, err := f.svc.PollPayment(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, st)
	assert.Empty(t, f.settler.settled)

	// Approved: settled and reported paid.
	f.poller.status = payments.StatusApproved
	st, err = f.svc.PollPayment(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, st)
	assert.Equal(t, []string{res.OrderID}, f.settler.settled)
}

func TestPollPaymentSkipsCrypto(t *testing.T) {
	f := newServiceFixture()
	f.gateway.charge = payments.Charge{PaymentID: "CB-CODE", Status: payments.StatusPending}
	in := pixInput()
	in.PaymentMethod = order.MethodCrypto

	res, err := f.svc.Checkout(context.Background(), buyer(), in)
	require.NoError(t, err)

	f.poller.status = payments.StatusApproved
	st, err := f.svc.PollPayment(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, st)
	assert.Empty(t, f.settler.settled)
}

func TestPollPaymentSwallowsPollerErrors(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	f.poller.err = errors.New("gateway down")
	st, err := f.svc.PollPayment(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, st)
}

func TestRefundPaidOrder(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)
	f.orders.byID[res.OrderID].Status = order.StatusPaid

	require.NoError(t, f.svc.Refund(context.Background(), "admin-1", res.OrderID))

	assert.Equal(t, []string{"pay-1"}, f.refund.refunded)
	assert.Equal(t, []string{res.OrderID}, f.orders.refunded)
}

func TestRefundNonPaidOrder(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)

	err = f.svc.Refund(context.Background(), "admin-1", res.OrderID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	assert.Empty(t, f.orders.refunded)
}

func TestRefundGatewayFailureStillRefundsLocally(t *testing.T) {
	f := newServiceFixture()
	res, err := f.svc.Checkout(context.Background(), buyer(), pixInput())
	require.NoError(t, err)
	f.orders.byID[res.OrderID].Status = order.StatusPaid
	f.refund.err = payments.ErrGateway

	require.NoError(t, f.svc.Refund(context.Background(), "admin-1", res.OrderID))
	assert.Equal(t, []string{res.OrderID}, f.orders.refunded)
}
