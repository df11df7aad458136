package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
		StatusProcessing: {StatusPaid, StatusCancelled},
		StatusPaid:       {StatusRefunded},
		StatusRefunded:   {},
		StatusCancelled:  {},
	}

	all := []Status{StatusPending, StatusProcessing, StatusPaid, StatusRefunded, StatusCancelled}

	for from, nexts := range allowed {
		ok := make(map[Status]bool, len(nexts))
		for _, n := range nexts {
			ok[n] = true
		}
		for _, to := range all {
			assert.Equal(t, ok[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransitionToUnknownStatus(t *testing.T) {
	assert.False(t, Status("BOGUS").CanTransitionTo(StatusPaid))
	assert.False(t, StatusPending.CanTransitionTo(Status("BOGUS")))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusRefunded.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusPaid.Terminal())
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{MethodPix, MethodCreditCard, MethodCrypto, MethodBoleto, MethodFreeCoupon} {
		assert.True(t, m.Valid(), string(m))
	}
	assert.False(t, PaymentMethod("PAYPAL").Valid())
	assert.False(t, PaymentMethod("").Valid())
}

func TestReference(t *testing.T) {
	o := &Order{ID: "a1b2c3d4-e5f6-7890-abcd-ef0123456789"}
	assert.Equal(t, "a1b2c3d4", o.Reference())

	short := &Order{ID: "abc"}
	assert.Equal(t, "abc", short.Reference())
}
