package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/errors"
)

func newOrder(t *testing.T) *Order {
	t.Helper()
	o, err := NewOrder(
		billing.Amount{ValueCents: 250000, Currency: "KES"},
		billing.Details{Email: "wanjiku@example.com", Phone: "0712345678"},
	)
	require.NoError(t, err)
	return o
}

func TestNewOrder(t *testing.T) {
	o := newOrder(t)

	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, StatusPending, o.Status)
	assert.Nil(t, o.PaidAt)
	// billing defaults applied at creation
	assert.Equal(t, "254712345678", o.Customer.Phone)
}

func TestNewOrder_RejectsInvalidAmount(t *testing.T) {
	_, err := NewOrder(billing.Amount{ValueCents: 0, Currency: "KES"}, billing.Details{})
	assert.Error(t, err)
}

func TestApplyOutcome_Success(t *testing.T) {
	o := newOrder(t)

	require.NoError(t, o.ApplyOutcome(billing.OutcomeSuccess))

	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, StatusProcessing, o.Status)
	require.NotNil(t, o.PaidAt)
}

func TestApplyOutcome_FailedLeavesFulfilment(t *testing.T) {
	o := newOrder(t)

	require.NoError(t, o.ApplyOutcome(billing.OutcomeFailed))

	assert.Equal(t, PaymentFailed, o.PaymentStatus)
	assert.Equal(t, StatusPending, o.Status)
	assert.Nil(t, o.PaidAt)
}

func TestApplyOutcome_PendingIsNoOp(t *testing.T) {
	o := newOrder(t)

	require.NoError(t, o.ApplyOutcome(billing.OutcomePending))

	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestApplyOutcome_TerminalStatesAreMonotonic(t *testing.T) {
	o := newOrder(t)
	require.NoError(t, o.ApplyOutcome(billing.OutcomeSuccess))

	// late failure notification must not unwind a completed payment
	err := o.ApplyOutcome(billing.OutcomeFailed)
	assert.ErrorIs(t, err, errors.ErrTerminalState)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)

	// redelivery of the same outcome is idempotent
	assert.NoError(t, o.ApplyOutcome(billing.OutcomeSuccess))
}

func TestSetGatewayReference(t *testing.T) {
	o := newOrder(t)
	trk := "ptid-123"

	o.SetGatewayReference("pesapal", trk, &trk)

	require.NotNil(t, o.Gateway)
	assert.Equal(t, "pesapal", *o.Gateway)
	require.NotNil(t, o.PaymentReference)
	assert.Equal(t, trk, *o.PaymentReference)
	require.NotNil(t, o.PesapalTrackingID)
}

func TestPaymentTerminal(t *testing.T) {
	o := newOrder(t)
	assert.False(t, o.PaymentTerminal())

	require.NoError(t, o.ApplyOutcome(billing.OutcomeFailed))
	assert.True(t, o.PaymentTerminal())
}
