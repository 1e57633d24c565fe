package registration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/errors"
)

func newRegistration(t *testing.T) *Registration {
	t.Helper()
	r, err := NewRegistration(
		uuid.New(),
		billing.Amount{ValueCents: 80000, Currency: "KES"},
		billing.Details{Email: "otieno@example.com"},
	)
	require.NoError(t, err)
	return r
}

func TestNewRegistration(t *testing.T) {
	r := newRegistration(t)

	assert.Equal(t, PaymentPending, r.PaymentStatus)
	assert.Equal(t, StatusPendingPayment, r.Status)
	assert.Nil(t, r.PaidAt)
}

func TestRegistrationApplyOutcome_Success(t *testing.T) {
	r := newRegistration(t)

	require.NoError(t, r.ApplyOutcome(billing.OutcomeSuccess))

	assert.Equal(t, PaymentCompleted, r.PaymentStatus)
	assert.Equal(t, StatusRegistered, r.Status)
	require.NotNil(t, r.PaidAt)
}

func TestRegistrationApplyOutcome_Failed(t *testing.T) {
	r := newRegistration(t)

	require.NoError(t, r.ApplyOutcome(billing.OutcomeFailed))

	assert.Equal(t, PaymentFailed, r.PaymentStatus)
	assert.Equal(t, StatusPendingPayment, r.Status)
}

func TestRegistrationApplyOutcome_TerminalGuard(t *testing.T) {
	r := newRegistration(t)
	require.NoError(t, r.ApplyOutcome(billing.OutcomeSuccess))

	err := r.ApplyOutcome(billing.OutcomeFailed)
	assert.ErrorIs(t, err, errors.ErrTerminalState)
	assert.Equal(t, PaymentCompleted, r.PaymentStatus)
	assert.Equal(t, StatusRegistered, r.Status)
}

func TestMarkRefunded(t *testing.T) {
	r := newRegistration(t)
	require.NoError(t, r.ApplyOutcome(billing.OutcomeSuccess))

	require.NoError(t, r.MarkRefunded())

	assert.Equal(t, PaymentRefunded, r.PaymentStatus)
	assert.Equal(t, StatusCancelled, r.Status)
}

func TestMarkRefunded_RequiresCompletedPayment(t *testing.T) {
	r := newRegistration(t)

	err := r.MarkRefunded()
	assert.ErrorIs(t, err, errors.ErrInvalidStateTransition)
	assert.Equal(t, PaymentPending, r.PaymentStatus)
}

func TestRefundedIsTerminal(t *testing.T) {
	r := newRegistration(t)
	require.NoError(t, r.ApplyOutcome(billing.OutcomeSuccess))
	require.NoError(t, r.MarkRefunded())

	// a gateway notification arriving after a refund must be dropped
	assert.True(t, r.PaymentTerminal())
	assert.ErrorIs(t, r.ApplyOutcome(billing.OutcomeSuccess), errors.ErrTerminalState)
}
