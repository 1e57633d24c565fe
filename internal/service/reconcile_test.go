package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
	"github.com/sokodigital/storefront-payments/internal/gateway"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
	"github.com/sokodigital/storefront-payments/internal/testutil"
)

type reconcileFixture struct {
	svc       *ReconcileService
	orderRepo *testutil.MockOrderRepository
	regRepo   *testutil.MockRegistrationRepository
	outbox    *testutil.MockOutboxRepository
	metrics   *observability.Metrics
}

func newReconcileFixture(clients ...gateway.Client) *reconcileFixture {
	orderRepo := testutil.NewMockOrderRepository()
	regRepo := testutil.NewMockRegistrationRepository()
	outboxRepo := testutil.NewMockOutboxRepository()
	factory := gateway.NewFactory(nil, clients...)
	metrics := newTestMetrics()
	svc := NewReconcileService(orderRepo, regRepo, outboxRepo, &testutil.MockTxManager{}, factory, metrics, zerolog.Nop())
	return &reconcileFixture{svc: svc, orderRepo: orderRepo, regRepo: regRepo, outbox: outboxRepo, metrics: metrics}
}

// --- Resolve ---

func TestResolve_EventPrefix(t *testing.T) {
	f := newReconcileFixture()
	id := uuid.New()

	kind, got, err := f.svc.Resolve(context.Background(), billing.EventReferencePrefix+id.String())
	require.NoError(t, err)
	assert.Equal(t, billing.KindEvent, kind)
	assert.Equal(t, id, got)
}

func TestResolve_BareIDDefaultsToOrder(t *testing.T) {
	f := newReconcileFixture()
	id := uuid.New()

	kind, got, err := f.svc.Resolve(context.Background(), id.String())
	require.NoError(t, err)
	assert.Equal(t, billing.KindOrder, kind)
	assert.Equal(t, id, got)
}

func TestResolve_LegacyUnprefixedRegistration(t *testing.T) {
	f := newReconcileFixture()
	reg := testutil.NewTestRegistration(1000)
	f.regRepo.Add(reg)

	kind, got, err := f.svc.Resolve(context.Background(), reg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, billing.KindEvent, kind)
	assert.Equal(t, reg.ID, got)
}

func TestResolve_AmbiguousPrefersOrder(t *testing.T) {
	f := newReconcileFixture()
	reg := testutil.NewTestRegistration(1000)
	f.regRepo.Add(reg)
	o := testutil.NewTestOrder(1000)
	o.ID = reg.ID // same id in both tables
	f.orderRepo.Add(o)

	kind, got, err := f.svc.Resolve(context.Background(), reg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, billing.KindOrder, kind)
	assert.Equal(t, reg.ID, got)
}

func TestResolve_EmptyReference(t *testing.T) {
	f := newReconcileFixture()

	_, _, err := f.svc.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domainErrors.ErrMissingReference)
}

func TestResolve_MalformedReference(t *testing.T) {
	f := newReconcileFixture()

	_, _, err := f.svc.Resolve(context.Background(), "not-a-uuid")
	assert.Error(t, err)

	_, _, err = f.svc.Resolve(context.Background(), billing.EventReferencePrefix+"not-a-uuid")
	assert.Error(t, err)
}

// --- Apply ---

func TestApply_SuccessTransitionsOrderAndWritesOutbox(t *testing.T) {
	f := newReconcileFixture()
	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	applied, err := f.svc.Apply(context.Background(), billing.KindOrder, o.ID, gateway.Pesapal, billing.OutcomeSuccess)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, order.StatusProcessing, o.Status)

	require.Len(t, f.outbox.Entries, 1)
	assert.Equal(t, "payment.completed", f.outbox.Entries[0].EventType)
}

func TestApply_FailedLeavesFulfilmentAlone(t *testing.T) {
	f := newReconcileFixture()
	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	applied, err := f.svc.Apply(context.Background(), billing.KindOrder, o.ID, gateway.Mpesa, billing.OutcomeFailed)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestApply_PendingIsNoOp(t *testing.T) {
	f := newReconcileFixture()
	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	applied, err := f.svc.Apply(context.Background(), billing.KindOrder, o.ID, gateway.Mpesa, billing.OutcomePending)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
	assert.Empty(t, f.outbox.Entries)
}

func TestApply_TerminalStateGuard(t *testing.T) {
	f := newReconcileFixture()
	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	applied, err := f.svc.Apply(context.Background(), billing.KindOrder, o.ID, gateway.Pesapal, billing.OutcomeSuccess)
	require.NoError(t, err)
	require.True(t, applied)

	// late conflicting notification must not flip the settled payment
	applied, err = f.svc.Apply(context.Background(), billing.KindOrder, o.ID, gateway.Pesapal, billing.OutcomeFailed)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)

	// and no duplicate event is emitted
	assert.Len(t, f.outbox.Entries, 1)
}

func TestApply_UnknownRecordIsFlagged(t *testing.T) {
	f := newReconcileFixture()

	applied, err := f.svc.Apply(context.Background(), billing.KindOrder, uuid.New(), gateway.Pesapal, billing.OutcomeSuccess)
	assert.ErrorIs(t, err, domainErrors.ErrAmbiguousReference)
	assert.False(t, applied)
	assert.Empty(t, f.outbox.Entries)

	// flagged as an unresolved reference, not as an already-settled record
	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.AmbiguousReference))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(f.metrics.SkippedTerminal.WithLabelValues(gateway.Pesapal)))
}

func TestApply_UnknownRegistrationIsFlagged(t *testing.T) {
	f := newReconcileFixture()

	applied, err := f.svc.Apply(context.Background(), billing.KindEvent, uuid.New(), gateway.Mpesa, billing.OutcomeFailed)
	assert.ErrorIs(t, err, domainErrors.ErrAmbiguousReference)
	assert.False(t, applied)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.AmbiguousReference))
}

func TestApply_RegistrationSuccess(t *testing.T) {
	f := newReconcileFixture()
	reg := testutil.NewTestRegistration(500)
	f.regRepo.Add(reg)

	applied, err := f.svc.Apply(context.Background(), billing.KindEvent, reg.ID, gateway.Pesapal, billing.OutcomeSuccess)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, registration.PaymentCompleted, reg.PaymentStatus)
	assert.Equal(t, registration.StatusRegistered, reg.Status)
}

// --- Pesapal notifications ---

func TestProcessPesapalNotification_CompletedPayment(t *testing.T) {
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		assert.Equal(t, "ptrk-9", trackingID)
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(pesapal)

	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	outcome, err := f.svc.ProcessPesapalNotification(context.Background(), "ptrk-9", o.ID.String(), gateway.IPNChangeNotification)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSuccess, outcome)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
}

func TestProcessPesapalNotification_IgnoresOtherTypes(t *testing.T) {
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	queried := false
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		queried = true
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(pesapal)

	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	outcome, err := f.svc.ProcessPesapalNotification(context.Background(), "ptrk-9", o.ID.String(), "RECURRING")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomePending, outcome)
	assert.False(t, queried)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
}

func TestProcessPesapalNotification_EventReference(t *testing.T) {
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(pesapal)

	reg := testutil.NewTestRegistration(750)
	f.regRepo.Add(reg)

	outcome, err := f.svc.ProcessPesapalNotification(
		context.Background(), "ptrk-2", billing.EventReferencePrefix+reg.ID.String(), gateway.IPNChangeNotification)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSuccess, outcome)
	assert.Equal(t, registration.StatusRegistered, reg.Status)
}

func TestProcessPesapalNotification_FailedStatus(t *testing.T) {
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		return billing.OutcomeFailed, nil
	}
	f := newReconcileFixture(pesapal)

	o := testutil.NewTestOrder(1000)
	f.orderRepo.Add(o)

	outcome, err := f.svc.ProcessPesapalNotification(context.Background(), "ptrk-3", o.ID.String(), "")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeFailed, outcome)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
	assert.Equal(t, order.StatusPending, o.Status)
}

func TestProcessPesapalNotification_UnknownReference(t *testing.T) {
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(pesapal)

	// valid uuid, present in neither table
	_, err := f.svc.ProcessPesapalNotification(
		context.Background(), "ptrk-ghost", uuid.NewString(), gateway.IPNChangeNotification)
	assert.ErrorIs(t, err, domainErrors.ErrAmbiguousReference)

	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.AmbiguousReference))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(f.metrics.SkippedTerminal.WithLabelValues(gateway.Pesapal)))
	assert.Empty(t, f.outbox.Entries)
}

// --- M-Pesa callbacks ---

func TestProcessMpesaCallback_Success(t *testing.T) {
	f := newReconcileFixture()

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.Mpesa, "ws_CO_42")
	f.orderRepo.Add(o)

	outcome, err := f.svc.ProcessMpesaCallback(context.Background(), "ws_CO_42", 0)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSuccess, outcome)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
}

func TestProcessMpesaCallback_UserCancelled(t *testing.T) {
	f := newReconcileFixture()

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.Mpesa, "ws_CO_43")
	f.orderRepo.Add(o)

	outcome, err := f.svc.ProcessMpesaCallback(context.Background(), "ws_CO_43", 1032)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeFailed, outcome)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)
}

func TestProcessMpesaCallback_UnknownReference(t *testing.T) {
	f := newReconcileFixture()

	_, err := f.svc.ProcessMpesaCallback(context.Background(), "ws_CO_missing", 0)
	assert.ErrorIs(t, err, domainErrors.ErrRegistrationNotFound)
}

// --- PayPal capture ---

func TestCapturePayPal_Completed(t *testing.T) {
	paypal := gateway.NewMockClient(gateway.PayPal)
	paypal.CaptureFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		assert.Equal(t, "PP-ORDER-1", trackingID)
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(paypal)

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.PayPal, "PP-ORDER-1")
	f.orderRepo.Add(o)

	outcome, err := f.svc.CapturePayPal(context.Background(), "PP-ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSuccess, outcome)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
}

// --- Reconciliation sweep ---

func TestReconcileStale_SettlesFinishedPayments(t *testing.T) {
	mpesa := gateway.NewMockClient(gateway.Mpesa)
	mpesa.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(mpesa)

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.Mpesa, "ws_CO_old")
	o.UpdatedAt = time.Now().Add(-time.Hour)
	f.orderRepo.Add(o)

	res, err := f.svc.ReconcileStale(context.Background(), time.Now().Add(-10*time.Minute), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Examined)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, order.PaymentCompleted, o.PaymentStatus)
}

func TestReconcileStale_StillPendingLeftAlone(t *testing.T) {
	mpesa := gateway.NewMockClient(gateway.Mpesa) // default status: pending
	f := newReconcileFixture(mpesa)

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.Mpesa, "ws_CO_wait")
	o.UpdatedAt = time.Now().Add(-time.Hour)
	f.orderRepo.Add(o)

	res, err := f.svc.ReconcileStale(context.Background(), time.Now().Add(-10*time.Minute), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Examined)
	assert.Equal(t, 0, res.Settled)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
}

func TestReconcileStale_TimeoutKeepsPending(t *testing.T) {
	mpesa := gateway.NewMockClient(gateway.Mpesa)
	mpesa.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		return billing.OutcomePending, domainErrors.ErrGatewayTimeout
	}
	f := newReconcileFixture(mpesa)

	o := testutil.WithGatewayReference(testutil.NewTestOrder(1000), gateway.Mpesa, "ws_CO_to")
	o.UpdatedAt = time.Now().Add(-time.Hour)
	f.orderRepo.Add(o)

	res, err := f.svc.ReconcileStale(context.Background(), time.Now().Add(-10*time.Minute), 20)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Settled)
	assert.Equal(t, order.PaymentPending, o.PaymentStatus)
}

func TestReconcileStale_PesapalUsesTrackingID(t *testing.T) {
	var queried string
	pesapal := gateway.NewMockClient(gateway.Pesapal)
	pesapal.StatusFunc = func(ctx context.Context, trackingID string) (billing.Outcome, error) {
		queried = trackingID
		return billing.OutcomeSuccess, nil
	}
	f := newReconcileFixture(pesapal)

	reg := testutil.NewTestRegistration(500)
	trk := "ptrk-sweep"
	reg.SetGatewayReference(gateway.Pesapal, trk, &trk)
	reg.UpdatedAt = time.Now().Add(-time.Hour)
	f.regRepo.Add(reg)

	res, err := f.svc.ReconcileStale(context.Background(), time.Now().Add(-10*time.Minute), 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)
	assert.Equal(t, "ptrk-sweep", queried)
	assert.Equal(t, registration.PaymentCompleted, reg.PaymentStatus)
}
