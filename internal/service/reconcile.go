package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/outbox"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
	"github.com/sokodigital/storefront-payments/internal/gateway"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
)

// ReconcileService settles payment outcomes onto orders and registrations.
// Callbacks, IPNs, capture results and the stale-pending sweep all converge
// here, so the terminal-state guard lives in exactly one place.
type ReconcileService struct {
	orderRepo order.Repository
	regRepo   registration.Repository
	outbox    outbox.Repository
	tx        TransactionManager
	factory   *gateway.Factory
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewReconcileService(
	orderRepo order.Repository,
	regRepo registration.Repository,
	outboxRepo outbox.Repository,
	tx TransactionManager,
	factory *gateway.Factory,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ReconcileService {
	return &ReconcileService{
		orderRepo: orderRepo,
		regRepo:   regRepo,
		outbox:    outboxRepo,
		tx:        tx,
		factory:   factory,
		metrics:   metrics,
		logger:    logger,
	}
}

// Resolve maps a merchant reference back to the record it pays for. New
// references are deterministic: the EVT- prefix marks registrations and a
// bare id is an order. References from before the prefix existed carry no
// marker, so an unprefixed id that only matches a registration still routes
// there; one matching both tables is counted, logged and treated as an order.
func (s *ReconcileService) Resolve(ctx context.Context, merchantRef string) (billing.RecordKind, uuid.UUID, error) {
	if merchantRef == "" {
		return "", uuid.Nil, domainErrors.ErrMissingReference
	}

	if trimmed, ok := strings.CutPrefix(merchantRef, billing.EventReferencePrefix); ok {
		id, err := uuid.Parse(trimmed)
		if err != nil {
			return "", uuid.Nil, domainErrors.NewDomainError(
				"bad_reference", "event reference is not a valid id: "+merchantRef, err)
		}
		return billing.KindEvent, id, nil
	}

	id, err := uuid.Parse(merchantRef)
	if err != nil {
		return "", uuid.Nil, domainErrors.NewDomainError(
			"bad_reference", "reference is not a valid id: "+merchantRef, err)
	}

	// Legacy references lack the prefix, so probe the registrations table.
	isReg, err := s.regRepo.Exists(ctx, id)
	if err != nil {
		return "", uuid.Nil, err
	}
	if !isReg {
		return billing.KindOrder, id, nil
	}

	// Registration matched; check whether an order also claims this id.
	_, err = s.orderRepo.GetByID(ctx, id)
	switch {
	case err == nil:
		s.metrics.AmbiguousReference.Inc()
		s.logger.Error().
			Str("reference", merchantRef).
			Msg("Merchant reference matches both an order and a registration; treating as order")
		return billing.KindOrder, id, nil
	case errors.Is(err, domainErrors.ErrOrderNotFound):
		return billing.KindEvent, id, nil
	default:
		return "", uuid.Nil, err
	}
}

// ResolveTracking maps a gateway correlation id (CheckoutRequestID, PayPal
// order id) to its record. Used for callbacks that omit the merchant
// reference.
func (s *ReconcileService) ResolveTracking(ctx context.Context, trackingID string) (billing.RecordKind, uuid.UUID, error) {
	if trackingID == "" {
		return "", uuid.Nil, domainErrors.ErrMissingReference
	}

	o, err := s.orderRepo.GetByPaymentReference(ctx, trackingID)
	if err == nil {
		return billing.KindOrder, o.ID, nil
	}
	if !errors.Is(err, domainErrors.ErrOrderNotFound) {
		return "", uuid.Nil, err
	}

	reg, err := s.regRepo.GetByPaymentReference(ctx, trackingID)
	if err != nil {
		return "", uuid.Nil, err
	}
	return billing.KindEvent, reg.ID, nil
}

// Apply settles a normalized outcome onto a record. The underlying update is
// conditional on the payment still being pending, so replayed or conflicting
// notifications cannot flip a settled payment; those are counted and dropped.
// A pending outcome is a no-op. An id that matches no record at all returns
// ErrAmbiguousReference. Returns whether the record transitioned.
func (s *ReconcileService) Apply(ctx context.Context, kind billing.RecordKind, id uuid.UUID, gatewayName string, outcome billing.Outcome) (bool, error) {
	if !outcome.Terminal() {
		return false, nil
	}

	var applied bool
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		switch kind {
		case billing.KindOrder:
			applied, err = s.orderRepo.ApplyOutcome(txCtx, id, outcome)
		case billing.KindEvent:
			applied, err = s.regRepo.ApplyOutcome(txCtx, id, outcome)
		default:
			return domainErrors.ErrInvalidRecordKind
		}
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return s.outbox.Insert(txCtx, outbox.NewPaymentEvent(kind, id, gatewayName, outcome))
	})
	if err != nil {
		return false, err
	}

	s.metrics.CallbacksTotal.WithLabelValues(gatewayName, string(outcome)).Inc()
	if applied {
		s.logger.Info().
			Str("kind", string(kind)).
			Str("record_id", id.String()).
			Str("gateway", gatewayName).
			Str("outcome", string(outcome)).
			Msg("Payment outcome applied")
		return true, nil
	}

	// The guarded update touched no rows: either the record is already
	// settled, or the reference resolved to a record that does not exist.
	exists, err := s.recordExists(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if !exists {
		s.metrics.AmbiguousReference.Inc()
		s.logger.Error().
			Str("kind", string(kind)).
			Str("record_id", id.String()).
			Str("gateway", gatewayName).
			Str("outcome", string(outcome)).
			Msg("Merchant reference resolved to a record that does not exist")
		return false, domainErrors.ErrAmbiguousReference
	}

	s.metrics.SkippedTerminal.WithLabelValues(gatewayName).Inc()
	s.logger.Warn().
		Str("kind", string(kind)).
		Str("record_id", id.String()).
		Str("gateway", gatewayName).
		Str("outcome", string(outcome)).
		Msg("Outcome dropped: record already settled")
	return false, nil
}

func (s *ReconcileService) recordExists(ctx context.Context, kind billing.RecordKind, id uuid.UUID) (bool, error) {
	switch kind {
	case billing.KindOrder:
		_, err := s.orderRepo.GetByID(ctx, id)
		if errors.Is(err, domainErrors.ErrOrderNotFound) {
			return false, nil
		}
		return err == nil, err
	case billing.KindEvent:
		return s.regRepo.Exists(ctx, id)
	}
	return false, domainErrors.ErrInvalidRecordKind
}

// ProcessPesapalNotification handles a browser callback or server IPN from
// Pesapal. Both carry only identifiers; the authoritative status is fetched
// from the gateway. IPN notification types other than a payment status
// change are ignored.
func (s *ReconcileService) ProcessPesapalNotification(ctx context.Context, orderTrackingID, merchantRef, notificationType string) (billing.Outcome, error) {
	if notificationType != "" && notificationType != gateway.IPNChangeNotification {
		s.logger.Debug().
			Str("notification_type", notificationType).
			Msg("Ignoring non-change Pesapal notification")
		return billing.OutcomePending, nil
	}

	kind, id, err := s.Resolve(ctx, merchantRef)
	if err != nil {
		return billing.OutcomePending, err
	}

	client, err := s.factory.Get(gateway.Pesapal)
	if err != nil {
		return billing.OutcomePending, err
	}

	start := time.Now()
	outcome, err := client.TransactionStatus(ctx, orderTrackingID)
	s.metrics.GatewayRequestDuration.WithLabelValues(gateway.Pesapal, "status").Observe(time.Since(start).Seconds())
	if err != nil {
		// Timeouts leave the record pending for the sweep to retry.
		s.metrics.GatewayErrors.WithLabelValues(gateway.Pesapal, gatewayErrorType(err)).Inc()
		s.logger.Error().Err(err).
			Str("tracking_id", orderTrackingID).
			Msg("Pesapal status query failed")
		return billing.OutcomePending, err
	}

	_, err = s.Apply(ctx, kind, id, gateway.Pesapal, outcome)
	return outcome, err
}

// ProcessMpesaCallback settles an STK push result. The callback identifies
// the attempt by CheckoutRequestID only.
func (s *ReconcileService) ProcessMpesaCallback(ctx context.Context, checkoutRequestID string, resultCode int) (billing.Outcome, error) {
	kind, id, err := s.ResolveTracking(ctx, checkoutRequestID)
	if err != nil {
		return billing.OutcomePending, err
	}

	outcome := gateway.NormalizeMpesaResult(resultCode)
	_, err = s.Apply(ctx, kind, id, gateway.Mpesa, outcome)
	return outcome, err
}

// CapturePayPal captures an approved PayPal order and settles the result.
func (s *ReconcileService) CapturePayPal(ctx context.Context, paypalOrderID string) (billing.Outcome, error) {
	kind, id, err := s.ResolveTracking(ctx, paypalOrderID)
	if err != nil {
		return billing.OutcomePending, err
	}

	client, err := s.factory.Get(gateway.PayPal)
	if err != nil {
		return billing.OutcomePending, err
	}
	capturer, ok := client.(gateway.Capturer)
	if !ok {
		return billing.OutcomePending, domainErrors.ErrGatewayNotFound
	}

	start := time.Now()
	outcome, err := capturer.Capture(ctx, paypalOrderID)
	s.metrics.GatewayRequestDuration.WithLabelValues(gateway.PayPal, "capture").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.GatewayErrors.WithLabelValues(gateway.PayPal, gatewayErrorType(err)).Inc()
		s.logger.Error().Err(err).
			Str("paypal_order_id", paypalOrderID).
			Msg("PayPal capture failed")
		return billing.OutcomePending, err
	}

	_, err = s.Apply(ctx, kind, id, gateway.PayPal, outcome)
	return outcome, err
}

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	Examined int
	Settled  int
}

// ReconcileStale finds payments that have sat pending past the cutoff with a
// gateway reference on file, queries the gateway for each and settles any
// that finished. Records the gateway still reports pending are left alone.
func (s *ReconcileService) ReconcileStale(ctx context.Context, cutoff time.Time, limit int) (*SweepResult, error) {
	res := &SweepResult{}

	orders, err := s.orderRepo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return res, err
	}
	for _, o := range orders {
		if o.Gateway == nil || o.PaymentReference == nil {
			continue
		}
		res.Examined++
		if s.sweepOne(ctx, billing.KindOrder, o.ID, *o.Gateway, s.statusRef(*o.Gateway, *o.PaymentReference, o.PesapalTrackingID)) {
			res.Settled++
		}
	}

	regs, err := s.regRepo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return res, err
	}
	for _, reg := range regs {
		if reg.Gateway == nil || reg.PaymentReference == nil {
			continue
		}
		res.Examined++
		if s.sweepOne(ctx, billing.KindEvent, reg.ID, *reg.Gateway, s.statusRef(*reg.Gateway, *reg.PaymentReference, reg.PesapalTrackingID)) {
			res.Settled++
		}
	}

	return res, nil
}

// statusRef picks the identifier the gateway's status endpoint expects.
func (s *ReconcileService) statusRef(gatewayName, paymentRef string, pesapalTrackingID *string) string {
	if gatewayName == gateway.Pesapal && pesapalTrackingID != nil {
		return *pesapalTrackingID
	}
	return paymentRef
}

func (s *ReconcileService) sweepOne(ctx context.Context, kind billing.RecordKind, id uuid.UUID, gatewayName, trackingID string) bool {
	client, err := s.factory.Get(gatewayName)
	if err != nil {
		s.logger.Error().Err(err).Str("gateway", gatewayName).Msg("Unknown gateway during sweep")
		return false
	}

	start := time.Now()
	outcome, err := client.TransactionStatus(ctx, trackingID)
	s.metrics.GatewayRequestDuration.WithLabelValues(gatewayName, "status").Observe(time.Since(start).Seconds())
	if err != nil {
		// Stays pending; the next sweep retries.
		s.metrics.GatewayErrors.WithLabelValues(gatewayName, gatewayErrorType(err)).Inc()
		s.logger.Warn().Err(err).
			Str("kind", string(kind)).
			Str("record_id", id.String()).
			Msg("Status query failed during sweep")
		return false
	}
	if !outcome.Terminal() {
		return false
	}

	applied, err := s.Apply(ctx, kind, id, gatewayName, outcome)
	if err != nil {
		s.logger.Error().Err(err).
			Str("kind", string(kind)).
			Str("record_id", id.String()).
			Msg("Failed to apply sweep outcome")
		return false
	}
	if applied {
		s.metrics.SweepReconciled.WithLabelValues(gatewayName, string(outcome)).Inc()
	}
	return applied
}
