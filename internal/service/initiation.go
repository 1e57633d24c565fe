package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
	"github.com/sokodigital/storefront-payments/internal/gateway"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/observability"
)

// InitiationService starts payments for orders and event registrations.
// A submission is attempted exactly once per request: a gateway error is
// returned to the caller, never retried here, because a timed-out STK push
// may still have reached the customer's phone.
type InitiationService struct {
	orderRepo order.Repository
	regRepo   registration.Repository
	factory   *gateway.Factory
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewInitiationService(
	orderRepo order.Repository,
	regRepo registration.Repository,
	factory *gateway.Factory,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *InitiationService {
	return &InitiationService{
		orderRepo: orderRepo,
		regRepo:   regRepo,
		factory:   factory,
		metrics:   metrics,
		logger:    logger,
	}
}

// gatewayErrorType buckets a gateway failure for the errors counter.
func gatewayErrorType(err error) string {
	var authErr *domainErrors.AuthError
	var subErr *domainErrors.SubmissionError
	switch {
	case errors.Is(err, domainErrors.ErrGatewayTimeout):
		return "timeout"
	case errors.Is(err, domainErrors.ErrGatewayUnavailable):
		return "unavailable"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &subErr):
		return "rejected"
	}
	return "error"
}

// InitiateRequest holds the input for starting a payment. Amount and billing
// overrides are optional; the record's stored values are used when absent.
type InitiateRequest struct {
	Kind     billing.RecordKind
	RecordID uuid.UUID
	Gateway  string
	// AmountCents, when positive, replaces the record's stored amount.
	// The currency always stays the record's.
	AmountCents int64
	// Billing overlays the record's stored billing details field by field.
	Billing *billing.Details
	// Phone overrides the billing phone for STK push prompts. It wins over
	// both the stored record and a Billing override.
	Phone string
}

// InitiateResponse holds the handles the checkout UI needs next.
type InitiateResponse struct {
	MerchantReference string
	TrackingID        string
	RedirectURL       string
	Gateway           string
}

// Initiate loads the record, stamps its merchant reference and submits the
// payment to the chosen gateway. The gateway's correlation ids are persisted
// before returning so a callback racing this call can still be resolved.
func (s *InitiationService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	client, err := s.factory.Get(req.Gateway)
	if err != nil {
		return nil, err
	}

	amount, details, err := s.loadRecord(ctx, req.Kind, req.RecordID)
	if err != nil {
		return nil, err
	}
	if req.AmountCents > 0 {
		amount.ValueCents = req.AmountCents
	}
	if req.Billing != nil {
		details = details.Merge(*req.Billing).WithDefaults()
	}
	if req.Phone != "" {
		details.Phone = billing.NormalizePhone(req.Phone)
	}

	reference := billing.MerchantReference(req.Kind, req.RecordID.String())

	start := time.Now()
	sub, err := client.SubmitPayment(ctx, gateway.Request{
		MerchantReference: reference,
		Amount:            amount,
		Description:       fmt.Sprintf("Payment for %s %s", req.Kind, req.RecordID),
		Billing:           details,
	})
	s.metrics.GatewayRequestDuration.WithLabelValues(req.Gateway, "submit").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.InitiationsTotal.WithLabelValues(req.Gateway, string(req.Kind), "error").Inc()
		s.metrics.GatewayErrors.WithLabelValues(req.Gateway, gatewayErrorType(err)).Inc()
		s.logger.Error().Err(err).
			Str("gateway", req.Gateway).
			Str("reference", reference).
			Msg("Payment submission failed")
		return nil, err
	}

	if err := s.storeReference(ctx, req, sub); err != nil {
		// The gateway accepted the payment; losing the reference would
		// orphan the callback, so this is a hard error.
		s.logger.Error().Err(err).
			Str("gateway", req.Gateway).
			Str("tracking_id", sub.TrackingID).
			Msg("Failed to persist gateway reference")
		return nil, err
	}

	s.metrics.InitiationsTotal.WithLabelValues(req.Gateway, string(req.Kind), "submitted").Inc()
	s.logger.Info().
		Str("gateway", req.Gateway).
		Str("reference", reference).
		Str("tracking_id", sub.TrackingID).
		Msg("Payment initiated")

	return &InitiateResponse{
		MerchantReference: reference,
		TrackingID:        sub.TrackingID,
		RedirectURL:       sub.RedirectURL,
		Gateway:           req.Gateway,
	}, nil
}

func (s *InitiationService) loadRecord(ctx context.Context, kind billing.RecordKind, id uuid.UUID) (billing.Amount, billing.Details, error) {
	switch kind {
	case billing.KindOrder:
		o, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return billing.Amount{}, billing.Details{}, err
		}
		if o.PaymentTerminal() {
			return billing.Amount{}, billing.Details{}, domainErrors.ErrTerminalState
		}
		return o.Amount, o.Customer.WithDefaults(), nil
	case billing.KindEvent:
		reg, err := s.regRepo.GetByID(ctx, id)
		if err != nil {
			return billing.Amount{}, billing.Details{}, err
		}
		if reg.PaymentTerminal() {
			return billing.Amount{}, billing.Details{}, domainErrors.ErrTerminalState
		}
		return reg.PaymentAmount, reg.Attendee.WithDefaults(), nil
	}
	return billing.Amount{}, billing.Details{}, domainErrors.ErrInvalidRecordKind
}

func (s *InitiationService) storeReference(ctx context.Context, req InitiateRequest, sub *gateway.Submission) error {
	var trackingID *string
	if req.Gateway == gateway.Pesapal {
		trackingID = &sub.TrackingID
	}

	switch req.Kind {
	case billing.KindOrder:
		return s.orderRepo.SetGatewayReference(ctx, req.RecordID, req.Gateway, sub.TrackingID, trackingID)
	case billing.KindEvent:
		return s.regRepo.SetGatewayReference(ctx, req.RecordID, req.Gateway, sub.TrackingID, trackingID)
	}
	return domainErrors.ErrInvalidRecordKind
}

// PaymentState is a read model of one record's payment progress.
type PaymentState struct {
	Kind          billing.RecordKind
	RecordID      uuid.UUID
	PaymentStatus string
	Status        string
	Gateway       *string
	Reference     *string
	PaidAt        *time.Time
}

// PaymentStatus reports the current payment state of an order or
// registration, for checkout polling.
func (s *InitiationService) PaymentStatus(ctx context.Context, kind billing.RecordKind, id uuid.UUID) (*PaymentState, error) {
	switch kind {
	case billing.KindOrder:
		o, err := s.orderRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &PaymentState{
			Kind: kind, RecordID: id,
			PaymentStatus: string(o.PaymentStatus), Status: string(o.Status),
			Gateway: o.Gateway, Reference: o.PaymentReference, PaidAt: o.PaidAt,
		}, nil
	case billing.KindEvent:
		reg, err := s.regRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return &PaymentState{
			Kind: kind, RecordID: id,
			PaymentStatus: string(reg.PaymentStatus), Status: string(reg.Status),
			Gateway: reg.Gateway, Reference: reg.PaymentReference, PaidAt: reg.PaidAt,
		}, nil
	}
	return nil, domainErrors.ErrInvalidRecordKind
}
