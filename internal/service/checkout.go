package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
)

// CheckoutService creates and reads the records payments attach to.
type CheckoutService struct {
	orderRepo order.Repository
	regRepo   registration.Repository
	logger    zerolog.Logger
}

func NewCheckoutService(orderRepo order.Repository, regRepo registration.Repository, logger zerolog.Logger) *CheckoutService {
	return &CheckoutService{orderRepo: orderRepo, regRepo: regRepo, logger: logger}
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	Amount   billing.Amount
	Customer billing.Details
}

func (s *CheckoutService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*order.Order, error) {
	o, err := order.NewOrder(req.Amount, req.Customer)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info().Str("order_id", o.ID.String()).Msg("Order created")
	return o, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// CreateRegistrationRequest holds the input for creating a registration.
type CreateRegistrationRequest struct {
	EventID  uuid.UUID
	Amount   billing.Amount
	Attendee billing.Details
}

func (s *CheckoutService) CreateRegistration(ctx context.Context, req CreateRegistrationRequest) (*registration.Registration, error) {
	reg, err := registration.NewRegistration(req.EventID, req.Amount, req.Attendee)
	if err != nil {
		return nil, err
	}
	if err := s.regRepo.Create(ctx, reg); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("registration_id", reg.ID.String()).
		Str("event_id", req.EventID.String()).
		Msg("Registration created")
	return reg, nil
}

func (s *CheckoutService) GetRegistration(ctx context.Context, id uuid.UUID) (*registration.Registration, error) {
	return s.regRepo.GetByID(ctx, id)
}

// RefundRegistration records an operator-issued refund for a completed
// registration. The money movement happens at the gateway's dashboard; this
// keeps the record in step.
func (s *CheckoutService) RefundRegistration(ctx context.Context, id uuid.UUID) (*registration.Registration, error) {
	if err := s.regRepo.MarkRefunded(ctx, id); err != nil {
		return nil, err
	}
	s.logger.Info().Str("registration_id", id.String()).Msg("Registration refunded")
	return s.regRepo.GetByID(ctx, id)
}
