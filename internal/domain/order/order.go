package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/errors"
)

// PaymentStatus represents the payment leg of an order's state machine.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Status represents the fulfilment leg of an order's state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Order is a purchasable product order.
type Order struct {
	ID                uuid.UUID
	Amount            billing.Amount
	PaymentStatus     PaymentStatus
	Status            Status
	PaymentReference  *string
	PesapalTrackingID *string
	Gateway           *string
	Customer          billing.Details
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

// NewOrder creates an order awaiting payment.
func NewOrder(amount billing.Amount, customer billing.Details) (*Order, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Order{
		ID:            uuid.New(),
		Amount:        amount,
		PaymentStatus: PaymentPending,
		Status:        StatusPending,
		Customer:      customer.WithDefaults(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// PaymentTerminal reports whether the payment leg reached a terminal state.
// Terminal states are monotonic: no notification may transition away from one.
func (o *Order) PaymentTerminal() bool {
	return o.PaymentStatus == PaymentCompleted || o.PaymentStatus == PaymentFailed
}

// ApplyOutcome transitions the order per a normalized gateway outcome.
// success: payment_status -> completed and status -> processing, together.
// failed: payment_status only. pending: no-op.
func (o *Order) ApplyOutcome(outcome billing.Outcome) error {
	if outcome == billing.OutcomePending {
		return nil
	}
	if o.PaymentTerminal() {
		// Idempotent re-delivery of the same terminal outcome is harmless.
		if (outcome == billing.OutcomeSuccess && o.PaymentStatus == PaymentCompleted) ||
			(outcome == billing.OutcomeFailed && o.PaymentStatus == PaymentFailed) {
			return nil
		}
		return errors.ErrTerminalState
	}

	now := time.Now()
	switch outcome {
	case billing.OutcomeSuccess:
		o.PaymentStatus = PaymentCompleted
		o.Status = StatusProcessing
		o.PaidAt = &now
	case billing.OutcomeFailed:
		o.PaymentStatus = PaymentFailed
	default:
		return errors.ErrInvalidStateTransition
	}
	o.UpdatedAt = now
	return nil
}

// SetGatewayReference records the correlation ids returned at initiation.
func (o *Order) SetGatewayReference(gateway, paymentRef string, trackingID *string) {
	o.Gateway = &gateway
	o.PaymentReference = &paymentRef
	o.PesapalTrackingID = trackingID
	o.UpdatedAt = time.Now()
}
