package registration

import (
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/errors"
)

// PaymentStatus represents the payment leg of a registration's state machine.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Status represents the registration lifecycle.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusRegistered     Status = "registered"
	StatusCancelled      Status = "cancelled"
	StatusAttended       Status = "attended"
)

// Registration is a paid event registration.
type Registration struct {
	ID                uuid.UUID
	EventID           uuid.UUID
	PaymentAmount     billing.Amount
	PaymentStatus     PaymentStatus
	Status            Status
	PaymentReference  *string
	PesapalTrackingID *string
	Gateway           *string
	Attendee          billing.Details
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
}

// NewRegistration creates a registration awaiting payment.
func NewRegistration(eventID uuid.UUID, amount billing.Amount, attendee billing.Details) (*Registration, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	return &Registration{
		ID:            uuid.New(),
		EventID:       eventID,
		PaymentAmount: amount,
		PaymentStatus: PaymentPending,
		Status:        StatusPendingPayment,
		Attendee:      attendee.WithDefaults(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// PaymentTerminal reports whether the payment leg reached a terminal state.
func (r *Registration) PaymentTerminal() bool {
	return r.PaymentStatus != PaymentPending
}

// ApplyOutcome transitions the registration per a normalized gateway outcome.
// success: payment_status -> completed and status -> registered, together.
// failed: payment_status only. pending: no-op.
func (r *Registration) ApplyOutcome(outcome billing.Outcome) error {
	if outcome == billing.OutcomePending {
		return nil
	}
	if r.PaymentTerminal() {
		if (outcome == billing.OutcomeSuccess && r.PaymentStatus == PaymentCompleted) ||
			(outcome == billing.OutcomeFailed && r.PaymentStatus == PaymentFailed) {
			return nil
		}
		return errors.ErrTerminalState
	}

	now := time.Now()
	switch outcome {
	case billing.OutcomeSuccess:
		r.PaymentStatus = PaymentCompleted
		r.Status = StatusRegistered
		r.PaidAt = &now
	case billing.OutcomeFailed:
		r.PaymentStatus = PaymentFailed
	default:
		return errors.ErrInvalidStateTransition
	}
	r.UpdatedAt = now
	return nil
}

// MarkRefunded records an operator-issued refund. Only a completed
// registration can be refunded.
func (r *Registration) MarkRefunded() error {
	if r.PaymentStatus != PaymentCompleted {
		return errors.NewDomainError(
			"invalid_refund",
			"cannot refund registration in payment status "+string(r.PaymentStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	r.PaymentStatus = PaymentRefunded
	r.Status = StatusCancelled
	r.UpdatedAt = time.Now()
	return nil
}

// SetGatewayReference records the correlation ids returned at initiation.
func (r *Registration) SetGatewayReference(gateway, paymentRef string, trackingID *string) {
	r.Gateway = &gateway
	r.PaymentReference = &paymentRef
	r.PesapalTrackingID = trackingID
	r.UpdatedAt = time.Now()
}
