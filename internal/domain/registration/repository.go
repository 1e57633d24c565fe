package registration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

// Repository defines the interface for event registration persistence.
type Repository interface {
	// Create inserts a new registration in pending_payment state.
	Create(ctx context.Context, r *Registration) error

	// GetByID retrieves a registration by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Registration, error)

	// GetByPaymentReference retrieves a registration by the gateway
	// correlation id stored at initiation.
	GetByPaymentReference(ctx context.Context, ref string) (*Registration, error)

	// Exists reports whether a registration with the given id exists.
	// The callback resolver probes with this for unprefixed references.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// SetGatewayReference persists the correlation ids returned at initiation.
	SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error

	// ApplyOutcome applies a terminal outcome with a conditional update
	// (WHERE payment_status = 'pending'). It reports whether a row changed.
	ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (applied bool, err error)

	// MarkRefunded flips a completed registration to refunded/cancelled.
	MarkRefunded(ctx context.Context, id uuid.UUID) error

	// ListStalePending returns registrations still pending with a gateway
	// reference set before the cutoff. Used by the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Registration, error)
}
