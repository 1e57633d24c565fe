package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

// Repository defines the interface for order persistence.
type Repository interface {
	// Create inserts a new order in pending payment state.
	Create(ctx context.Context, o *Order) error

	// GetByID retrieves an order by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetByPaymentReference retrieves an order by the gateway correlation id
	// stored at initiation. M-Pesa callbacks carry only this reference.
	GetByPaymentReference(ctx context.Context, ref string) (*Order, error)

	// SetGatewayReference persists the correlation ids returned at initiation.
	SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error

	// ApplyOutcome applies a terminal outcome with a conditional update
	// (WHERE payment_status = 'pending'). It reports whether a row changed,
	// so callers can tell an applied transition from a skipped terminal one.
	ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (applied bool, err error)

	// ListStalePending returns orders still pending with a gateway reference
	// set before the cutoff. Used by the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
}
