package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
)

const orderColumns = `id, amount_cents, currency, payment_status, status,
	        payment_reference, pesapal_tracking_id, gateway, customer,
	        created_at, updated_at, paid_at`

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO orders
		 (id, amount_cents, currency, payment_status, status,
		  payment_reference, pesapal_tracking_id, gateway, customer,
		  created_at, updated_at, paid_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.Amount.ValueCents, o.Amount.Currency, string(o.PaymentStatus), string(o.Status),
		o.PaymentReference, o.PesapalTrackingID, o.Gateway, customer,
		o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetByPaymentReference retrieves an order by its gateway correlation id.
func (r *OrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_reference = $1`, ref))
}

// SetGatewayReference records the correlation ids returned at initiation.
func (r *OrderRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET gateway=$1, payment_reference=$2, pesapal_tracking_id=$3, updated_at=NOW()
		 WHERE id=$4`,
		gateway, paymentRef, trackingID, id,
	)
	if err != nil {
		return fmt.Errorf("set order gateway reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// ApplyOutcome applies a terminal outcome guarded by payment_status =
// 'pending', so a late or duplicate notification can never overwrite a
// settled payment. Returns whether the row actually transitioned.
func (r *OrderRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error) {
	var query string
	switch outcome {
	case billing.OutcomeSuccess:
		query = `UPDATE orders
		         SET payment_status='completed', status='processing', paid_at=NOW(), updated_at=NOW()
		         WHERE id=$1 AND payment_status='pending'`
	case billing.OutcomeFailed:
		query = `UPDATE orders
		         SET payment_status='failed', updated_at=NOW()
		         WHERE id=$1 AND payment_status='pending'`
	default:
		return false, nil
	}

	tag, err := r.db(ctx).Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("apply order outcome: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListStalePending returns pending orders whose gateway submission happened
// before the cutoff, for the reconciliation sweep.
func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE payment_status = 'pending' AND payment_reference IS NOT NULL AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var (
		paymentStatus string
		status        string
		customer      []byte
	)
	err := s.Scan(
		&o.ID, &o.Amount.ValueCents, &o.Amount.Currency, &paymentStatus, &status,
		&o.PaymentReference, &o.PesapalTrackingID, &o.Gateway, &customer,
		&o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return nil, fmt.Errorf("unmarshal order customer: %w", err)
		}
	}
	return o, nil
}
