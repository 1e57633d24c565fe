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
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
)

const registrationColumns = `id, event_id, payment_amount_cents, currency, payment_status, status,
	        payment_reference, pesapal_tracking_id, gateway, attendee,
	        created_at, updated_at, paid_at`

// RegistrationRepository implements registration.Repository using PostgreSQL.
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepository creates a new RegistrationRepository.
func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

func (r *RegistrationRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Create inserts a new registration.
func (r *RegistrationRepository) Create(ctx context.Context, reg *registration.Registration) error {
	attendee, err := json.Marshal(reg.Attendee)
	if err != nil {
		return fmt.Errorf("marshal attendee: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO event_registrations
		 (id, event_id, payment_amount_cents, currency, payment_status, status,
		  payment_reference, pesapal_tracking_id, gateway, attendee,
		  created_at, updated_at, paid_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		reg.ID, reg.EventID, reg.PaymentAmount.ValueCents, reg.PaymentAmount.Currency,
		string(reg.PaymentStatus), string(reg.Status),
		reg.PaymentReference, reg.PesapalTrackingID, reg.Gateway, attendee,
		reg.CreatedAt, reg.UpdatedAt, reg.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetByID retrieves a registration by its ID.
func (r *RegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*registration.Registration, error) {
	return r.scanRegistration(r.db(ctx).QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE id = $1`, id))
}

// GetByPaymentReference retrieves a registration by its gateway correlation id.
func (r *RegistrationRepository) GetByPaymentReference(ctx context.Context, ref string) (*registration.Registration, error) {
	return r.scanRegistration(r.db(ctx).QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM event_registrations WHERE payment_reference = $1`, ref))
}

// Exists reports whether a registration row exists for the given id.
func (r *RegistrationRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM event_registrations WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check registration exists: %w", err)
	}
	return exists, nil
}

// SetGatewayReference records the correlation ids returned at initiation.
func (r *RegistrationRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE event_registrations SET gateway=$1, payment_reference=$2, pesapal_tracking_id=$3, updated_at=NOW()
		 WHERE id=$4`,
		gateway, paymentRef, trackingID, id,
	)
	if err != nil {
		return fmt.Errorf("set registration gateway reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrRegistrationNotFound
	}
	return nil
}

// ApplyOutcome applies a terminal outcome guarded by payment_status =
// 'pending'. Returns whether the row actually transitioned.
func (r *RegistrationRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error) {
	var query string
	switch outcome {
	case billing.OutcomeSuccess:
		query = `UPDATE event_registrations
		         SET payment_status='completed', status='registered', paid_at=NOW(), updated_at=NOW()
		         WHERE id=$1 AND payment_status='pending'`
	case billing.OutcomeFailed:
		query = `UPDATE event_registrations
		         SET payment_status='failed', updated_at=NOW()
		         WHERE id=$1 AND payment_status='pending'`
	default:
		return false, nil
	}

	tag, err := r.db(ctx).Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("apply registration outcome: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRefunded flips a completed registration to refunded and cancels it.
func (r *RegistrationRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE event_registrations
		 SET payment_status='refunded', status='cancelled', updated_at=NOW()
		 WHERE id=$1 AND payment_status='completed'`, id,
	)
	if err != nil {
		return fmt.Errorf("mark registration refunded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrInvalidStateTransition
	}
	return nil
}

// ListStalePending returns pending registrations whose gateway submission
// happened before the cutoff, for the reconciliation sweep.
func (r *RegistrationRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*registration.Registration, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM event_registrations
		 WHERE payment_status = 'pending' AND payment_reference IS NOT NULL AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending registrations: %w", err)
	}
	defer rows.Close()

	var regs []*registration.Registration
	for rows.Next() {
		reg, err := r.scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *RegistrationRepository) scanRegistration(s scanner) (*registration.Registration, error) {
	reg := &registration.Registration{}
	var (
		paymentStatus string
		status        string
		attendee      []byte
	)
	err := s.Scan(
		&reg.ID, &reg.EventID, &reg.PaymentAmount.ValueCents, &reg.PaymentAmount.Currency,
		&paymentStatus, &status,
		&reg.PaymentReference, &reg.PesapalTrackingID, &reg.Gateway, &attendee,
		&reg.CreatedAt, &reg.UpdatedAt, &reg.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}

	reg.PaymentStatus = registration.PaymentStatus(paymentStatus)
	reg.Status = registration.Status(status)
	if len(attendee) > 0 {
		if err := json.Unmarshal(attendee, &reg.Attendee); err != nil {
			return nil, fmt.Errorf("unmarshal registration attendee: %w", err)
		}
	}
	return reg, nil
}
