package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/outbox"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
)

// --- Order Repository Mock ---

// MockOrderRepository is an in-memory implementation of order.Repository.
// Any behavior can be overridden per test via the XxxFunc fields.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	CreateFunc                func(ctx context.Context, o *order.Order) error
	GetByIDFunc               func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetByPaymentReferenceFunc func(ctx context.Context, ref string) (*order.Order, error)
	SetGatewayReferenceFunc   func(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error
	ApplyOutcomeFunc          func(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error)
	ListStalePendingFunc      func(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
}

// Add seeds an order directly into the store.
func (m *MockOrderRepository) Add(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.Add(o)
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepository) GetByPaymentReference(ctx context.Context, ref string) (*order.Order, error) {
	if m.GetByPaymentReferenceFunc != nil {
		return m.GetByPaymentReferenceFunc(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.PaymentReference != nil && *o.PaymentReference == ref {
			return o, nil
		}
	}
	return nil, domainErrors.ErrOrderNotFound
}

func (m *MockOrderRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error {
	if m.SetGatewayReferenceFunc != nil {
		return m.SetGatewayReferenceFunc(ctx, id, gateway, paymentRef, trackingID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domainErrors.ErrOrderNotFound
	}
	o.SetGatewayReference(gateway, paymentRef, trackingID)
	return nil
}

func (m *MockOrderRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error) {
	if m.ApplyOutcomeFunc != nil {
		return m.ApplyOutcomeFunc(ctx, id, outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	if o.PaymentTerminal() || !outcome.Terminal() {
		return false, nil
	}
	if err := o.ApplyOutcome(outcome); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MockOrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	if m.ListStalePendingFunc != nil {
		return m.ListStalePendingFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*order.Order
	for _, o := range m.orders {
		if o.PaymentStatus == order.PaymentPending && o.PaymentReference != nil && o.UpdatedAt.Before(cutoff) {
			out = append(out, o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// --- Registration Repository Mock ---

// MockRegistrationRepository is an in-memory implementation of
// registration.Repository.
type MockRegistrationRepository struct {
	mu   sync.Mutex
	regs map[uuid.UUID]*registration.Registration

	CreateFunc                func(ctx context.Context, r *registration.Registration) error
	GetByIDFunc               func(ctx context.Context, id uuid.UUID) (*registration.Registration, error)
	GetByPaymentReferenceFunc func(ctx context.Context, ref string) (*registration.Registration, error)
	ExistsFunc                func(ctx context.Context, id uuid.UUID) (bool, error)
	SetGatewayReferenceFunc   func(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error
	ApplyOutcomeFunc          func(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error)
	MarkRefundedFunc          func(ctx context.Context, id uuid.UUID) error
	ListStalePendingFunc      func(ctx context.Context, cutoff time.Time, limit int) ([]*registration.Registration, error)
}

func NewMockRegistrationRepository() *MockRegistrationRepository {
	return &MockRegistrationRepository{regs: make(map[uuid.UUID]*registration.Registration)}
}

// Add seeds a registration directly into the store.
func (m *MockRegistrationRepository) Add(r *registration.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[r.ID] = r
}

func (m *MockRegistrationRepository) Create(ctx context.Context, r *registration.Registration) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, r)
	}
	m.Add(r)
	return nil
}

func (m *MockRegistrationRepository) GetByID(ctx context.Context, id uuid.UUID) (*registration.Registration, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return nil, domainErrors.ErrRegistrationNotFound
	}
	return r, nil
}

func (m *MockRegistrationRepository) GetByPaymentReference(ctx context.Context, ref string) (*registration.Registration, error) {
	if m.GetByPaymentReferenceFunc != nil {
		return m.GetByPaymentReferenceFunc(ctx, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.PaymentReference != nil && *r.PaymentReference == ref {
			return r, nil
		}
	}
	return nil, domainErrors.ErrRegistrationNotFound
}

func (m *MockRegistrationRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.regs[id]
	return ok, nil
}

func (m *MockRegistrationRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, gateway, paymentRef string, trackingID *string) error {
	if m.SetGatewayReferenceFunc != nil {
		return m.SetGatewayReferenceFunc(ctx, id, gateway, paymentRef, trackingID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return domainErrors.ErrRegistrationNotFound
	}
	r.SetGatewayReference(gateway, paymentRef, trackingID)
	return nil
}

func (m *MockRegistrationRepository) ApplyOutcome(ctx context.Context, id uuid.UUID, outcome billing.Outcome) (bool, error) {
	if m.ApplyOutcomeFunc != nil {
		return m.ApplyOutcomeFunc(ctx, id, outcome)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return false, nil
	}
	if r.PaymentTerminal() || !outcome.Terminal() {
		return false, nil
	}
	if err := r.ApplyOutcome(outcome); err != nil {
		return false, err
	}
	return true, nil
}

func (m *MockRegistrationRepository) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	if m.MarkRefundedFunc != nil {
		return m.MarkRefundedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regs[id]
	if !ok {
		return domainErrors.ErrRegistrationNotFound
	}
	return r.MarkRefunded()
}

func (m *MockRegistrationRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*registration.Registration, error) {
	if m.ListStalePendingFunc != nil {
		return m.ListStalePendingFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*registration.Registration
	for _, r := range m.regs {
		if r.PaymentStatus == registration.PaymentPending && r.PaymentReference != nil && r.UpdatedAt.Before(cutoff) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory implementation of outbox.Repository.
type MockOutboxRepository struct {
	mu      sync.Mutex
	Entries []*outbox.Entry

	InsertFunc        func(ctx context.Context, entry *outbox.Entry) error
	GetPendingFunc    func(ctx context.Context, limit int) ([]*outbox.Entry, error)
	MarkPublishedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc    func(ctx context.Context, id uuid.UUID) error
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

func (m *MockOutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
	return nil
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if m.GetPendingFunc != nil {
		return m.GetPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*outbox.Entry
	for _, e := range m.Entries {
		if e.Status == outbox.StatusPending {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.Status = outbox.StatusPublished
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Entries {
		if e.ID == id {
			e.RetryCount++
			if e.RetryCount >= e.MaxRetries {
				e.Status = outbox.StatusFailed
			}
		}
	}
	return nil
}

// --- Transaction Manager Mock ---

// MockTxManager runs the callback directly; tests assert repository effects.
type MockTxManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}
