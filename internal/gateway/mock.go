package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

// MockClient is an in-memory gateway for tests and local development. By
// default it accepts every submission and reports attempts as pending, which
// mirrors real gateways: initiation never reports a terminal state
// synchronously.
type MockClient struct {
	name        string
	redirectURL string

	SubmitFunc  func(ctx context.Context, req Request) (*Submission, error)
	StatusFunc  func(ctx context.Context, trackingID string) (billing.Outcome, error)
	CaptureFunc func(ctx context.Context, trackingID string) (billing.Outcome, error)
}

type MockOption func(*MockClient)

// WithMockRedirectURL makes the mock behave like a redirect-based gateway.
func WithMockRedirectURL(u string) MockOption {
	return func(m *MockClient) { m.redirectURL = u }
}

func NewMockClient(name string, opts ...MockOption) *MockClient {
	m := &MockClient{name: name}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockClient) Name() string { return m.name }

func (m *MockClient) SubmitPayment(ctx context.Context, req Request) (*Submission, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return &Submission{
		TrackingID:  fmt.Sprintf("%s_trk_%s", m.name, uuid.New().String()[:8]),
		RedirectURL: m.redirectURL,
	}, nil
}

func (m *MockClient) TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, trackingID)
	}
	return billing.OutcomePending, nil
}

func (m *MockClient) Capture(ctx context.Context, trackingID string) (billing.Outcome, error) {
	if m.CaptureFunc != nil {
		return m.CaptureFunc(ctx, trackingID)
	}
	return billing.OutcomeSuccess, nil
}
