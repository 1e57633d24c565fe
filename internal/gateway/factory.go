package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// Factory holds the registered gateway clients, each wrapped with its own
// circuit breaker so one flapping gateway cannot exhaust checkout workers.
type Factory struct {
	clients map[string]Client
}

// NewFactory registers the given clients. With no arguments it builds the
// three production clients against the provided settings.
func NewFactory(settings SettingsProvider, clients ...Client) *Factory {
	f := &Factory{clients: make(map[string]Client)}

	if len(clients) == 0 {
		f.Register(NewMpesaClient(settings))
		f.Register(NewPayPalClient(settings))
		f.Register(NewPesapalClient(settings))
	} else {
		for _, c := range clients {
			f.Register(c)
		}
	}
	return f
}

// Register wraps the client in a circuit breaker and adds it to the factory.
func (f *Factory) Register(c Client) {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        c.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})
	f.clients[c.Name()] = &breakerClient{inner: c, cb: cb}
}

// Get returns the circuit-breaker-wrapped client for a gateway name.
func (f *Factory) Get(name string) (Client, error) {
	c, ok := f.clients[name]
	if !ok {
		return nil, fmt.Errorf("gateway %q: %w", name, domainErrors.ErrGatewayNotFound)
	}
	return c, nil
}

// Names lists the registered gateway names.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.clients))
	for n := range f.clients {
		names = append(names, n)
	}
	return names
}

// breakerClient decorates a Client with a circuit breaker. When the breaker
// is open, calls fail fast with ErrGatewayUnavailable.
type breakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker[any]
}

func (b *breakerClient) Name() string { return b.inner.Name() }

func (b *breakerClient) SubmitPayment(ctx context.Context, req Request) (*Submission, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.SubmitPayment(ctx, req)
	})
	if err != nil {
		return nil, b.mapErr(err)
	}
	return res.(*Submission), nil
}

func (b *breakerClient) TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error) {
	res, err := b.cb.Execute(func() (any, error) {
		outcome, err := b.inner.TransactionStatus(ctx, trackingID)
		if err != nil {
			return outcome, err
		}
		return outcome, nil
	})
	if err != nil {
		return billing.OutcomePending, b.mapErr(err)
	}
	return res.(billing.Outcome), nil
}

// Capture forwards to the wrapped client when it supports capture.
func (b *breakerClient) Capture(ctx context.Context, trackingID string) (billing.Outcome, error) {
	capturer, ok := b.inner.(Capturer)
	if !ok {
		return billing.OutcomePending, fmt.Errorf("gateway %q does not support capture: %w", b.inner.Name(), domainErrors.ErrInvalidInput)
	}
	res, err := b.cb.Execute(func() (any, error) {
		return capturer.Capture(ctx, trackingID)
	})
	if err != nil {
		return billing.OutcomePending, b.mapErr(err)
	}
	return res.(billing.Outcome), nil
}

func (b *breakerClient) mapErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%s: %w", b.inner.Name(), domainErrors.ErrGatewayUnavailable)
	}
	return err
}
