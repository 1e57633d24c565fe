package testutil

import (
	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
)

func NewTestOrder(amountCents int64) *order.Order {
	o, err := order.NewOrder(
		billing.Amount{ValueCents: amountCents, Currency: "KES"},
		billing.Details{Email: "buyer@example.com", Phone: "0712345678", FirstName: "Jane", LastName: "Mwangi"},
	)
	if err != nil {
		panic(err)
	}
	return o
}

func NewTestRegistration(amountCents int64) *registration.Registration {
	r, err := registration.NewRegistration(
		uuid.New(),
		billing.Amount{ValueCents: amountCents, Currency: "KES"},
		billing.Details{Email: "attendee@example.com", Phone: "0722000111", FirstName: "Otieno", LastName: "Okoth"},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// WithGatewayReference stamps an order as submitted to a gateway.
func WithGatewayReference(o *order.Order, gateway, ref string) *order.Order {
	o.SetGatewayReference(gateway, ref, nil)
	return o
}

func StrPtr(s string) *string { return &s }

func UUIDPtr(id uuid.UUID) *uuid.UUID { return &id }
