package controller

import (
	"time"

	"github.com/google/uuid"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/domain/order"
	"github.com/sokodigital/storefront-payments/internal/domain/registration"
	"github.com/sokodigital/storefront-payments/internal/service"
)

// --- Request DTOs ---
// DTOs handle HTTP/JSON concerns (float64 for money, string for ids,
// validation tags). Controllers convert them before calling services.

// BillingDTO carries optional billing details; every field may be absent for
// guest checkout.
type BillingDTO struct {
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
}

func (d BillingDTO) toDomain() billing.Details {
	return billing.Details{
		Email:     d.Email,
		Phone:     d.Phone,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Address:   d.Address,
		City:      d.City,
	}
}

// CreateOrderRequest holds the input for creating an order.
type CreateOrderRequest struct {
	Amount   float64    `json:"amount" validate:"required,gt=0"`
	Currency string     `json:"currency" validate:"required,len=3"`
	Customer BillingDTO `json:"customer"`
}

// CreateRegistrationRequest holds the input for creating a registration.
type CreateRegistrationRequest struct {
	EventID  string     `json:"event_id" validate:"required,uuid"`
	Amount   float64    `json:"amount" validate:"required,gt=0"`
	Currency string     `json:"currency" validate:"required,len=3"`
	Attendee BillingDTO `json:"attendee"`
}

// InitiatePaymentRequest holds the input for starting a payment. Amount and
// customer are optional overrides; the stored record supplies them otherwise.
type InitiatePaymentRequest struct {
	Kind     string      `json:"kind" validate:"required,oneof=order event"`
	RecordID string      `json:"record_id" validate:"required,uuid"`
	Gateway  string      `json:"gateway" validate:"required,oneof=mpesa paypal pesapal"`
	Amount   float64     `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Customer *BillingDTO `json:"customer,omitempty"`
	Phone    string      `json:"phone,omitempty"`
}

// MpesaCallbackRequest mirrors the Daraja STK push callback envelope.
type MpesaCallbackRequest struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// CapturePayPalRequest holds the approved PayPal order to capture.
type CapturePayPalRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

// --- Response DTOs ---

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID               string     `json:"id"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	PaymentStatus    string     `json:"payment_status"`
	Status           string     `json:"status"`
	Gateway          *string    `json:"gateway,omitempty"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// RegistrationResponse represents a registration in API responses.
type RegistrationResponse struct {
	ID               string     `json:"id"`
	EventID          string     `json:"event_id"`
	Amount           float64    `json:"amount"`
	Currency         string     `json:"currency"`
	PaymentStatus    string     `json:"payment_status"`
	Status           string     `json:"status"`
	Gateway          *string    `json:"gateway,omitempty"`
	PaymentReference *string    `json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
}

// InitiatePaymentResponse carries the handles the checkout UI needs next.
type InitiatePaymentResponse struct {
	MerchantReference string `json:"merchant_reference"`
	TrackingID        string `json:"tracking_id"`
	RedirectURL       string `json:"redirect_url,omitempty"`
	Gateway           string `json:"gateway"`
}

// PaymentStateResponse reports one record's payment progress.
type PaymentStateResponse struct {
	Kind          string     `json:"kind"`
	RecordID      string     `json:"record_id"`
	PaymentStatus string     `json:"payment_status"`
	Status        string     `json:"status"`
	Gateway       *string    `json:"gateway,omitempty"`
	Reference     *string    `json:"reference,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

func FromOrder(o *order.Order) *OrderResponse {
	return &OrderResponse{
		ID:               o.ID.String(),
		Amount:           centsToFloat(o.Amount.ValueCents),
		Currency:         o.Amount.Currency,
		PaymentStatus:    string(o.PaymentStatus),
		Status:           string(o.Status),
		Gateway:          o.Gateway,
		PaymentReference: o.PaymentReference,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		PaidAt:           o.PaidAt,
	}
}

func FromRegistration(r *registration.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		ID:               r.ID.String(),
		EventID:          r.EventID.String(),
		Amount:           centsToFloat(r.PaymentAmount.ValueCents),
		Currency:         r.PaymentAmount.Currency,
		PaymentStatus:    string(r.PaymentStatus),
		Status:           string(r.Status),
		Gateway:          r.Gateway,
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		PaidAt:           r.PaidAt,
	}
}

func FromPaymentState(s *service.PaymentState) *PaymentStateResponse {
	return &PaymentStateResponse{
		Kind:          string(s.Kind),
		RecordID:      s.RecordID.String(),
		PaymentStatus: s.PaymentStatus,
		Status:        s.Status,
		Gateway:       s.Gateway,
		Reference:     s.Reference,
		PaidAt:        s.PaidAt,
	}
}

// parseUUID parses a UUID string, returning nil if invalid.
func parseUUID(s string) *uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

// floatToCents converts a decimal amount to cents.
func floatToCents(f float64) int64 {
	return int64(f*100 + 0.5)
}

// centsToFloat converts cents to a decimal amount.
func centsToFloat(cents int64) float64 {
	return float64(cents) / 100.0
}
