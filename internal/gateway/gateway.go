package gateway

import (
	"context"
	"fmt"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

// Gateway names as used in configuration, records and metrics labels.
const (
	Mpesa   = "mpesa"
	PayPal  = "paypal"
	Pesapal = "pesapal"
)

// Request carries everything a gateway needs to start a payment. The merchant
// reference is pre-stamped by the initiator (EVT- prefix for registrations)
// and is echoed back verbatim in callbacks.
type Request struct {
	MerchantReference string
	Amount            billing.Amount
	CallbackURL       string
	Description       string
	Billing           billing.Details
}

// Submission is the gateway's answer to a payment request.
type Submission struct {
	// TrackingID is the gateway-assigned correlation id
	// (CheckoutRequestID, PayPal order id, Pesapal OrderTrackingId).
	TrackingID string
	// RedirectURL is set for redirect-based gateways; the checkout UI sends
	// the browser there. Empty for push-based gateways (M-Pesa STK).
	RedirectURL string
}

// Client is the per-gateway payment interface. Implementations own their
// auth flow and payload shape; everything they return is normalized, so
// callers never branch on gateway identity.
type Client interface {
	// Name returns the gateway name.
	Name() string
	// SubmitPayment submits a payment request and returns the gateway's
	// correlation id. Declines surface as *errors.SubmissionError.
	SubmitPayment(ctx context.Context, req Request) (*Submission, error)
	// TransactionStatus queries the current state of a payment attempt,
	// normalized to the shared tri-state outcome. Transport timeouts are
	// reported as OutcomePending, never OutcomeFailed.
	TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error)
}

// Capturer is implemented by gateways whose payments must be explicitly
// captured after buyer approval (PayPal). Capture performs the capture call
// and returns the normalized outcome.
type Capturer interface {
	Capture(ctx context.Context, trackingID string) (billing.Outcome, error)
}

// amountString formats cents as the decimal string wire format gateways take.
func amountString(a billing.Amount) string {
	whole := a.ValueCents / 100
	frac := a.ValueCents % 100
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%02d", whole, frac)
}
