package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
)

const (
	pesapalSandboxURL = "https://cybqa.pesapal.com/pesapalv3"
	pesapalLiveURL    = "https://pay.pesapal.com/v3"

	// IPNChangeNotification is the OrderNotificationType value that signals a
	// change of transaction status. Every other type must be acknowledged
	// without side effects or Pesapal retries the IPN indefinitely.
	IPNChangeNotification = "IPNCHANGE"
)

// Pesapal API 3.0 status codes.
const (
	pesapalStatusInvalid   = 0
	pesapalStatusCompleted = 1
	pesapalStatusFailed    = 2
	pesapalStatusReversed  = 3
)

// PesapalClient drives the Pesapal API 3.0 hosted-checkout flow.
type PesapalClient struct {
	settings SettingsProvider
	http     *http.Client
	baseURL  string
	tokens   *tokenSource
}

type PesapalOption func(*PesapalClient)

// WithPesapalBaseURL overrides the API host (tests).
func WithPesapalBaseURL(u string) PesapalOption {
	return func(c *PesapalClient) { c.baseURL = u }
}

// WithPesapalHTTPTimeout sets the per-call timeout.
func WithPesapalHTTPTimeout(d time.Duration) PesapalOption {
	return func(c *PesapalClient) { c.http = newHTTPClient(d) }
}

func NewPesapalClient(settings SettingsProvider, opts ...PesapalOption) *PesapalClient {
	c := &PesapalClient{
		settings: settings,
		http:     newHTTPClient(0),
	}
	for _, o := range opts {
		o(c)
	}
	c.tokens = newTokenSource(c.fetchToken)
	return c
}

func (c *PesapalClient) Name() string { return Pesapal }

func (c *PesapalClient) endpoint(ctx context.Context, path string) (string, Settings, error) {
	s, err := c.settings.Settings(ctx, Pesapal)
	if err != nil {
		return "", Settings{}, err
	}
	base := c.baseURL
	if base == "" {
		base = pesapalLiveURL
		if s.Sandbox {
			base = pesapalSandboxURL
		}
	}
	return base + path, s, nil
}

// AuthToken exchanges the consumer key/secret pair for a bearer token.
func (c *PesapalClient) AuthToken(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *PesapalClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	u, s, err := c.endpoint(ctx, "/api/Auth/RequestToken")
	if err != nil {
		return "", 0, err
	}

	payload := map[string]string{
		"consumer_key":    s.ConsumerKey,
		"consumer_secret": s.ConsumerSecret,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, wrapTransportErr(Pesapal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, domainErrors.NewAuthError(Pesapal, readBody(resp.Body), nil)
	}

	var out struct {
		Token      string `json:"token"`
		ExpiryDate string `json:"expiryDate"`
		Error      *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, domainErrors.NewAuthError(Pesapal, "malformed token response", err)
	}
	if out.Error != nil || out.Token == "" {
		msg := "empty token"
		if out.Error != nil {
			msg = out.Error.Message
		}
		return "", 0, domainErrors.NewAuthError(Pesapal, msg, nil)
	}

	// Pesapal tokens are valid for 5 minutes.
	ttl := 5 * time.Minute
	if exp, err := time.Parse(time.RFC3339, out.ExpiryDate); err == nil {
		if d := time.Until(exp); d > 0 {
			ttl = d
		}
	}
	return out.Token, ttl, nil
}

type pesapalSubmitResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
	Error             *struct {
		ErrorType string `json:"error_type"`
		Code      string `json:"code"`
		Message   string `json:"message"`
	} `json:"error"`
}

// SubmitPayment submits an order request. The customer completes payment on
// Pesapal's hosted page at the returned redirect URL; the tracking id is the
// OrderTrackingId echoed in the callback and IPN.
func (c *PesapalClient) SubmitPayment(ctx context.Context, req Request) (*Submission, error) {
	u, s, err := c.endpoint(ctx, "/api/Transactions/SubmitOrderRequest")
	if err != nil {
		return nil, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"id":              req.MerchantReference,
		"currency":        req.Amount.Currency,
		"amount":          amountString(req.Amount),
		"description":     req.Description,
		"callback_url":    s.CallbackBaseURL + "/api/v1/payments/pesapal/callback",
		"notification_id": s.IPNID,
		"billing_address": map[string]any{
			"email_address": req.Billing.Email,
			"phone_number":  req.Billing.Phone,
			"first_name":    req.Billing.FirstName,
			"last_name":     req.Billing.LastName,
			"line_1":        req.Billing.Address,
			"city":          req.Billing.City,
		},
	}

	var out pesapalSubmitResponse
	if err := c.doJSON(ctx, u, token, payload, &out); err != nil {
		return nil, err
	}
	if out.Error != nil || out.OrderTrackingID == "" {
		msg := "order response missing tracking id"
		if out.Error != nil {
			msg = fmt.Sprintf("%s (%s): %s", out.Error.ErrorType, out.Error.Code, out.Error.Message)
		}
		return nil, domainErrors.NewSubmissionError(Pesapal, msg, nil)
	}
	return &Submission{TrackingID: out.OrderTrackingID, RedirectURL: out.RedirectURL}, nil
}

type pesapalStatusResponse struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	StatusCode               int     `json:"status_code"`
	ConfirmationCode         string  `json:"confirmation_code"`
	MerchantReference        string  `json:"merchant_reference"`
}

// TransactionStatus queries a payment attempt by OrderTrackingId.
func (c *PesapalClient) TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error) {
	u, _, err := c.endpoint(ctx, "/api/Transactions/GetTransactionStatus?orderTrackingId="+trackingID)
	if err != nil {
		return billing.OutcomePending, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return billing.OutcomePending, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return billing.OutcomePending, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return billing.OutcomePending, wrapTransportErr(Pesapal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return billing.OutcomePending, domainErrors.NewAuthError(Pesapal, readBody(resp.Body), nil)
	}
	if resp.StatusCode >= 400 {
		return billing.OutcomePending, domainErrors.NewSubmissionError(Pesapal, readBody(resp.Body), nil)
	}

	var out pesapalStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return billing.OutcomePending, fmt.Errorf("pesapal: decode status response: %w", err)
	}
	return NormalizePesapalStatus(out.StatusCode), nil
}

// NormalizePesapalStatus maps a Pesapal status_code to the shared outcome:
// 1 completed, 2 failed, 3 reversed (treated as failed), 0 invalid/pending.
func NormalizePesapalStatus(statusCode int) billing.Outcome {
	switch statusCode {
	case pesapalStatusCompleted:
		return billing.OutcomeSuccess
	case pesapalStatusFailed, pesapalStatusReversed:
		return billing.OutcomeFailed
	default:
		return billing.OutcomePending
	}
}

func (c *PesapalClient) doJSON(ctx context.Context, url, token string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pesapal: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportErr(Pesapal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return domainErrors.NewAuthError(Pesapal, readBody(resp.Body), nil)
	}
	if resp.StatusCode >= 400 {
		return domainErrors.NewSubmissionError(Pesapal, readBody(resp.Body), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pesapal: decode response: %w", err)
	}
	return nil
}
