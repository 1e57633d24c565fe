package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
)

const (
	paypalSandboxURL = "https://api-m.sandbox.paypal.com"
	paypalLiveURL    = "https://api-m.paypal.com"
)

// PayPalClient drives the Orders v2 API: create order, buyer approves in the
// browser, storefront posts back and we capture.
type PayPalClient struct {
	settings SettingsProvider
	http     *http.Client
	baseURL  string
	tokens   *tokenSource
}

type PayPalOption func(*PayPalClient)

// WithPayPalBaseURL overrides the API host (tests).
func WithPayPalBaseURL(u string) PayPalOption {
	return func(c *PayPalClient) { c.baseURL = u }
}

// WithPayPalHTTPTimeout sets the per-call timeout.
func WithPayPalHTTPTimeout(d time.Duration) PayPalOption {
	return func(c *PayPalClient) { c.http = newHTTPClient(d) }
}

func NewPayPalClient(settings SettingsProvider, opts ...PayPalOption) *PayPalClient {
	c := &PayPalClient{
		settings: settings,
		http:     newHTTPClient(0),
	}
	for _, o := range opts {
		o(c)
	}
	c.tokens = newTokenSource(c.fetchToken)
	return c
}

func (c *PayPalClient) Name() string { return PayPal }

func (c *PayPalClient) endpoint(ctx context.Context, path string) (string, Settings, error) {
	s, err := c.settings.Settings(ctx, PayPal)
	if err != nil {
		return "", Settings{}, err
	}
	base := c.baseURL
	if base == "" {
		base = paypalLiveURL
		if s.Sandbox {
			base = paypalSandboxURL
		}
	}
	return base + path, s, nil
}

// AuthToken runs the client-credentials grant, caching the token for the
// stated TTL.
func (c *PayPalClient) AuthToken(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *PayPalClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	u, s, err := c.endpoint(ctx, "/v1/oauth2/token")
	if err != nil {
		return "", 0, err
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(s.ConsumerKey, s.ConsumerSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, wrapTransportErr(PayPal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, domainErrors.NewAuthError(PayPal, readBody(resp.Body), nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", 0, domainErrors.NewAuthError(PayPal, "malformed token response", err)
	}

	ttl := time.Duration(body.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return body.AccessToken, ttl, nil
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// SubmitPayment creates a PayPal order. The returned tracking id is the
// PayPal order id; the redirect URL is the buyer approval link.
func (c *PayPalClient) SubmitPayment(ctx context.Context, req Request) (*Submission, error) {
	u, s, err := c.endpoint(ctx, "/v2/checkout/orders")
	if err != nil {
		return nil, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return nil, err
	}

	returnURL := req.CallbackURL
	if returnURL == "" {
		returnURL = s.CallbackBaseURL + "/checkout/paypal/return"
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.MerchantReference,
			"description":  req.Description,
			"amount": map[string]any{
				"currency_code": req.Amount.Currency,
				"value":         amountString(req.Amount),
			},
		}},
		"application_context": map[string]any{
			"return_url": returnURL,
			"cancel_url": s.CallbackBaseURL + "/checkout/cancelled",
		},
	}

	var out paypalOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, u, token, payload, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, domainErrors.NewSubmissionError(PayPal, "order response missing id", nil)
	}

	sub := &Submission{TrackingID: out.ID}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			sub.RedirectURL = l.Href
			break
		}
	}
	return sub, nil
}

// Capture captures an approved order and returns the normalized outcome.
// The storefront calls this from its post-approval page.
func (c *PayPalClient) Capture(ctx context.Context, orderID string) (billing.Outcome, error) {
	u, _, err := c.endpoint(ctx, "/v2/checkout/orders/"+orderID+"/capture")
	if err != nil {
		return billing.OutcomePending, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return billing.OutcomePending, err
	}

	var out paypalOrderResponse
	if err := c.doJSON(ctx, http.MethodPost, u, token, map[string]any{}, &out); err != nil {
		return billing.OutcomePending, err
	}
	return NormalizePayPalStatus(out.Status), nil
}

// TransactionStatus looks up a PayPal order by id.
func (c *PayPalClient) TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error) {
	u, _, err := c.endpoint(ctx, "/v2/checkout/orders/"+trackingID)
	if err != nil {
		return billing.OutcomePending, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return billing.OutcomePending, err
	}

	var out paypalOrderResponse
	if err := c.doJSON(ctx, http.MethodGet, u, token, nil, &out); err != nil {
		return billing.OutcomePending, err
	}
	return NormalizePayPalStatus(out.Status), nil
}

// NormalizePayPalStatus maps an Orders v2 status string to the shared
// outcome. COMPLETED is the single success sentinel.
func NormalizePayPalStatus(status string) billing.Outcome {
	switch status {
	case "COMPLETED":
		return billing.OutcomeSuccess
	case "DECLINED", "VOIDED":
		return billing.OutcomeFailed
	default:
		// CREATED, SAVED, APPROVED, PAYER_ACTION_REQUIRED
		return billing.OutcomePending
	}
}

func (c *PayPalClient) doJSON(ctx context.Context, method, url, token string, payload any, out any) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paypal: marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportErr(PayPal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return domainErrors.NewAuthError(PayPal, readBody(resp.Body), nil)
	}
	if resp.StatusCode >= 400 {
		return domainErrors.NewSubmissionError(PayPal, readBody(resp.Body), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("paypal: decode response: %w", err)
	}
	return nil
}
