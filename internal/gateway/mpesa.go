package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
)

const (
	mpesaSandboxURL = "https://sandbox.safaricom.co.ke"
	mpesaLiveURL    = "https://api.safaricom.co.ke"

	// mpesaProcessingCode is returned by the status query while the STK push
	// is still on the customer's handset.
	mpesaProcessingCode = "500.001.1001"

	mpesaTimestampLayout = "20060102150405"
)

// MpesaClient submits STK push requests against the Daraja API.
type MpesaClient struct {
	settings SettingsProvider
	http     *http.Client
	baseURL  string
	tokens   *tokenSource
	now      func() time.Time
}

type MpesaOption func(*MpesaClient)

// WithMpesaBaseURL overrides the API host (tests).
func WithMpesaBaseURL(u string) MpesaOption {
	return func(c *MpesaClient) { c.baseURL = u }
}

// WithMpesaHTTPTimeout sets the per-call timeout.
func WithMpesaHTTPTimeout(d time.Duration) MpesaOption {
	return func(c *MpesaClient) { c.http = newHTTPClient(d) }
}

func NewMpesaClient(settings SettingsProvider, opts ...MpesaOption) *MpesaClient {
	c := &MpesaClient{
		settings: settings,
		http:     newHTTPClient(0),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.tokens = newTokenSource(c.fetchToken)
	return c
}

func (c *MpesaClient) Name() string { return Mpesa }

func (c *MpesaClient) endpoint(ctx context.Context, path string) (string, Settings, error) {
	s, err := c.settings.Settings(ctx, Mpesa)
	if err != nil {
		return "", Settings{}, err
	}
	base := c.baseURL
	if base == "" {
		base = mpesaLiveURL
		if s.Sandbox {
			base = mpesaSandboxURL
		}
	}
	return base + path, s, nil
}

// AuthToken exchanges the consumer key/secret for a bearer token, caching it
// for the TTL the gateway states.
func (c *MpesaClient) AuthToken(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

func (c *MpesaClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	url, s, err := c.endpoint(ctx, "/oauth/v1/generate?grant_type=client_credentials")
	if err != nil {
		return "", 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(s.ConsumerKey, s.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, wrapTransportErr(Mpesa, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, domainErrors.NewAuthError(Mpesa, readBody(resp.Body), nil)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.AccessToken == "" {
		return "", 0, domainErrors.NewAuthError(Mpesa, "malformed token response", err)
	}

	ttl := time.Hour
	if d, err := time.ParseDuration(body.ExpiresIn + "s"); err == nil && d > 0 {
		ttl = d
	}
	return body.AccessToken, ttl, nil
}

// stkPassword is base64(shortcode + passkey + timestamp), per Daraja.
func stkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

type mpesaSubmitResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// SubmitPayment sends an STK push to the customer's handset. M-Pesa is
// push-based: there is no redirect URL, the correlation id is the
// CheckoutRequestID echoed back in the asynchronous callback.
func (c *MpesaClient) SubmitPayment(ctx context.Context, req Request) (*Submission, error) {
	url, s, err := c.endpoint(ctx, "/mpesa/stkpush/v1/processrequest")
	if err != nil {
		return nil, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(mpesaTimestampLayout)
	payload := map[string]any{
		"BusinessShortCode": s.ShortCode,
		"Password":          stkPassword(s.ShortCode, s.Passkey, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		// M-Pesa takes whole shillings.
		"Amount":           req.Amount.ValueCents / 100,
		"PartyA":           req.Billing.Phone,
		"PartyB":           s.ShortCode,
		"PhoneNumber":      req.Billing.Phone,
		"CallBackURL":      s.CallbackBaseURL + "/api/v1/payments/mpesa/callback",
		"AccountReference": req.MerchantReference,
		"TransactionDesc":  req.Description,
	}

	var out mpesaSubmitResponse
	if err := c.postJSON(ctx, url, token, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, domainErrors.NewSubmissionError(Mpesa, out.ResponseDescription, nil)
	}
	return &Submission{TrackingID: out.CheckoutRequestID}, nil
}

type mpesaQueryResponse struct {
	ResponseCode string `json:"ResponseCode"`
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// TransactionStatus queries the STK push result for a CheckoutRequestID.
func (c *MpesaClient) TransactionStatus(ctx context.Context, trackingID string) (billing.Outcome, error) {
	url, s, err := c.endpoint(ctx, "/mpesa/stkpushquery/v1/query")
	if err != nil {
		return billing.OutcomePending, err
	}
	token, err := c.AuthToken(ctx)
	if err != nil {
		return billing.OutcomePending, err
	}

	timestamp := c.now().Format(mpesaTimestampLayout)
	payload := map[string]any{
		"BusinessShortCode": s.ShortCode,
		"Password":          stkPassword(s.ShortCode, s.Passkey, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": trackingID,
	}

	var out mpesaQueryResponse
	if err := c.postJSON(ctx, url, token, payload, &out); err != nil {
		// The query endpoint answers the still-processing case with an
		// error body rather than a result code.
		var sub *domainErrors.SubmissionError
		if errors.As(err, &sub) && containsProcessingCode(sub.GatewayBody) {
			return billing.OutcomePending, nil
		}
		return billing.OutcomePending, err
	}
	if out.ErrorCode == mpesaProcessingCode {
		return billing.OutcomePending, nil
	}

	var code int
	if _, err := fmt.Sscanf(out.ResultCode, "%d", &code); err != nil {
		return billing.OutcomePending, fmt.Errorf("mpesa: unparseable ResultCode %q", out.ResultCode)
	}
	return NormalizeMpesaResult(code), nil
}

// NormalizeMpesaResult maps an stkCallback/query ResultCode to the shared
// outcome. Zero is the single success sentinel; every other code is a decline
// or abandonment.
func NormalizeMpesaResult(resultCode int) billing.Outcome {
	if resultCode == 0 {
		return billing.OutcomeSuccess
	}
	return billing.OutcomeFailed
}

func (c *MpesaClient) postJSON(ctx context.Context, url, token string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mpesa: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportErr(Mpesa, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return domainErrors.NewAuthError(Mpesa, readBody(resp.Body), nil)
	}
	if resp.StatusCode >= 400 {
		return domainErrors.NewSubmissionError(Mpesa, readBody(resp.Body), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mpesa: decode response: %w", err)
	}
	return nil
}

func containsProcessingCode(body string) bool {
	return bytes.Contains([]byte(body), []byte(mpesaProcessingCode))
}
