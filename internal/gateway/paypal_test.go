package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
)

func paypalTestSettings() staticSettings {
	return staticSettings{s: Settings{
		ConsumerKey:     "client-id",
		ConsumerSecret:  "client-secret",
		Sandbox:         true,
		CallbackBaseURL: "https://payments.example.com",
	}}
}

func paypalTokenHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": "pp-token",
		"expires_in":   32400,
	})
}

func TestPayPalSubmitPayment(t *testing.T) {
	var created map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", paypalTokenHandler)
	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "5O190127TN364715T",
			"status": "CREATED",
			"links": []map[string]string{
				{"href": "https://api.sandbox.paypal.com/v2/checkout/orders/5O1", "rel": "self"},
				{"href": "https://www.sandbox.paypal.com/checkoutnow?token=5O1", "rel": "approve"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPayPalClient(paypalTestSettings(), WithPayPalBaseURL(srv.URL))

	sub, err := c.SubmitPayment(context.Background(), Request{
		MerchantReference: "ref-9",
		Amount:            billing.Amount{ValueCents: 975000, Currency: "USD"},
		Description:       "order ref-9",
	})
	require.NoError(t, err)

	assert.Equal(t, "5O190127TN364715T", sub.TrackingID)
	assert.Equal(t, "https://www.sandbox.paypal.com/checkoutnow?token=5O1", sub.RedirectURL)
	assert.Equal(t, "CAPTURE", created["intent"])

	units := created["purchase_units"].([]any)
	unit := units[0].(map[string]any)
	amount := unit["amount"].(map[string]any)
	assert.Equal(t, "9750.00", amount["value"])
	assert.Equal(t, "USD", amount["currency_code"])
}

func TestPayPalCapture(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", paypalTokenHandler)
	mux.HandleFunc("/v2/checkout/orders/5O1/capture", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]string{"id": "5O1", "status": "COMPLETED"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPayPalClient(paypalTestSettings(), WithPayPalBaseURL(srv.URL))

	outcome, err := c.Capture(context.Background(), "5O1")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeSuccess, outcome)
}

func TestPayPalTransactionStatus_ApprovedIsPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", paypalTokenHandler)
	mux.HandleFunc("/v2/checkout/orders/5O2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "5O2", "status": "APPROVED"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPayPalClient(paypalTestSettings(), WithPayPalBaseURL(srv.URL))

	// approved but uncaptured funds have not moved
	outcome, err := c.TransactionStatus(context.Background(), "5O2")
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomePending, outcome)
}
