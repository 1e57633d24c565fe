package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
)

func pesapalTestSettings() staticSettings {
	return staticSettings{s: Settings{
		ConsumerKey:     "pck",
		ConsumerSecret:  "pcs",
		IPNID:           "ipn-1",
		Sandbox:         true,
		CallbackBaseURL: "https://payments.example.com",
	}}
}

func pesapalTokenHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"token":      "pesapal-token",
		"expiryDate": time.Now().Add(5 * time.Minute).Format(time.RFC3339),
	})
}

func TestPesapalSubmitPayment(t *testing.T) {
	var submitted map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", pesapalTokenHandler)
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pesapal-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		json.NewEncoder(w).Encode(map[string]string{
			"order_tracking_id":  "b945e4af-80a5-4ec1-8706-e03f8332fb04",
			"merchant_reference": "EVT-abc",
			"redirect_url":       "https://pay.pesapal.com/iframe/xyz",
			"status":             "200",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPesapalClient(pesapalTestSettings(), WithPesapalBaseURL(srv.URL))

	sub, err := c.SubmitPayment(context.Background(), Request{
		MerchantReference: "EVT-abc",
		Amount:            billing.Amount{ValueCents: 80000, Currency: "KES"},
		Description:       "event registration",
		Billing:           billing.Details{Email: "otieno@example.com", Phone: "254733999888"},
	})
	require.NoError(t, err)

	assert.Equal(t, "b945e4af-80a5-4ec1-8706-e03f8332fb04", sub.TrackingID)
	assert.Equal(t, "https://pay.pesapal.com/iframe/xyz", sub.RedirectURL)

	assert.Equal(t, "EVT-abc", submitted["id"])
	assert.Equal(t, "800.00", submitted["amount"])
	assert.Equal(t, "ipn-1", submitted["notification_id"])
	assert.Equal(t, "https://payments.example.com/api/v1/payments/pesapal/callback", submitted["callback_url"])
}

func TestPesapalSubmitPayment_ErrorBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/Auth/RequestToken", pesapalTokenHandler)
	mux.HandleFunc("/api/Transactions/SubmitOrderRequest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"error_type": "api_error",
				"code":       "duplicate_id",
				"message":    "Duplicate order id",
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPesapalClient(pesapalTestSettings(), WithPesapalBaseURL(srv.URL))

	_, err := c.SubmitPayment(context.Background(), Request{MerchantReference: "EVT-dup"})

	var subErr *domainErrors.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, subErr.GatewayBody, "duplicate_id")
}

func TestPesapalTransactionStatus(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		want       billing.Outcome
	}{
		{"completed", 1, billing.OutcomeSuccess},
		{"failed", 2, billing.OutcomeFailed},
		{"reversed", 3, billing.OutcomeFailed},
		{"invalid", 0, billing.OutcomePending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/Auth/RequestToken", pesapalTokenHandler)
			mux.HandleFunc("/api/Transactions/GetTransactionStatus", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "trk-1", r.URL.Query().Get("orderTrackingId"))
				json.NewEncoder(w).Encode(map[string]any{"status_code": tc.statusCode})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			c := NewPesapalClient(pesapalTestSettings(), WithPesapalBaseURL(srv.URL))

			outcome, err := c.TransactionStatus(context.Background(), "trk-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
		})
	}
}
