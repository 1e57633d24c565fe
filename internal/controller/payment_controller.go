package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/service"
)

// PaymentController handles payment initiation, status and gateway
// notification HTTP requests.
type PaymentController struct {
	initiation *service.InitiationService
	reconcile  *service.ReconcileService
	successURL string
	errorURL   string
	logger     zerolog.Logger
}

// NewPaymentController creates a new PaymentController. successURL and
// errorURL are the storefront pages the Pesapal browser callback redirects
// to after checkout.
func NewPaymentController(
	initiation *service.InitiationService,
	reconcile *service.ReconcileService,
	successURL, errorURL string,
	logger zerolog.Logger,
) *PaymentController {
	return &PaymentController{
		initiation: initiation,
		reconcile:  reconcile,
		successURL: successURL,
		errorURL:   errorURL,
		logger:     logger,
	}
}

// InitiatePayment handles POST /api/v1/payments/initiate
func (h *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	kind, err := billing.ParseRecordKind(req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}

	recordID := parseUUID(req.RecordID)
	if recordID == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid record_id", Code: "invalid_id"})
		return
	}

	initReq := service.InitiateRequest{
		Kind:     kind,
		RecordID: *recordID,
		Gateway:  req.Gateway,
		Phone:    req.Phone,
	}
	if req.Amount > 0 {
		initReq.AmountCents = floatToCents(req.Amount)
	}
	if req.Customer != nil {
		details := req.Customer.toDomain()
		initReq.Billing = &details
	}

	resp, err := h.initiation.Initiate(r.Context(), initReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, InitiatePaymentResponse{
		MerchantReference: resp.MerchantReference,
		TrackingID:        resp.TrackingID,
		RedirectURL:       resp.RedirectURL,
		Gateway:           resp.Gateway,
	})
}

// GetPaymentStatus handles GET /api/v1/payments/{kind}/{id}
func (h *PaymentController) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	kind, err := billing.ParseRecordKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}

	id := parseUUID(chi.URLParam(r, "id"))
	if id == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid record id", Code: "invalid_id"})
		return
	}

	state, err := h.initiation.PaymentStatus(r.Context(), kind, *id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromPaymentState(state))
}

// MpesaCallback handles POST /api/v1/payments/mpesa/callback.
//
// Daraja retries callbacks that are not acknowledged with ResultCode 0, so
// this handler always acks: processing failures are logged and swept up by
// the reconciliation worker instead.
func (h *PaymentController) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	var req MpesaCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn().Err(err).Msg("Unparseable M-Pesa callback")
		h.ackMpesa(w)
		return
	}

	cb := req.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		h.logger.Warn().Msg("M-Pesa callback without CheckoutRequestID")
		h.ackMpesa(w)
		return
	}

	outcome, err := h.reconcile.ProcessMpesaCallback(r.Context(), cb.CheckoutRequestID, cb.ResultCode)
	if err != nil {
		h.logger.Error().Err(err).
			Str("checkout_request_id", cb.CheckoutRequestID).
			Int("result_code", cb.ResultCode).
			Str("result_desc", cb.ResultDesc).
			Msg("M-Pesa callback processing failed")
	} else {
		h.logger.Info().
			Str("checkout_request_id", cb.CheckoutRequestID).
			Str("outcome", string(outcome)).
			Msg("M-Pesa callback processed")
	}

	h.ackMpesa(w)
}

func (h *PaymentController) ackMpesa(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// CapturePayPal handles POST /api/v1/payments/paypal/capture. The storefront
// calls this after the buyer approves the PayPal order.
func (h *PaymentController) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	var req CapturePayPalRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	outcome, err := h.reconcile.CapturePayPal(r.Context(), req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// PesapalCallback handles GET /api/v1/payments/pesapal/callback: the browser
// redirect at the end of the Pesapal hosted checkout. The outcome decides
// which storefront page the customer lands on; the authoritative status
// update still arrives over the IPN channel.
func (h *PaymentController) PesapalCallback(w http.ResponseWriter, r *http.Request) {
	trackingID := r.URL.Query().Get("OrderTrackingId")
	merchantRef := r.URL.Query().Get("OrderMerchantReference")

	outcome, err := h.reconcile.ProcessPesapalNotification(r.Context(), trackingID, merchantRef, "")
	if err != nil {
		h.logger.Error().Err(err).
			Str("tracking_id", trackingID).
			Str("merchant_reference", merchantRef).
			Msg("Pesapal callback processing failed")
		http.Redirect(w, r, h.errorURL, http.StatusFound)
		return
	}

	if outcome == billing.OutcomeFailed {
		http.Redirect(w, r, h.errorURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, h.successURL, http.StatusFound)
}

// PesapalIPN handles GET /api/v1/payments/pesapal/ipn.
//
// Pesapal suspends IPN endpoints that return non-2xx responses, so this
// handler acknowledges every notification; failures are logged and left to
// the reconciliation worker.
func (h *PaymentController) PesapalIPN(w http.ResponseWriter, r *http.Request) {
	trackingID := r.URL.Query().Get("OrderTrackingId")
	merchantRef := r.URL.Query().Get("OrderMerchantReference")
	notificationType := r.URL.Query().Get("OrderNotificationType")

	status := http.StatusOK
	if _, err := h.reconcile.ProcessPesapalNotification(r.Context(), trackingID, merchantRef, notificationType); err != nil {
		h.logger.Error().Err(err).
			Str("tracking_id", trackingID).
			Str("merchant_reference", merchantRef).
			Str("notification_type", notificationType).
			Msg("Pesapal IPN processing failed")
		status = http.StatusInternalServerError
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"orderNotificationType":  notificationType,
		"orderTrackingId":        trackingID,
		"orderMerchantReference": merchantRef,
		"status":                 status,
	})
}
