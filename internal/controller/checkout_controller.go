package controller

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sokodigital/storefront-payments/internal/domain/billing"
	"github.com/sokodigital/storefront-payments/internal/service"
)

// CheckoutController handles order and registration HTTP requests.
type CheckoutController struct {
	checkout *service.CheckoutService
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(checkout *service.CheckoutService) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// CreateOrder handles POST /api/v1/orders
func (h *CheckoutController) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	o, err := h.checkout.CreateOrder(r.Context(), service.CreateOrderRequest{
		Amount: billing.Amount{
			ValueCents: floatToCents(req.Amount),
			Currency:   strings.ToUpper(req.Currency),
		},
		Customer: req.Customer.toDomain(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromOrder(o))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *CheckoutController) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := parseUUID(chi.URLParam(r, "id"))
	if id == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id", Code: "invalid_id"})
		return
	}

	o, err := h.checkout.GetOrder(r.Context(), *id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromOrder(o))
}

// CreateRegistration handles POST /api/v1/registrations
func (h *CheckoutController) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistrationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	eventID := parseUUID(req.EventID)
	if eventID == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid event_id", Code: "invalid_id"})
		return
	}

	reg, err := h.checkout.CreateRegistration(r.Context(), service.CreateRegistrationRequest{
		EventID: *eventID,
		Amount: billing.Amount{
			ValueCents: floatToCents(req.Amount),
			Currency:   strings.ToUpper(req.Currency),
		},
		Attendee: req.Attendee.toDomain(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, FromRegistration(reg))
}

// GetRegistration handles GET /api/v1/registrations/{id}
func (h *CheckoutController) GetRegistration(w http.ResponseWriter, r *http.Request) {
	id := parseUUID(chi.URLParam(r, "id"))
	if id == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid registration id", Code: "invalid_id"})
		return
	}

	reg, err := h.checkout.GetRegistration(r.Context(), *id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromRegistration(reg))
}

// RefundRegistration handles POST /api/v1/registrations/{id}/refund
func (h *CheckoutController) RefundRegistration(w http.ResponseWriter, r *http.Request) {
	id := parseUUID(chi.URLParam(r, "id"))
	if id == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid registration id", Code: "invalid_id"})
		return
	}

	reg, err := h.checkout.RefundRegistration(r.Context(), *id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, FromRegistration(reg))
}
