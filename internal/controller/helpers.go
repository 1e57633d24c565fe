package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrRegistrationNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrInvalidRecordKind, http.StatusBadRequest, "invalid_record_kind"},
	{domainErrors.ErrMissingReference, http.StatusBadRequest, "missing_reference"},
	{domainErrors.ErrAmbiguousReference, http.StatusNotFound, "unknown_reference"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrTerminalState, http.StatusConflict, "already_settled"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
	{domainErrors.ErrGatewayNotFound, http.StatusBadRequest, "unknown_gateway"},
	{domainErrors.ErrGatewayUnavailable, http.StatusServiceUnavailable, "gateway_unavailable"},
	{domainErrors.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
	{domainErrors.ErrConfigIncomplete, http.StatusInternalServerError, "gateway_not_configured"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.err == domainErrors.ErrConfigIncomplete {
				// Don't leak which credential is missing.
				resp.Error = "payment gateway not configured"
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var submissionErr *domainErrors.SubmissionError
	if errors.As(err, &submissionErr) {
		resp.Code = "submission_rejected"
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	var authErr *domainErrors.AuthError
	if errors.As(err, &authErr) {
		resp.Code = "gateway_auth_failed"
		resp.Error = "gateway authentication failed"
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

// decodeJSON decodes without validation, for gateway-shaped payloads whose
// fields are checked by the handler itself.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}
