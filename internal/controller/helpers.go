package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"

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
	{domainErrors.ErrSessionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrSessionExpired, http.StatusGone, "session_expired"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrPurchaseFinalized, http.StatusConflict, "purchase_finalized"},
	{domainErrors.ErrConcurrentModification, http.StatusConflict, "conflict"},
	{domainErrors.ErrCascadeExhausted, http.StatusUnprocessableEntity, "cascade_exhausted"},
	{domainErrors.ErrNoEligibleBiller, http.StatusUnprocessableEntity, "no_eligible_biller"},
	{domainErrors.ErrThreeDSNotActive, http.StatusConflict, "three_ds_not_active"},
	{domainErrors.ErrThreeDSContextExpired, http.StatusUnprocessableEntity, "three_ds_expired"},
	{domainErrors.ErrBillerNotFound, http.StatusUnprocessableEntity, "biller_not_found"},
	{domainErrors.ErrBillerUnavailable, http.StatusServiceUnavailable, "biller_unavailable"},
	{domainErrors.ErrCircuitOpen, http.StatusServiceUnavailable, "dependency_unavailable"},
	{domainErrors.ErrDependencyTimeout, http.StatusGatewayTimeout, "dependency_timeout"},
	{domainErrors.ErrUnsupportedSchemaVersion, http.StatusInternalServerError, "unsupported_schema_version"},
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
			if m.err == domainErrors.ErrConcurrentModification {
				resp.Error = "concurrent modification, please retry"
			}
			writeJSON(w, m.status, resp)
			return
		}
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

// errEmptyBody marks a request that carried no JSON body at all.
var errEmptyBody = domainErrors.NewValidationError("body", "request body is empty")

// decodeOptional is decodeAndValidate for endpoints where an empty body
// is legal (3DS lookup, abort without a reason).
func decodeOptional(r *http.Request, dst any) error {
	err := decodeAndValidate(r, dst)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
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
