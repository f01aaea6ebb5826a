package controller

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order. The response code comes from the
// DomainError when there is one, otherwise from the mapping.
var errorMappings = []errorMapping{
	{domainErrors.ErrConfigInvalid, http.StatusFailedDependency, "InvalidTurnkeyConfig"},
	{domainErrors.ErrConfigUnavailable, http.StatusInternalServerError, "ConfigUnavailable"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{domainErrors.ErrCardDeclined, http.StatusConflict, "ChargeFailed"},
	{domainErrors.ErrInvalidInstrument, http.StatusConflict, "StripeInvalidRequestError"},
	{domainErrors.ErrRateLimited, http.StatusTooManyRequests, "DependentServiceRateLimited"},
	{domainErrors.ErrConnectExpired, http.StatusUnprocessableEntity, "StripeConnectExpired"},
	{domainErrors.ErrConnectRejected, http.StatusBadRequest, "StripeAuthFailed"},
	{domainErrors.ErrProcessor, http.StatusBadGateway, "ProcessorError"},
	{domainErrors.ErrFraudRejected, http.StatusBadRequest, "ChargeFailed"},
	{domainErrors.ErrLedgerRejected, http.StatusBadRequest, "LedgerRejected"},
	{domainErrors.ErrLedgerUnavailable, http.StatusInternalServerError, "LedgerUnavailable"},
	{domainErrors.ErrUnitNotFound, http.StatusBadRequest, "InvalidParamValueIdNoValueFound"},
	{domainErrors.ErrUnitWrongKind, http.StatusBadRequest, "InvalidParamCardId"},
	{domainErrors.ErrDeliveryFailed, http.StatusInternalServerError, "DeliveryFailed"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate_request"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError never serializes the wrapped cause; only the caller-facing
// message and code leave the process.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		code := validationErr.Code
		if code == "" {
			code = "validation_error"
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Message, Code: code})
		return
	}

	var domainErr *domainErrors.DomainError
	hasDomainErr := errors.As(err, &domainErr)

	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		resp := ErrorResponse{Error: m.err.Error(), Code: m.code}
		if hasDomainErr {
			resp.Error = domainErr.Message
			if domainErr.Code != "" {
				resp.Code = domainErr.Code
			}
		}
		writeJSON(w, m.status, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "internal server error",
		Code:  "internal_error",
	})
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "request body must be a JSON object")
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(),
				"parameter "+ve[0].Field()+" failed "+ve[0].Tag()+" validation")
		}
		return domainErrors.NewValidationError("body", "request body is invalid")
	}
	return nil
}

// clientIP returns the first hop of X-Forwarded-For, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
