package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PurchaseResponse{LedgerUnitID: "unit-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ledgerUnitId":"unit-1"}`, w.Body.String())
}

func TestWriteError_ValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"coded", domainErrors.NewCodedValidationError("InvalidParamRecipientEmail", "recipientEmail", "parameter recipientEmail must be a valid email address"), "InvalidParamRecipientEmail"},
		{"uncoded", domainErrors.NewValidationError("message", "parameter message failed max validation"), "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotContains(t, resp.Error, "validation failed for field")
		})
	}
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "invalid config",
			err:            domainErrors.NewDomainError("MissingStripeUserId", "merchant must connect a stripe account before selling gift cards", domainErrors.ErrConfigInvalid),
			expectedStatus: http.StatusFailedDependency,
			expectedCode:   "MissingStripeUserId",
			expectedMsg:    "merchant must connect a stripe account before selling gift cards",
		},
		{
			name:           "platform config",
			err:            domainErrors.NewDomainError("ConfigUnavailable", "payment processor is not configured for this environment", domainErrors.ErrConfigUnavailable),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "ConfigUnavailable",
		},
		{
			name:           "card declined",
			err:            domainErrors.NewDomainError("ChargeFailed", "Failed to charge credit card.", fmt.Errorf("%w: your card was declined", domainErrors.ErrCardDeclined)),
			expectedStatus: http.StatusConflict,
			expectedCode:   "ChargeFailed",
			expectedMsg:    "Failed to charge credit card.",
		},
		{
			name:           "invalid instrument",
			err:            domainErrors.NewDomainError("StripeInvalidRequestError", "The stripeCardToken was invalid.", domainErrors.ErrInvalidInstrument),
			expectedStatus: http.StatusConflict,
			expectedCode:   "StripeInvalidRequestError",
		},
		{
			name:           "rate limited",
			err:            domainErrors.NewDomainError("DependentServiceRateLimited", "Service was rate limited by dependent service.", domainErrors.ErrRateLimited),
			expectedStatus: http.StatusTooManyRequests,
			expectedCode:   "DependentServiceRateLimited",
		},
		{
			name:           "processor",
			err:            domainErrors.NewDomainError("ProcessorError", "An unexpected error occurred while attempting to charge card.", domainErrors.ErrProcessor),
			expectedStatus: http.StatusBadGateway,
			expectedCode:   "ProcessorError",
		},
		{
			name:           "fraud rejected",
			err:            domainErrors.NewDomainError("ChargeFailed", "Failed to charge credit card.", domainErrors.ErrFraudRejected),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "ChargeFailed",
		},
		{
			name:           "ledger rejected",
			err:            domainErrors.NewDomainError("LedgerRejected", "program currency mismatch", domainErrors.ErrLedgerRejected),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "LedgerRejected",
		},
		{
			name:           "ledger unavailable",
			err:            domainErrors.NewDomainError("LedgerUnavailable", "An unexpected error occurred while creating the gift card.", domainErrors.ErrLedgerUnavailable),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "LedgerUnavailable",
		},
		{
			name:           "unit not found",
			err:            domainErrors.NewDomainError("InvalidParamValueIdNoValueFound", "parameter valueId did not correspond to a value", domainErrors.ErrUnitNotFound),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidParamValueIdNoValueFound",
		},
		{
			name:           "wrong kind",
			err:            domainErrors.NewDomainError("InvalidParamCardId", "parameter cardId must be for a GIFT_CARD", domainErrors.ErrUnitWrongKind),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "InvalidParamCardId",
		},
		{
			name:           "delivery failed",
			err:            domainErrors.NewDomainError("DeliveryFailed", "An unexpected error occurred while delivering the gift card.", domainErrors.ErrDeliveryFailed),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   "DeliveryFailed",
		},
		{
			name:           "bare sentinel",
			err:            domainErrors.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "unauthorized",
			expectedMsg:    "unauthorized",
		},
		{
			name:           "duplicate request",
			err:            fmt.Errorf("store: %w", domainErrors.ErrDuplicateIdempotencyKey),
			expectedStatus: http.StatusConflict,
			expectedCode:   "duplicate_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, resp.Error)
			}
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	cause := errors.New("stripe: card_error req_8fk2 on acct_secret")
	err := domainErrors.NewDomainError("ChargeFailed", "Failed to charge credit card.",
		fmt.Errorf("%w: %v", domainErrors.ErrCardDeclined, cause))

	w := httptest.NewRecorder()
	writeError(w, err)

	assert.NotContains(t, w.Body.String(), "req_8fk2")
	assert.NotContains(t, w.Body.String(), "acct_secret")
}

func TestWriteError_Unmapped(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, errors.New("pq: connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"internal_error"}`, w.Body.String())
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"initialValue":`))
		var dst PurchaseRequest
		err := decodeAndValidate(req, &dst)

		var ve *domainErrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "body", ve.Field)
	})

	t.Run("message too long", func(t *testing.T) {
		body := `{"message":"` + strings.Repeat("x", 1001) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dst PurchaseRequest
		err := decodeAndValidate(req, &dst)

		var ve *domainErrors.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Message", ve.Field)
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"initialValue":500,"recipientEmail":"a@example.com"}`))
		var dst PurchaseRequest
		require.NoError(t, decodeAndValidate(req, &dst))
		assert.Equal(t, int64(500), dst.InitialValue)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		expected   string
	}{
		{"first forwarded hop", "203.0.113.7, 10.0.0.1, 10.0.0.2", "10.0.0.2:443", "203.0.113.7"},
		{"single forwarded", "198.51.100.4", "10.0.0.2:443", "198.51.100.4"},
		{"no header", "", "192.0.2.10:55012", "192.0.2.10"},
		{"remote without port", "", "192.0.2.10", "192.0.2.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.expected, clientIP(req))
		})
	}
}
