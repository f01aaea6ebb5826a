package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/turnkey/internal/middleware"
	"github.com/cassiomorais/turnkey/internal/service"
	"github.com/cassiomorais/turnkey/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routerSecret = "router-test-secret-at-least-32-chars!"

// --- Test Helpers ---

type routerFixture struct {
	handler  http.Handler
	gateway  *testutil.MockPaymentGateway
	ledger   *testutil.MockLedgerClient
	notifier *testutil.MockNotifier
	store    *testutil.MockMerchantConfigStore
	connect  *testutil.MockProcessorConnect
	states   *testutil.MockConnectStateStore
	checks   map[string]Check
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	configs := &testutil.MockConfigSource{Config: testutil.NewTestMerchantConfig()}

	f := &routerFixture{
		gateway:  testutil.NewMockPaymentGateway(),
		ledger:   testutil.NewMockLedgerClient(),
		notifier: &testutil.MockNotifier{},
		store:    testutil.NewMockMerchantConfigStore(),
		connect:  testutil.NewMockProcessorConnect(),
		states:   testutil.NewMockConnectStateStore(),
		checks:   map[string]Check{"database": func(ctx context.Context) error { return nil }},
	}
	f.ledger.AddUnit(
		&giftcard.LedgerUnit{ID: "card-1", Kind: giftcard.KindGiftCard},
		&giftcard.InitialTransaction{Value: 2500, Metadata: giftcard.UnitMetadata{SenderName: "Original Sender"}},
	)
	f.ledger.AddUnit(
		&giftcard.LedgerUnit{ID: "card-2", Kind: "ACCOUNT_CARD"},
		&giftcard.InitialTransaction{Value: 100},
	)

	purchase := service.NewPurchaseSaga(configs, testutil.NewMockGatewayProvider(f.gateway), f.ledger,
		testutil.NewMockFraudScorer(10, 10), f.notifier, &testutil.MockEventSink{}, metrics, zerolog.Nop())
	deliver := service.NewDeliverySaga(configs, f.ledger, f.notifier, metrics, zerolog.Nop())
	deliverV1 := service.NewDeliverySaga(configs, f.ledger, f.notifier, metrics, zerolog.Nop(), service.WithGiftCardKindCheck())
	resolver := service.NewConfigResolver(f.store, testutil.NewMockMerchantConfigCache(),
		testutil.StaticCredentials{Live: "sk_live", Test: "sk_test"}, metrics, zerolog.Nop())
	connect := service.NewStripeConnectService(f.connect, f.states, resolver,
		service.ConnectSettings{AppURL: "https://app.example.com/app/"}, metrics, zerolog.Nop())

	f.handler = NewRouter(RouterDeps{
		ServiceName:     "turnkey-test",
		JWTSecret:       routerSecret,
		Server:          config.ServerConfig{RequestsPerMinute: 1000},
		PurchaseV2:      purchase,
		DeliverV2:       deliver,
		PurchaseV1:      purchase,
		DeliverV1:       deliverV1,
		ConfigReader:    f.store,
		ConfigWriter:    resolver,
		StripeConnect:   connect,
		ReadinessChecks: f.checks,
		Metrics:         metrics,
		MetricsHandler:  http.NotFoundHandler(),
	})
	return f
}

func bearer(t *testing.T, scopes ...string) string {
	t.Helper()
	claims := &customMW.Claims{
		MerchantID:       "user-merchant-1",
		TestMode:         true,
		StripeCustomerID: "cus_1",
		Scopes:           scopes,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(routerSecret))
	require.NoError(t, err)
	return "Bearer " + s
}

func (f *routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

const purchaseBody = `{
	"initialValue": 5000,
	"recipientEmail": "recipient@example.com",
	"senderEmail": "sender@example.com",
	"senderName": "Jane",
	"stripeCardToken": "tok_visa"
}`

// --- Purchase ---

func TestRouter_PurchaseV2(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v2/turnkey/giftcard/purchase", bearer(t, auth.ScopePurchaseV2), purchaseBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ledgerUnitId":"unit-ch_test_1"}`, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.Len(t, f.gateway.Charges, 1)
	assert.Equal(t, int64(5000), f.gateway.Charges[0].Amount)
	require.Len(t, f.notifier.Sent, 1)
}

func TestRouter_PurchaseV1RespondsWithCardID(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v1/turnkey/giftcard/purchase", bearer(t, auth.ScopePurchaseV1), purchaseBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"cardId":"unit-ch_test_1"}`, w.Body.String())
}

func TestRouter_PurchaseValidation(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v2/turnkey/giftcard/purchase", bearer(t, auth.ScopePurchaseV2),
		`{"initialValue": 0, "recipientEmail": "recipient@example.com", "senderEmail": "sender@example.com", "stripeCardToken": "tok_visa"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, giftcard.CodeInvalidInitialValue, resp.Code)
	assert.Empty(t, f.gateway.Charges)
}

func TestRouter_PurchaseRequiresScope(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v2/turnkey/giftcard/purchase", bearer(t, auth.ScopeDeliverV2), purchaseBody)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, f.gateway.Charges)
}

func TestRouter_PurchaseRequiresToken(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v2/turnkey/giftcard/purchase", "", purchaseBody)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// --- Deliver ---

func TestRouter_DeliverV2AcceptsValueID(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v2/turnkey/giftcard/deliver", bearer(t, auth.ScopeDeliverV2),
		`{"valueId": "card-1", "recipientEmail": "new@example.com"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"params":{"ledgerUnitId":"card-1","recipientEmail":"new@example.com","senderName":"Original Sender"}}`, w.Body.String())
}

func TestRouter_DeliverV1(t *testing.T) {
	tests := []struct {
		name   string
		cardID string
		status int
		code   string
	}{
		{"gift card", "card-1", http.StatusOK, ""},
		{"other card type", "card-2", http.StatusBadRequest, giftcard.CodeInvalidCardID},
		{"unknown card", "card-9", http.StatusBadRequest, giftcard.CodeCardNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupRouter(t)

			w := f.do(http.MethodPost, "/api/v1/turnkey/giftcard/deliver", bearer(t, auth.ScopeDeliverV1),
				`{"cardId": "`+tt.cardID+`", "recipientEmail": "new@example.com"}`)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				var resp ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
				assert.Equal(t, tt.code, resp.Code)
				assert.Empty(t, f.notifier.Sent)
				return
			}
			assert.Contains(t, w.Body.String(), `"cardId":"card-1"`)
		})
	}
}

// --- Config ---

func TestRouter_ConfigRoundTrip(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodGet, "/api/turnkey/config", bearer(t), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"complete":false`)

	body, err := json.Marshal(testutil.NewTestMerchantConfig())
	require.NoError(t, err)
	w = f.do(http.MethodPut, "/api/turnkey/config", bearer(t, auth.ScopeConfigWrite), string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"revision":1}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/turnkey/config", bearer(t), "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ConfigResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Complete)
	assert.Equal(t, "Acme Coffee", resp.Config.CompanyName)
}

func TestRouter_ConfigWriteRequiresScope(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPut, "/api/turnkey/config", bearer(t), `{"companyName":"x"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_ConfigReadFailureIsHidden(t *testing.T) {
	f := setupRouter(t)
	f.store.GetErr = errors.New("dial tcp 10.0.0.5:5432: connection refused")

	w := f.do(http.MethodGet, "/api/turnkey/config", bearer(t), "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

// --- Stripe Connect ---

func TestRouter_StripeConnectHandshake(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodPost, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectWrite), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp StripeConnectResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Connected)
	ids := f.states.IDs()
	require.Len(t, ids, 1)
	assert.Contains(t, resp.Location, "state="+ids[0])

	w = f.do(http.MethodGet, "/api/v1/turnkey/stripe/callback?scope=read_write&code=ac_1&state="+ids[0], "", "")
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "https://app.example.com/app/", w.Header().Get("Location"))

	cfg, err := f.store.Get(context.Background(), "user-merchant-1", true)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "acct_connected_1", cfg.PaymentAccountID)
	assert.Equal(t, "pk_test_connected_1", cfg.PublishableKey)

	f.connect.Accounts["acct_connected_1"] = &giftcard.ProcessorAccount{ID: "acct_connected_1", Email: "owner@acme.example.com"}
	w = f.do(http.MethodGet, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectRead), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected":true}`, w.Body.String())

	w = f.do(http.MethodDelete, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectWrite), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"connected":false}`, w.Body.String())
	assert.Equal(t, []string{"acct_connected_1"}, f.connect.Deauthorized)
}

func TestRouter_StripeConnectCallbackExpired(t *testing.T) {
	f := setupRouter(t)

	w := f.do(http.MethodGet, "/api/v1/turnkey/stripe/callback?scope=read_write&code=ac_1&state=unknown", "", "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"StripeConnectExpired"`)
	assert.Empty(t, f.connect.Exchanged)
}

func TestRouter_StripeConnectCallbackRejected(t *testing.T) {
	f := setupRouter(t)
	f.connect.ExchangeErr = fmt.Errorf("%w: invalid_grant", domainErrors.ErrConnectRejected)
	w := f.do(http.MethodPost, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectWrite), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/v1/turnkey/stripe/callback?scope=read_write&code=ac_1&state="+f.states.IDs()[0], "", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"StripeAuthFailed"`)
	assert.NotContains(t, w.Body.String(), "invalid_grant")
}

func TestRouter_StripeConnectRequiresScope(t *testing.T) {
	f := setupRouter(t)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectRead), "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/v1/turnkey/stripe", bearer(t), "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/api/v1/turnkey/stripe", bearer(t, auth.ScopeStripeConnectRead), "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/v1/turnkey/stripe", "", "").Code)
}

// --- Health ---

func TestRouter_Health(t *testing.T) {
	f := setupRouter(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/ready", "", "").Code)

	f.checks["redis"] = func(ctx context.Context) error { return errors.New("down") }
	w := f.do(http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis unavailable")
}
