package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/service"
)

// --- Config Source Mock ---

// MockConfigSource returns Config unless ResolveFunc is set.
type MockConfigSource struct {
	Config      *giftcard.MerchantConfig
	ResolveFunc func(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
}

func (m *MockConfigSource) Resolve(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, merchantID, testMode)
	}
	return m.Config, nil
}

// --- Payment Gateway Mock ---

// MockPaymentGateway records every call and succeeds unless a Func is set.
type MockPaymentGateway struct {
	mu      sync.Mutex
	Charges []giftcard.ChargeRequest
	Updates []giftcard.ChargeUpdate
	Refunds []giftcard.RefundRequest

	// Charge is returned by the default CreateCharge.
	Charge *giftcard.Charge

	CreateChargeFunc func(ctx context.Context, req giftcard.ChargeRequest) (*giftcard.Charge, error)
	UpdateChargeFunc func(ctx context.Context, update giftcard.ChargeUpdate) error
	CreateRefundFunc func(ctx context.Context, req giftcard.RefundRequest) (*giftcard.Refund, error)
}

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{Charge: NewTestCharge("ch_test_1", 5000)}
}

func (m *MockPaymentGateway) CreateCharge(ctx context.Context, req giftcard.ChargeRequest) (*giftcard.Charge, error) {
	m.mu.Lock()
	m.Charges = append(m.Charges, req)
	m.mu.Unlock()
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, req)
	}
	c := *m.Charge
	c.Amount = req.Amount
	c.Currency = req.Currency
	return &c, nil
}

func (m *MockPaymentGateway) UpdateCharge(ctx context.Context, update giftcard.ChargeUpdate) error {
	m.mu.Lock()
	m.Updates = append(m.Updates, update)
	m.mu.Unlock()
	if m.UpdateChargeFunc != nil {
		return m.UpdateChargeFunc(ctx, update)
	}
	return nil
}

func (m *MockPaymentGateway) CreateRefund(ctx context.Context, req giftcard.RefundRequest) (*giftcard.Refund, error) {
	m.mu.Lock()
	m.Refunds = append(m.Refunds, req)
	m.mu.Unlock()
	if m.CreateRefundFunc != nil {
		return m.CreateRefundFunc(ctx, req)
	}
	return &giftcard.Refund{ID: "re_" + req.ChargeID, ChargeID: req.ChargeID}, nil
}

// MockGatewayProvider hands out Live or Test.
type MockGatewayProvider struct {
	Live *MockPaymentGateway
	Test *MockPaymentGateway
	Err  error
}

// NewMockGatewayProvider serves the same gateway for both modes.
func NewMockGatewayProvider(gw *MockPaymentGateway) *MockGatewayProvider {
	return &MockGatewayProvider{Live: gw, Test: gw}
}

func (m *MockGatewayProvider) Gateway(testMode bool) (service.PaymentGateway, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if testMode {
		return m.Test, nil
	}
	return m.Live, nil
}

// --- Ledger Client Mock ---

// MockLedgerClient keeps issued units in memory.
type MockLedgerClient struct {
	mu       sync.Mutex
	units    map[string]*giftcard.LedgerUnit
	initial  map[string]*giftcard.InitialTransaction
	Issued   []giftcard.IssueRequest
	Canceled []string
	Attached map[string]string

	// Code is the redemption code of every unit.
	Code string

	IssueFunc                  func(ctx context.Context, req giftcard.IssueRequest) (*giftcard.LedgerUnit, error)
	GetRedemptionCodeFunc      func(ctx context.Context, unitID string) (string, error)
	ResolveOrCreateContactFunc func(ctx context.Context, email string) (string, error)
	AttachContactFunc          func(ctx context.Context, unitID, contactID string) error
	CancelFunc                 func(ctx context.Context, unitID string) error
	GetUnitByIDFunc            func(ctx context.Context, unitID string) (*giftcard.LedgerUnit, error)
	GetInitialTransactionFunc  func(ctx context.Context, unitID string) (*giftcard.InitialTransaction, error)
}

func NewMockLedgerClient() *MockLedgerClient {
	return &MockLedgerClient{
		units:    make(map[string]*giftcard.LedgerUnit),
		initial:  make(map[string]*giftcard.InitialTransaction),
		Attached: make(map[string]string),
		Code:     "ABCD2345EFGH6789",
	}
}

// AddUnit seeds an issued unit with its initial transaction.
func (m *MockLedgerClient) AddUnit(unit *giftcard.LedgerUnit, tx *giftcard.InitialTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[unit.ID] = unit
	m.initial[unit.ID] = tx
}

func (m *MockLedgerClient) Issue(ctx context.Context, req giftcard.IssueRequest) (*giftcard.LedgerUnit, error) {
	m.mu.Lock()
	m.Issued = append(m.Issued, req)
	m.mu.Unlock()
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, req)
	}
	unit := &giftcard.LedgerUnit{
		ID:        "unit-" + req.UserSuppliedID,
		ProgramID: req.ProgramID,
		Balance:   req.Amount,
		Currency:  req.Currency,
		Kind:      giftcard.KindGiftCard,
		ContactID: req.ContactID,
		Metadata:  req.Metadata,
	}
	m.AddUnit(unit, &giftcard.InitialTransaction{Value: req.Amount, Metadata: req.Metadata})
	return unit, nil
}

func (m *MockLedgerClient) GetRedemptionCode(ctx context.Context, unitID string) (string, error) {
	if m.GetRedemptionCodeFunc != nil {
		return m.GetRedemptionCodeFunc(ctx, unitID)
	}
	return m.Code, nil
}

func (m *MockLedgerClient) ResolveOrCreateContact(ctx context.Context, email string) (string, error) {
	if m.ResolveOrCreateContactFunc != nil {
		return m.ResolveOrCreateContactFunc(ctx, email)
	}
	return "contact-" + email, nil
}

func (m *MockLedgerClient) AttachContact(ctx context.Context, unitID, contactID string) error {
	if m.AttachContactFunc != nil {
		return m.AttachContactFunc(ctx, unitID, contactID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attached[unitID] = contactID
	return nil
}

func (m *MockLedgerClient) Cancel(ctx context.Context, unitID string) error {
	m.mu.Lock()
	m.Canceled = append(m.Canceled, unitID)
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, unitID)
	}
	return nil
}

func (m *MockLedgerClient) GetUnitByID(ctx context.Context, unitID string) (*giftcard.LedgerUnit, error) {
	if m.GetUnitByIDFunc != nil {
		return m.GetUnitByIDFunc(ctx, unitID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.units[unitID], nil
}

func (m *MockLedgerClient) GetInitialTransaction(ctx context.Context, unitID string) (*giftcard.InitialTransaction, error) {
	if m.GetInitialTransactionFunc != nil {
		return m.GetInitialTransactionFunc(ctx, unitID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.initial[unitID]
	if !ok {
		return nil, fmt.Errorf("no initial transaction for %s", unitID)
	}
	return tx, nil
}

// --- Fraud Scorer Mock ---

type MockFraudScorer struct {
	mu         sync.Mutex
	Calls      []giftcard.FraudCheckParams
	Assessment *giftcard.FraudAssessment
	Err        error
}

func NewMockFraudScorer(risk, ipRisk float64) *MockFraudScorer {
	return &MockFraudScorer{Assessment: &giftcard.FraudAssessment{RiskScore: risk, IPRiskScore: ipRisk}}
}

func (m *MockFraudScorer) Score(ctx context.Context, params giftcard.FraudCheckParams) (*giftcard.FraudAssessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Assessment, nil
}

// --- Notifier Mock ---

type MockNotifier struct {
	mu       sync.Mutex
	Sent     []giftcard.Notification
	SendFunc func(ctx context.Context, n giftcard.Notification) (string, error)
}

func (m *MockNotifier) Send(ctx context.Context, n giftcard.Notification) (string, error) {
	m.mu.Lock()
	m.Sent = append(m.Sent, n)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, n)
	}
	return "msg-1", nil
}

// --- Event Sink Mock ---

type PublishedEvent struct {
	Type    string
	Key     string
	Payload any
}

type MockEventSink struct {
	mu     sync.Mutex
	Events []PublishedEvent
	Err    error
}

func (m *MockEventSink) Publish(ctx context.Context, eventType, key string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, PublishedEvent{Type: eventType, Key: key, Payload: payload})
	return nil
}

// --- Merchant Config Store/Cache Mocks ---

func configKey(merchantID string, testMode bool) string {
	return fmt.Sprintf("%s:%t", merchantID, testMode)
}

type MockMerchantConfigStore struct {
	mu       sync.Mutex
	configs  map[string]*giftcard.MerchantConfig
	revision map[string]int
	Gets     int
	GetErr   error
}

func NewMockMerchantConfigStore() *MockMerchantConfigStore {
	return &MockMerchantConfigStore{
		configs:  make(map[string]*giftcard.MerchantConfig),
		revision: make(map[string]int),
	}
}

func (m *MockMerchantConfigStore) Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.configs[configKey(merchantID, testMode)], nil
}

func (m *MockMerchantConfigStore) Upsert(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := configKey(merchantID, testMode)
	m.configs[k] = cfg
	m.revision[k]++
	return m.revision[k], nil
}

type MockMerchantConfigCache struct {
	mu          sync.Mutex
	configs     map[string]*giftcard.MerchantConfig
	Invalidated []string
	GetErr      error
}

func NewMockMerchantConfigCache() *MockMerchantConfigCache {
	return &MockMerchantConfigCache{configs: make(map[string]*giftcard.MerchantConfig)}
}

func (m *MockMerchantConfigCache) Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.configs[configKey(merchantID, testMode)], nil
}

func (m *MockMerchantConfigCache) Set(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[configKey(merchantID, testMode)] = cfg
	return nil
}

func (m *MockMerchantConfigCache) Invalidate(ctx context.Context, merchantID string, testMode bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := configKey(merchantID, testMode)
	delete(m.configs, k)
	m.Invalidated = append(m.Invalidated, k)
	return nil
}

// StaticCredentials satisfies PlatformCredentials.
type StaticCredentials struct {
	Live string
	Test string
}

func (c StaticCredentials) SecretKey(testMode bool) string {
	if testMode {
		return c.Test
	}
	return c.Live
}

// --- Processor Connect Mocks ---

// MockProcessorConnect knows the accounts in Accounts; any other id reads as
// revoked.
type MockProcessorConnect struct {
	mu           sync.Mutex
	Accounts     map[string]*giftcard.ProcessorAccount
	Grant        *giftcard.ProcessorAuth
	Deauthorized []string
	Exchanged    []string

	ExchangeErr    error
	GetAccountErr  error
	DeauthorizeErr error
}

func NewMockProcessorConnect() *MockProcessorConnect {
	return &MockProcessorConnect{
		Accounts: make(map[string]*giftcard.ProcessorAccount),
		Grant: &giftcard.ProcessorAuth{
			AccountID:      "acct_connected_1",
			PublishableKey: "pk_test_connected_1",
			Scope:          giftcard.ConnectScope,
		},
	}
}

func (m *MockProcessorConnect) AuthorizeURL(testMode bool, state string) (string, error) {
	return fmt.Sprintf("https://connect.example.com/oauth/authorize?state=%s&test=%t", state, testMode), nil
}

func (m *MockProcessorConnect) ExchangeCode(ctx context.Context, testMode bool, code string) (*giftcard.ProcessorAuth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Exchanged = append(m.Exchanged, code)
	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	return m.Grant, nil
}

func (m *MockProcessorConnect) Deauthorize(ctx context.Context, testMode bool, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeauthorizeErr != nil {
		return m.DeauthorizeErr
	}
	m.Deauthorized = append(m.Deauthorized, accountID)
	return nil
}

func (m *MockProcessorConnect) GetAccount(ctx context.Context, testMode bool, accountID string) (*giftcard.ProcessorAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetAccountErr != nil {
		return nil, m.GetAccountErr
	}
	return m.Accounts[accountID], nil
}

// MockConnectStateStore records TTLs but never expires anything.
type MockConnectStateStore struct {
	mu      sync.Mutex
	states  map[string]giftcard.ConnectState
	TTLs    []time.Duration
	SaveErr error
}

func NewMockConnectStateStore() *MockConnectStateStore {
	return &MockConnectStateStore{states: make(map[string]giftcard.ConnectState)}
}

func (m *MockConnectStateStore) Save(ctx context.Context, state giftcard.ConnectState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.states[state.ID] = state
	m.TTLs = append(m.TTLs, ttl)
	return nil
}

func (m *MockConnectStateStore) Take(ctx context.Context, id string) (*giftcard.ConnectState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	delete(m.states, id)
	return &state, nil
}

// IDs lists the pending state ids.
func (m *MockConnectStateStore) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}
