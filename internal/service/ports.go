package service

import (
	"context"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
)

// PaymentGateway charges and refunds cards on a merchant's processor account.
// Every error it returns is a *giftcard.PaymentError.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req giftcard.ChargeRequest) (*giftcard.Charge, error)
	UpdateCharge(ctx context.Context, update giftcard.ChargeUpdate) error
	CreateRefund(ctx context.Context, req giftcard.RefundRequest) (*giftcard.Refund, error)
}

// GatewayProvider picks the live or test gateway for a request.
type GatewayProvider interface {
	Gateway(testMode bool) (PaymentGateway, error)
}

// LedgerClient issues and manages stored value units. It acts on behalf of the
// merchant in the request context's badge.
type LedgerClient interface {
	Issue(ctx context.Context, req giftcard.IssueRequest) (*giftcard.LedgerUnit, error)
	GetRedemptionCode(ctx context.Context, unitID string) (string, error)
	ResolveOrCreateContact(ctx context.Context, email string) (string, error)
	AttachContact(ctx context.Context, unitID, contactID string) error
	Cancel(ctx context.Context, unitID string) error
	// GetUnitByID returns nil, nil when the unit does not exist.
	GetUnitByID(ctx context.Context, unitID string) (*giftcard.LedgerUnit, error)
	GetInitialTransaction(ctx context.Context, unitID string) (*giftcard.InitialTransaction, error)
}

type FraudScorer interface {
	Score(ctx context.Context, params giftcard.FraudCheckParams) (*giftcard.FraudAssessment, error)
}

// Notifier renders and sends the redemption email, returning the provider's
// message id.
type Notifier interface {
	Send(ctx context.Context, n giftcard.Notification) (string, error)
}

type EventSink interface {
	Publish(ctx context.Context, eventType, key string, payload any) error
}

// MerchantConfigStore is the durable home of merchant configs.
type MerchantConfigStore interface {
	Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
	Upsert(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error)
}

// MerchantConfigCache returns nil, nil on a miss.
type MerchantConfigCache interface {
	Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
	Set(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) error
	Invalidate(ctx context.Context, merchantID string, testMode bool) error
}

// PlatformCredentials exposes the platform's own processor secret per mode.
type PlatformCredentials interface {
	SecretKey(testMode bool) string
}

// ConfigSource resolves a validated merchant config.
type ConfigSource interface {
	Resolve(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
}

// ProcessorConnect links a merchant's own processor account to the platform.
type ProcessorConnect interface {
	AuthorizeURL(testMode bool, state string) (string, error)
	ExchangeCode(ctx context.Context, testMode bool, code string) (*giftcard.ProcessorAuth, error)
	Deauthorize(ctx context.Context, testMode bool, accountID string) error
	// GetAccount returns nil, nil when the platform no longer has access.
	GetAccount(ctx context.Context, testMode bool, accountID string) (*giftcard.ProcessorAccount, error)
}

// ConnectStateStore holds pending connections until their callback arrives.
type ConnectStateStore interface {
	Save(ctx context.Context, state giftcard.ConnectState, ttl time.Duration) error
	// Take returns the state once and deletes it; nil, nil when it expired.
	Take(ctx context.Context, id string) (*giftcard.ConnectState, error)
}

// MerchantConfigEditor reads a stored config as-is and writes it back.
type MerchantConfigEditor interface {
	Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
	Store(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error)
}
