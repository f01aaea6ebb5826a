package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	CodeConnectExpired     = "StripeConnectExpired"
	CodeConnectRejected    = "StripeAuthFailed"
	CodeInvalidConnectArg  = "InvalidParamStripeConnect"
	messageConnectExpired  = "Stripe Connect link has expired.  Please start again."
	messageConnectRejected = "Unable to complete Stripe authorization."
	messageConnectFailed   = "An unexpected error occurred while connecting the Stripe account."
	defaultConnectStateTTL = 6 * time.Hour
)

// ConnectSettings are the platform-side Connect options.
type ConnectSettings struct {
	AppURL             string
	StateTTL           time.Duration
	DemoAccountDomains []string
}

// ConnectStatus is what the merchant sees of its processor connection.
// Location is where to send the merchant next, when anywhere.
type ConnectStatus struct {
	Connected bool
	Location  string
}

// ConnectCallback is the query of the processor's OAuth redirect.
type ConnectCallback struct {
	State            string
	Code             string
	Scope            string
	Error            string
	ErrorDescription string
}

// StripeConnectService connects, inspects and disconnects the processor
// account a merchant's gift card sales are charged to. The connected account
// id ends up in the merchant config as PaymentAccountID.
type StripeConnectService struct {
	processor ProcessorConnect
	states    ConnectStateStore
	configs   MerchantConfigEditor
	settings  ConnectSettings
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewStripeConnectService(
	processor ProcessorConnect,
	states ConnectStateStore,
	configs MerchantConfigEditor,
	settings ConnectSettings,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *StripeConnectService {
	if settings.StateTTL <= 0 {
		settings.StateTTL = defaultConnectStateTTL
	}
	return &StripeConnectService{
		processor: processor,
		states:    states,
		configs:   configs,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start reports an existing live connection, or opens a new handshake and
// returns the processor's authorize URL.
func (s *StripeConnectService) Start(ctx context.Context, badge auth.Badge) (*ConnectStatus, error) {
	connected, err := s.connected(ctx, badge)
	if err != nil {
		s.count("start", err)
		return nil, err
	}
	if connected {
		s.count("start", nil)
		return &ConnectStatus{Connected: true, Location: s.settings.AppURL}, nil
	}

	state := giftcard.ConnectState{
		ID:         uuid.NewString(),
		MerchantID: badge.MerchantID,
		TestMode:   badge.TestMode,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.states.Save(ctx, state, s.settings.StateTTL); err != nil {
		s.logger.Error().Err(err).Str("merchant_id", badge.MerchantID).Msg("connect state not saved")
		err = connectFailed(err)
		s.count("start", err)
		return nil, err
	}

	location, err := s.processor.AuthorizeURL(badge.TestMode, state.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("mode", badge.Mode()).Msg("authorize url unavailable")
		err = connectFailed(err)
		s.count("start", err)
		return nil, err
	}
	s.count("start", nil)
	return &ConnectStatus{Location: location}, nil
}

// Status reports whether the merchant has a connected account the platform
// can still act on.
func (s *StripeConnectService) Status(ctx context.Context, badge auth.Badge) (*ConnectStatus, error) {
	connected, err := s.connected(ctx, badge)
	s.count("status", err)
	if err != nil {
		return nil, err
	}
	return &ConnectStatus{Connected: connected}, nil
}

// Disconnect revokes the platform's access and clears the account from the
// merchant config. Accounts owned by the demo domains stay authorized when
// the request comes from a test badge, since every demo merchant shares them.
func (s *StripeConnectService) Disconnect(ctx context.Context, badge auth.Badge) (*ConnectStatus, error) {
	err := s.disconnect(ctx, badge)
	s.count("disconnect", err)
	if err != nil {
		return nil, err
	}
	return &ConnectStatus{}, nil
}

func (s *StripeConnectService) disconnect(ctx context.Context, badge auth.Badge) error {
	logger := s.logger.With().Str("merchant_id", badge.MerchantID).Str("mode", badge.Mode()).Logger()

	cfg, err := s.configs.Get(ctx, badge.MerchantID, badge.TestMode)
	if err != nil {
		return configUnavailable(err)
	}
	if cfg == nil || cfg.PaymentAccountID == "" {
		return nil
	}

	account, err := s.processor.GetAccount(ctx, badge.TestMode, cfg.PaymentAccountID)
	if err != nil {
		logger.Error().Err(err).Str("account_id", cfg.PaymentAccountID).Msg("connected account lookup failed")
		return connectFailed(err)
	}

	switch {
	case account == nil:
		logger.Info().Str("account_id", cfg.PaymentAccountID).Msg("account access already revoked")
	case badge.TestMode && account.OwnedBy(s.settings.DemoAccountDomains):
		logger.Info().Str("account_id", account.ID).Msg("skipping deauthorize of demo account")
	default:
		if err := s.processor.Deauthorize(ctx, badge.TestMode, cfg.PaymentAccountID); err != nil {
			logger.Error().Err(err).Str("account_id", cfg.PaymentAccountID).Msg("deauthorize failed")
			return connectFailed(err)
		}
	}

	cfg.PaymentAccountID = ""
	cfg.PublishableKey = ""
	if _, err := s.configs.Store(ctx, badge.MerchantID, badge.TestMode, cfg); err != nil {
		return configUnavailable(err)
	}
	logger.Info().Msg("processor account disconnected")
	return nil
}

// Complete finishes a handshake from the processor's redirect and returns
// where to send the merchant. A processor-side refusal (cb.Error) is logged
// and still redirects.
func (s *StripeConnectService) Complete(ctx context.Context, cb ConnectCallback) (string, error) {
	location, err := s.complete(ctx, cb)
	s.count("complete", err)
	return location, err
}

func (s *StripeConnectService) complete(ctx context.Context, cb ConnectCallback) (string, error) {
	if cb.State == "" {
		return "", domainErrors.NewCodedValidationError(CodeInvalidConnectArg, "state", "parameter state must be set")
	}
	state, err := s.states.Take(ctx, cb.State)
	if err != nil {
		s.logger.Error().Err(err).Msg("connect state lookup failed")
		return "", connectFailed(err)
	}
	if state == nil {
		s.logger.Warn().Str("state", cb.State).Msg("connect link expired")
		return "", domainErrors.NewDomainError(CodeConnectExpired, messageConnectExpired, domainErrors.ErrConnectExpired)
	}

	logger := s.logger.With().Str("merchant_id", state.MerchantID).Bool("test_mode", state.TestMode).Logger()
	if cb.Error != "" {
		logger.Warn().
			Str("error", cb.Error).
			Str("error_description", cb.ErrorDescription).
			Msg("processor declined the connection")
		return s.settings.AppURL, nil
	}
	if cb.Code == "" {
		return "", domainErrors.NewCodedValidationError(CodeInvalidConnectArg, "code", "parameter code must be set")
	}
	if cb.Scope != giftcard.ConnectScope {
		return "", domainErrors.NewCodedValidationError(CodeInvalidConnectArg, "scope",
			fmt.Sprintf("parameter scope must be %s", giftcard.ConnectScope))
	}

	grant, err := s.processor.ExchangeCode(ctx, state.TestMode, cb.Code)
	if err != nil {
		logger.Error().Err(err).Msg("authorization code exchange failed")
		if errors.Is(err, domainErrors.ErrConnectRejected) {
			return "", domainErrors.NewDomainError(CodeConnectRejected, messageConnectRejected, err)
		}
		return "", connectFailed(err)
	}

	cfg, err := s.configs.Get(ctx, state.MerchantID, state.TestMode)
	if err != nil {
		return "", configUnavailable(err)
	}
	if cfg == nil {
		cfg = &giftcard.MerchantConfig{}
	}
	cfg.PaymentAccountID = grant.AccountID
	cfg.PublishableKey = grant.PublishableKey
	if _, err := s.configs.Store(ctx, state.MerchantID, state.TestMode, cfg); err != nil {
		return "", configUnavailable(err)
	}

	logger.Info().Str("account_id", grant.AccountID).Msg("processor account connected")
	return s.settings.AppURL, nil
}

func (s *StripeConnectService) connected(ctx context.Context, badge auth.Badge) (bool, error) {
	cfg, err := s.configs.Get(ctx, badge.MerchantID, badge.TestMode)
	if err != nil {
		return false, configUnavailable(err)
	}
	if cfg == nil || cfg.PaymentAccountID == "" {
		return false, nil
	}
	account, err := s.processor.GetAccount(ctx, badge.TestMode, cfg.PaymentAccountID)
	if err != nil {
		s.logger.Error().Err(err).Str("merchant_id", badge.MerchantID).Msg("connected account lookup failed")
		return false, connectFailed(err)
	}
	return account != nil, nil
}

func (s *StripeConnectService) count(action string, err error) {
	s.metrics.ConnectOperations.WithLabelValues(action, outcomeOf(err)).Inc()
}

func connectFailed(err error) error {
	return domainErrors.NewDomainError(CodeProcessorError, messageConnectFailed,
		fmt.Errorf("%w: %v", domainErrors.ErrProcessor, err))
}

func configUnavailable(err error) error {
	return domainErrors.NewDomainError(CodeConfigUnavailable, "merchant configuration could not be loaded",
		fmt.Errorf("%w: %v", domainErrors.ErrConfigUnavailable, err))
}
