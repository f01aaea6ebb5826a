package bootstrap

import (
	"context"
	"fmt"

	"github.com/cassiomorais/turnkey/internal/infrastructure/email"
	"github.com/cassiomorais/turnkey/internal/infrastructure/events"
	"github.com/cassiomorais/turnkey/internal/infrastructure/lightrail"
	"github.com/cassiomorais/turnkey/internal/infrastructure/minfraud"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/cassiomorais/turnkey/internal/infrastructure/stripe"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/cassiomorais/turnkey/internal/service"
)

// Sagas is every request-serving component, built once per process.
type Sagas struct {
	PurchaseV2 *service.PurchaseSaga
	DeliverV2  *service.DeliverySaga
	PurchaseV1 *service.PurchaseSaga
	DeliverV1  *service.DeliverySaga

	Configs    *service.ConfigResolver
	ConfigRepo *postgres.MerchantConfigRepository

	StripeConnect *service.StripeConnectService
}

// BuildSagas wires the processor, ledger, fraud, email and event
// collaborators. The returned close function releases the event sink.
func (a *App) BuildSagas(ctx context.Context) (*Sagas, func(), error) {
	cfg := a.Config

	configRepo := postgres.NewMerchantConfigRepository(a.Pool)
	configCache := infraRedis.NewConfigCache(a.Redis, cfg.MerchantConfig.CacheTTL)
	resolver := service.NewConfigResolver(configRepo, configCache, &cfg.Stripe, a.Metrics,
		a.Logger.With().Str("component", "config_resolver").Logger())

	gateways := stripe.NewFactory(cfg.Stripe, cfg.Breaker, a.Metrics)
	ledgerV2 := lightrail.NewClientV2(cfg.Ledger, cfg.Breaker, a.Metrics)
	ledgerV1 := lightrail.NewClientV1(cfg.Ledger, cfg.Breaker, a.Metrics)
	scorer := minfraud.NewScorer(cfg.Fraud, cfg.Breaker, a.Metrics, a.Logger)

	sesClient, err := email.NewSESClient(ctx, cfg.Email.Region)
	if err != nil {
		return nil, nil, fmt.Errorf("create ses client: %w", err)
	}
	notifier := email.NewNotifier(
		email.NewRenderer(cfg.Email.StrictTemplate),
		email.NewSESSender(sesClient, cfg.Email.FromAddress),
		a.Logger,
	)

	sink, closeSink, err := events.New(ctx, cfg.Events, cfg.Email.Region, a.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("create event sink: %w", err)
	}
	a.Logger.Info().Str("driver", cfg.Events.Driver).Msg("Event sink ready")

	connect := service.NewStripeConnectService(
		stripe.NewConnect(cfg.Stripe, nil, cfg.Breaker, a.Metrics),
		infraRedis.NewConnectStateStore(a.Redis),
		resolver,
		service.ConnectSettings{
			AppURL:             cfg.Stripe.Connect.AppURL,
			StateTTL:           cfg.Stripe.Connect.StateTTL,
			DemoAccountDomains: cfg.Stripe.Connect.DemoAccountDomains,
		},
		a.Metrics,
		a.Logger.With().Str("component", "stripe_connect").Logger(),
	)

	purchaseLog := a.Logger.With().Str("saga", "purchase").Logger()
	deliverLog := a.Logger.With().Str("saga", "deliver").Logger()

	return &Sagas{
		PurchaseV2: service.NewPurchaseSaga(resolver, gateways, ledgerV2, scorer, notifier, sink, a.Metrics,
			purchaseLog.With().Str("ledger", "v2").Logger()),
		DeliverV2: service.NewDeliverySaga(resolver, ledgerV2, notifier, a.Metrics,
			deliverLog.With().Str("ledger", "v2").Logger()),
		PurchaseV1: service.NewPurchaseSaga(resolver, gateways, ledgerV1, scorer, notifier, sink, a.Metrics,
			purchaseLog.With().Str("ledger", "v1").Logger()),
		DeliverV1: service.NewDeliverySaga(resolver, ledgerV1, notifier, a.Metrics,
			deliverLog.With().Str("ledger", "v1").Logger(), service.WithGiftCardKindCheck()),
		Configs:       resolver,
		ConfigRepo:    configRepo,
		StripeConnect: connect,
	}, closeSink, nil
}
