package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/turnkey/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	ServiceName string
	JWTSecret   string
	Server      config.ServerConfig

	PurchaseV2 Purchaser
	DeliverV2  Deliverer
	PurchaseV1 Purchaser
	DeliverV1  Deliverer

	ConfigReader ConfigReader
	ConfigWriter ConfigWriter

	StripeConnect StripeConnector

	IdempotencyStore customMW.IdempotencyStore
	NewLock          func(key string) customMW.Locker
	IdempotencyTTL   time.Duration

	ReadinessChecks map[string]Check
	Metrics         *observability.Metrics
	// MetricsHandler defaults to the global prometheus registry.
	MetricsHandler http.Handler
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing(deps.ServiceName))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Forwarded-For"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.ReadinessChecks)
	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	var connectH *StripeConnectController
	if deps.StripeConnect != nil {
		connectH = NewStripeConnectController(deps.StripeConnect)
		r.Get("/api/v1/turnkey/stripe/callback", connectH.Callback)
	}

	r.Group(func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.JWTSecret))
		if deps.Server.RequestsPerMinute > 0 {
			r.Use(customMW.RateLimit(deps.Server.RequestsPerMinute))
		}

		idempotent := func(next http.Handler) http.Handler { return next }
		if deps.IdempotencyStore != nil && deps.NewLock != nil {
			idempotent = customMW.Idempotency(deps.IdempotencyStore, deps.NewLock, deps.IdempotencyTTL)
		}

		v2 := NewGiftCardController(deps.PurchaseV2, deps.DeliverV2)
		r.Route("/api/v2/turnkey/giftcard", func(r chi.Router) {
			r.With(customMW.RequireScope(auth.ScopePurchaseV2), idempotent).Post("/purchase", v2.Purchase)
			r.With(customMW.RequireScope(auth.ScopeDeliverV2), idempotent).Post("/deliver", v2.Deliver)
		})

		v1 := NewLegacyGiftCardController(deps.PurchaseV1, deps.DeliverV1)
		r.Route("/api/v1/turnkey/giftcard", func(r chi.Router) {
			r.With(customMW.RequireScope(auth.ScopePurchaseV1), idempotent).Post("/purchase", v1.Purchase)
			r.With(customMW.RequireScope(auth.ScopeDeliverV1), idempotent).Post("/deliver", v1.Deliver)
		})

		if deps.ConfigReader != nil && deps.ConfigWriter != nil {
			configH := NewConfigController(deps.ConfigReader, deps.ConfigWriter)
			r.Get("/api/turnkey/config", configH.Get)
			r.With(customMW.RequireScope(auth.ScopeConfigWrite)).Put("/api/turnkey/config", configH.Put)
		}

		if connectH != nil {
			r.With(customMW.RequireScope(auth.ScopeStripeConnectWrite)).Post("/api/v1/turnkey/stripe", connectH.Start)
			r.With(customMW.RequireScope(auth.ScopeStripeConnectRead)).Get("/api/v1/turnkey/stripe", connectH.Status)
			r.With(customMW.RequireScope(auth.ScopeStripeConnectWrite)).Delete("/api/v1/turnkey/stripe", connectH.Disconnect)
		}
	})

	return r
}
