package stripe

import (
	"fmt"

	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/cassiomorais/turnkey/internal/service"
)

// Factory holds one gateway per processor mode.
type Factory struct {
	live *Gateway
	test *Gateway
}

func NewFactory(cfg config.StripeConfig, breakerCfg config.BreakerConfig, metrics *observability.Metrics) *Factory {
	f := &Factory{}
	if key := cfg.SecretKey(false); key != "" {
		f.live = NewGateway("stripe_live", key, nil, breakerCfg, metrics)
	}
	if key := cfg.SecretKey(true); key != "" {
		f.test = NewGateway("stripe_test", key, nil, breakerCfg, metrics)
	}
	return f
}

func (f *Factory) Gateway(testMode bool) (service.PaymentGateway, error) {
	g := f.live
	if testMode {
		g = f.test
	}
	if g == nil {
		mode := "live"
		if testMode {
			mode = "test"
		}
		return nil, fmt.Errorf("no %s processor secret key configured", mode)
	}
	return g, nil
}
