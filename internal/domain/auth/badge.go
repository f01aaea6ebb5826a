package auth

import "context"

type ctxKey int

const badgeKey ctxKey = iota

// Badge is the authenticated caller of a turnkey endpoint.
type Badge struct {
	MerchantID          string
	// TestMode selects test processor credentials and skips fraud scoring.
	TestMode            bool
	// ProcessorCustomerID is required when paying with a saved card.
	ProcessorCustomerID string
	Scopes              []string
}

// Mode is the metric/log label for the badge's environment.
func (b Badge) Mode() string {
	if b.TestMode {
		return "test"
	}
	return "live"
}

func NewContext(ctx context.Context, b Badge) context.Context {
	return context.WithValue(ctx, badgeKey, b)
}

func FromContext(ctx context.Context) (Badge, bool) {
	b, ok := ctx.Value(badgeKey).(Badge)
	return b, ok
}

// HasScope reports whether the badge grants scope.
func (b Badge) HasScope(scope string) bool {
	for _, s := range b.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Scopes required by the turnkey endpoints.
const (
	ScopePurchaseV2  = "lightrailV2:purchaseGiftcard"
	ScopeDeliverV2   = "lightrailV2:value:deliver"
	ScopePurchaseV1  = "lightrailV1:purchaseGiftcard"
	ScopeDeliverV1   = "lightrailV1:card:deliver"
	ScopeConfigWrite = "turnkey:config:write"

	ScopeStripeConnectRead  = "lightrailV1:stripeConnect:read"
	ScopeStripeConnectWrite = "lightrailV1:stripeConnect:write"
)
