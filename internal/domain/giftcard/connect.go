package giftcard

import (
	"strings"
	"time"
)

// ConnectScope is the processor access a connected account must grant.
const ConnectScope = "read_write"

// ConnectState is a pending processor account connection. The callback that
// completes it is unauthenticated, so the state carries the merchant and mode
// it was started for.
type ConnectState struct {
	ID         string    `json:"id"`
	MerchantID string    `json:"merchantId"`
	TestMode   bool      `json:"testMode"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProcessorAuth is what a completed authorization hands back. Access and
// refresh tokens are not kept: charges run with the platform key on behalf of
// AccountID.
type ProcessorAuth struct {
	AccountID      string
	PublishableKey string
	Scope          string
	LiveMode       bool
}

type ProcessorAccount struct {
	ID    string
	Email string
}

// OwnedBy reports whether the account's email belongs to one of domains.
func (a *ProcessorAccount) OwnedBy(domains []string) bool {
	email := strings.ToLower(a.Email)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "@"))
		if d != "" && strings.HasSuffix(email, "@"+d) {
			return true
		}
	}
	return false
}
