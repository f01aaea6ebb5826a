package giftcard

import (
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
)

// FullcodePlaceholder is replaced with the redemption code in the claim link.
const FullcodePlaceholder = "{{fullcode}}"

// CodeMissingStripeUserID is reported when the merchant has no connected
// processor account.
const CodeMissingStripeUserID = "MissingStripeUserId"

// CodeInvalidTurnkeyConfig is reported for any other missing config field.
const CodeInvalidTurnkeyConfig = "InvalidTurnkeyConfig"

// MerchantConfig is the merchant's turnkey configuration. It is read once per
// request and never mutated by the sagas.
type MerchantConfig struct {
	CompanyName        string `json:"companyName"`
	Currency           string `json:"currency"`
	Logo               string `json:"logo"`
	ProgramID          string `json:"programId"`
	ClaimLink          string `json:"claimLink"`
	LinkToPrivacy      string `json:"linkToPrivacy"`
	LinkToTerms        string `json:"linkToTerms"`
	TermsAndConditions string `json:"termsAndConditions"`
	ReplyToAddress     string `json:"giftEmailReplyToAddress"`
	PaymentAccountID   string `json:"stripeUserId"`
	// PublishableKey is the connected account's public processor key, set by
	// the connect callback for the merchant's checkout page.
	PublishableKey     string `json:"stripePublicKey,omitempty"`

	// Presentation extras with defaults in the email renderer.
	EmailSubject         string `json:"emailSubject,omitempty"`
	AdditionalInfo       string `json:"additionalInfo,omitempty"`
	CompanyWebsiteURL    string `json:"companyWebsiteUrl,omitempty"`
	Copyright            string `json:"copyright,omitempty"`
	CustomerSupportEmail string `json:"customerSupportEmail,omitempty"`
}

// Validate reports every missing mandatory field. It is a pure function of
// the config, so the same config always yields the same verdict.
func (c *MerchantConfig) Validate() error {
	if c == nil {
		return domainErrors.NewDomainError(CodeInvalidTurnkeyConfig, "turnkey config was not set", domainErrors.ErrConfigInvalid)
	}

	var errs []error
	required := []struct {
		field string
		value string
	}{
		{"companyName", c.CompanyName},
		{"currency", c.Currency},
		{"logo", c.Logo},
		{"programId", c.ProgramID},
		{"linkToPrivacy", c.LinkToPrivacy},
		{"linkToTerms", c.LinkToTerms},
		{"termsAndConditions", c.TermsAndConditions},
		{"giftEmailReplyToAddress", c.ReplyToAddress},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("turnkey config %s was not set", r.field))
		}
	}
	if !strings.Contains(c.ClaimLink, FullcodePlaceholder) {
		errs = append(errs, fmt.Errorf("turnkey config claimLink must contain %s for replacement", FullcodePlaceholder))
	}

	if strings.TrimSpace(c.PaymentAccountID) == "" {
		if len(errs) == 0 {
			return domainErrors.NewDomainError(CodeMissingStripeUserID,
				"merchant must connect a stripe account before selling gift cards", domainErrors.ErrConfigInvalid)
		}
		errs = append(errs, fmt.Errorf("stripe user id was not set"))
	}

	if len(errs) == 0 {
		return nil
	}
	return domainErrors.NewDomainError(CodeInvalidTurnkeyConfig, errors.Join(errs...).Error(), domainErrors.ErrConfigInvalid)
}
