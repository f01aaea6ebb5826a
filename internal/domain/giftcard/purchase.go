package giftcard

import (
	"regexp"
	"strings"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
)

// Validation codes reported to callers.
const (
	CodeInvalidInitialValue     = "InvalidParamInitialValue"
	CodeInvalidRecipientEmail   = "InvalidParamRecipientEmail"
	CodeInvalidSenderEmail      = "InvalidParamSenderEmail"
	CodeInvalidCardTokens       = "InvalidParamStripeCardTokens"
	CodeMissingStripeCustomerID = "InvalidAuthMetadataMissingStripeCustomerId"
	CodeInvalidValueID          = "InvalidParamValueId"
	CodeValueNotFound           = "InvalidParamValueIdNoValueFound"
	CodeInvalidCardID           = "InvalidParamCardId"
	CodeCardNotFound            = "InvalidParamCardIdNoCardFound"
)

var emailPattern = regexp.MustCompile(`(?i)^(?:[a-z0-9!#$%&'*+/=?^_\x60{|}~-]+(?:\.[a-z0-9!#$%&'*+/=?^_\x60{|}~-]+)*|"(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21\x23-\x5b\x5d-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])*")@(?:(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z0-9](?:[a-z0-9-]*[a-z0-9])?|\[(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?|[a-z0-9-]*[a-z0-9]:(?:[\x01-\x08\x0b\x0c\x0e-\x1f\x21-\x5a\x53-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])+)\])$`)

// IsValidEmailAddress reports whether email is an RFC 5322 style address
// with a dotted domain or a bracketed IPv4 literal.
func IsValidEmailAddress(email string) bool {
	return emailPattern.MatchString(email)
}

// PurchaseRequest is a single gift card purchase. Exactly one of
// PaymentToken and SavedInstrumentID must be set.
type PurchaseRequest struct {
	InitialValue      int64
	RecipientEmail    string
	SenderEmail       string
	SenderName        string
	Message           string
	PaymentToken      string
	SavedInstrumentID string
	// ClientIP is the first address of the forwarding chain, used for fraud scoring.
	ClientIP          string
}

// Validate checks the request against the caller's badge. It performs no I/O.
func (r PurchaseRequest) Validate(badge auth.Badge) error {
	if r.InitialValue <= 0 {
		return domainErrors.NewCodedValidationError(CodeInvalidInitialValue, "initialValue",
			"parameter initialValue must be a positive integer")
	}
	if !IsValidEmailAddress(r.RecipientEmail) {
		return domainErrors.NewCodedValidationError(CodeInvalidRecipientEmail, "recipientEmail",
			"parameter recipientEmail must be a valid email address")
	}
	if !IsValidEmailAddress(r.SenderEmail) {
		return domainErrors.NewCodedValidationError(CodeInvalidSenderEmail, "senderEmail",
			"parameter senderEmail must be a valid email address")
	}

	hasToken := strings.TrimSpace(r.PaymentToken) != ""
	hasSaved := strings.TrimSpace(r.SavedInstrumentID) != ""
	switch {
	case !hasToken && !hasSaved:
		return domainErrors.NewCodedValidationError(CodeInvalidCardTokens, "stripeCardToken",
			"parameter stripeCardToken or stripeCardId must be set")
	case hasToken && hasSaved:
		return domainErrors.NewCodedValidationError(CodeInvalidCardTokens, "stripeCardToken",
			"parameter stripeCardToken and stripeCardId cannot both be set")
	}

	if hasSaved && badge.ProcessorCustomerID == "" {
		return domainErrors.NewCodedValidationError(CodeMissingStripeCustomerID, "stripeCardId",
			"stripeCardId requires a stripe customer id in the auth metadata")
	}
	return nil
}

// UsesSavedInstrument reports whether the charge should use the saved card.
func (r PurchaseRequest) UsesSavedInstrument() bool {
	return strings.TrimSpace(r.SavedInstrumentID) != ""
}

// DeliveryRequest re-targets the redemption email of an issued unit.
// Empty Message and SenderName fall back to the unit's issuance metadata.
type DeliveryRequest struct {
	LedgerUnitID   string
	RecipientEmail string
	Message        string
	SenderName     string
}

func (r DeliveryRequest) Validate() error {
	if strings.TrimSpace(r.LedgerUnitID) == "" {
		return domainErrors.NewCodedValidationError(CodeInvalidValueID, "ledgerUnitId",
			"parameter ledgerUnitId must be set")
	}
	if !IsValidEmailAddress(r.RecipientEmail) {
		return domainErrors.NewCodedValidationError(CodeInvalidRecipientEmail, "recipientEmail",
			"parameter recipientEmail must be a valid email address")
	}
	return nil
}
