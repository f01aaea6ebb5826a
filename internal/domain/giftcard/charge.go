package giftcard

import (
	"errors"
	"fmt"
)

const (
	// ChargeDescription is set on every new charge.
	ChargeDescription = "Gift card purchase"

	maxMetadataMessageLength = 499
)

// Refund reasons recorded on the processor for each compensation point.
const (
	RefundReasonFraud    = "The order failed fraud check."
	RefundReasonIssuance = "Refunded due to an unexpected error during gift card creation."
)

// RefundReasonDelivery is the refund reason when finalization fails after the
// unit was issued.
func RefundReasonDelivery(unitID string) string {
	return fmt.Sprintf("Refunded due to an unexpected error during the gift card delivery step. The value %s will be cancelled.", unitID)
}

// FinalizedChargeDescription references the issued unit from the charge.
func FinalizedChargeDescription(companyName, unitID string) string {
	return fmt.Sprintf("%s gift card. Purchase reference number: %s.", companyName, unitID)
}

// InstrumentDetails are the card attributes used for fraud scoring.
type InstrumentDetails struct {
	Last4       string
	Fingerprint string
	PostalCode  string
	CVCCheck    string
}

// Charge is a processor charge as seen by the sagas.
type Charge struct {
	ID         string
	Amount     int64
	Currency   string
	Review     bool
	Captured   bool
	Instrument InstrumentDetails
}

// ChargeMetadata is attached to the charge at creation and extended with the
// ledger unit id during finalization.
type ChargeMetadata struct {
	SenderName     string
	SenderEmail    string
	RecipientEmail string
	Message        string
	LedgerUnitID   string
}

// Map returns the processor metadata bag. Empty values are omitted.
func (m ChargeMetadata) Map() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("sender_name", m.SenderName)
	set("sender_email", m.SenderEmail)
	set("recipient_email", m.RecipientEmail)
	set("message", truncate(m.Message, maxMetadataMessageLength))
	set("lightrail_value_id", m.LedgerUnitID)
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ChargeRequest creates a charge on the merchant's sub-account. Exactly one of
// Token and SavedCardID is set; CustomerID accompanies SavedCardID.
type ChargeRequest struct {
	Amount       int64
	Currency     string
	Token        string
	SavedCardID  string
	CustomerID   string
	Account      string
	ReceiptEmail string
	Description  string
	Metadata     ChargeMetadata
}

// ChargeUpdate replaces the description and metadata of a charge.
type ChargeUpdate struct {
	ChargeID    string
	Account     string
	Description string
	Metadata    ChargeMetadata
}

// RefundRequest fully refunds a charge.
type RefundRequest struct {
	ChargeID string
	Account  string
	Reason   string
}

type Refund struct {
	ID       string
	ChargeID string
	Amount   int64
}

// PaymentErrorKind is the closed set of processor failures.
type PaymentErrorKind int

const (
	PaymentProcessorError PaymentErrorKind = iota
	PaymentCardDeclined
	PaymentInvalidInstrument
	PaymentRateLimited
)

func (k PaymentErrorKind) String() string {
	switch k {
	case PaymentCardDeclined:
		return "card_declined"
	case PaymentInvalidInstrument:
		return "invalid_instrument"
	case PaymentRateLimited:
		return "rate_limited"
	default:
		return "processor_error"
	}
}

// PaymentError is returned by every PaymentGateway operation. Message is safe
// to show to the caller; Err holds the processor detail and is only logged.
type PaymentError struct {
	Kind    PaymentErrorKind
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("payment %s: %s", e.Kind, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// PaymentErrorKindOf returns the kind of err, or PaymentProcessorError when err
// is not a PaymentError.
func PaymentErrorKindOf(err error) PaymentErrorKind {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return PaymentProcessorError
}
