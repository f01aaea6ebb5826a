package giftcard

import (
	"fmt"
	"net/http"
)

// KindGiftCard is the legacy card type expected by gift card delivery.
const KindGiftCard = "GIFT_CARD"

// Generated redemption codes.
const (
	CodeLength  = 16
	CodeCharset = "ABCEDFGHJKLMNPQRSTUVWXYZ3456789"
)

// UnitMetadata links a ledger unit back to its purchase.
type UnitMetadata struct {
	SenderName     string `json:"sender_name,omitempty"`
	SenderEmail    string `json:"sender_email,omitempty"`
	RecipientEmail string `json:"recipient_email,omitempty"`
	Message        string `json:"message,omitempty"`
	ChargeID       string `json:"charge_id,omitempty"`
	Note           string `json:"giftbit_note,omitempty"`
}

// NewUnitMetadata builds issuance metadata for a charged purchase.
func NewUnitMetadata(req PurchaseRequest, chargeID string) UnitMetadata {
	return UnitMetadata{
		SenderName:     req.SenderName,
		SenderEmail:    req.SenderEmail,
		RecipientEmail: req.RecipientEmail,
		Message:        truncate(req.Message, maxMetadataMessageLength),
		ChargeID:       chargeID,
		Note:           fmt.Sprintf("charge_id: %s, sender: %s, recipient: %s", chargeID, req.SenderEmail, req.RecipientEmail),
	}
}

// LedgerUnit is an issued stored value card or value.
type LedgerUnit struct {
	ID        string
	ProgramID string
	Balance   int64
	Currency  string
	Kind      string
	ContactID string
	Metadata  UnitMetadata
}

// IssueRequest creates a unit. UserSuppliedID is the charge id, so a retried
// issue for the same charge targets the same unit.
type IssueRequest struct {
	UserSuppliedID string
	ProgramID      string
	Amount         int64
	Currency       string
	ContactID      string
	Metadata       UnitMetadata
}

// InitialTransaction is the issuing transaction of a unit.
type InitialTransaction struct {
	Value    int64
	Metadata UnitMetadata
}

// LedgerError is returned by LedgerClient operations that reached the ledger.
// Unit is set when the ledger created a unit before failing.
type LedgerError struct {
	Status  int
	Message string
	Unit    *LedgerUnit
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger status %d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("ledger status %d: %s", e.Status, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether the ledger rejected the request input.
func (e *LedgerError) IsClientError() bool {
	switch e.Status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// MaskCode keeps only the last four characters of a redemption code.
func MaskCode(code string) string {
	r := []rune(code)
	if len(r) <= 4 {
		return "…" + code
	}
	return "…" + string(r[len(r)-4:])
}
