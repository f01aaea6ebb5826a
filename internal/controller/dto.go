package controller

import (
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/service"
)

// --- Request DTOs ---
// Field-level rules beyond length limits live in the domain request types so
// the caller sees the same codes whatever the transport.

type PurchaseRequest struct {
	InitialValue    int64  `json:"initialValue"`
	RecipientEmail  string `json:"recipientEmail" validate:"max=254"`
	SenderEmail     string `json:"senderEmail" validate:"max=254"`
	SenderName      string `json:"senderName" validate:"max=255"`
	Message         string `json:"message" validate:"max=1000"`
	StripeCardToken string `json:"stripeCardToken" validate:"max=255"`
	StripeCardID    string `json:"stripeCardId" validate:"max=255"`
}

func (r PurchaseRequest) toDomain(ip string) giftcard.PurchaseRequest {
	return giftcard.PurchaseRequest{
		InitialValue:      r.InitialValue,
		RecipientEmail:    r.RecipientEmail,
		SenderEmail:       r.SenderEmail,
		SenderName:        r.SenderName,
		Message:           r.Message,
		PaymentToken:      r.StripeCardToken,
		SavedInstrumentID: r.StripeCardID,
		ClientIP:          ip,
	}
}

// DeliverRequest accepts valueId as an alias of ledgerUnitId.
type DeliverRequest struct {
	LedgerUnitID   string `json:"ledgerUnitId" validate:"max=255"`
	ValueID        string `json:"valueId" validate:"max=255"`
	RecipientEmail string `json:"recipientEmail" validate:"max=254"`
	SenderName     string `json:"senderName" validate:"max=255"`
	Message        string `json:"message" validate:"max=1000"`
}

func (r DeliverRequest) toDomain() giftcard.DeliveryRequest {
	id := r.LedgerUnitID
	if id == "" {
		id = r.ValueID
	}
	return giftcard.DeliveryRequest{
		LedgerUnitID:   id,
		RecipientEmail: r.RecipientEmail,
		SenderName:     r.SenderName,
		Message:        r.Message,
	}
}

type DeliverCardRequest struct {
	CardID         string `json:"cardId" validate:"max=255"`
	RecipientEmail string `json:"recipientEmail" validate:"max=254"`
	SenderName     string `json:"senderName" validate:"max=255"`
	Message        string `json:"message" validate:"max=1000"`
}

func (r DeliverCardRequest) toDomain() giftcard.DeliveryRequest {
	return giftcard.DeliveryRequest{
		LedgerUnitID:   r.CardID,
		RecipientEmail: r.RecipientEmail,
		SenderName:     r.SenderName,
		Message:        r.Message,
	}
}

// --- Response DTOs ---

type PurchaseResponse struct {
	LedgerUnitID string `json:"ledgerUnitId"`
}

type PurchaseCardResponse struct {
	CardID string `json:"cardId"`
}

type DeliverResponse struct {
	Success bool          `json:"success"`
	Params  DeliverParams `json:"params"`
}

type DeliverParams struct {
	LedgerUnitID   string `json:"ledgerUnitId,omitempty"`
	CardID         string `json:"cardId,omitempty"`
	RecipientEmail string `json:"recipientEmail"`
	SenderName     string `json:"senderName,omitempty"`
	Message        string `json:"message,omitempty"`
}

func fromDelivery(res *service.DeliveryResult, legacy bool) DeliverResponse {
	params := DeliverParams{
		RecipientEmail: res.Params.RecipientEmail,
		SenderName:     res.Params.SenderName,
		Message:        res.Params.Message,
	}
	if legacy {
		params.CardID = res.Params.LedgerUnitID
	} else {
		params.LedgerUnitID = res.Params.LedgerUnitID
	}
	return DeliverResponse{Success: res.Success, Params: params}
}

type ConfigResponse struct {
	Config   *giftcard.MerchantConfig `json:"config"`
	Complete bool                     `json:"complete"`
}

type StoreConfigResponse struct {
	Revision int `json:"revision"`
}

type StripeConnectResponse struct {
	Connected bool   `json:"connected"`
	Location  string `json:"location,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
