package giftcard

import (
	"strings"
)

// FraudRiskThreshold is the highest score, on either dimension, that passes.
const FraudRiskThreshold = 70

// FraudCheckEventType is the side-channel event emitted after every fraud gate.
const FraudCheckEventType = "event.dropingiftcard.purchase.fraudcheck"

// FraudAssessment is a risk score pair in [0.1, 99].
type FraudAssessment struct {
	RiskScore   float64 `json:"riskScore"`
	IPRiskScore float64 `json:"ipRiskScore"`
}

// Passes reports whether both scores are within the threshold.
func (a *FraudAssessment) Passes() bool {
	if a == nil {
		return true
	}
	return a.RiskScore <= FraudRiskThreshold && a.IPRiskScore <= FraudRiskThreshold
}

// Verdict combines the processor's manual review flag with the assessment.
// A nil assessment (skipped or unavailable scorer) passes.
func Verdict(charge *Charge, assessment *FraudAssessment) bool {
	return !charge.Review && assessment.Passes()
}

// FraudCheckParams is the scoring request for one charge.
type FraudCheckParams struct {
	Device     FraudDevice     `json:"device"`
	Event      FraudEvent      `json:"event"`
	Account    FraudAccount    `json:"account"`
	Email      FraudEmail      `json:"email"`
	Billing    FraudBilling    `json:"billing"`
	Payment    FraudPayment    `json:"payment"`
	CreditCard FraudCreditCard `json:"credit_card"`
	Order      FraudOrder      `json:"order"`
}

type FraudDevice struct {
	IPAddress string `json:"ip_address"`
}

type FraudEvent struct {
	Type          string `json:"type"`
	TransactionID string `json:"transaction_id"`
}

type FraudAccount struct {
	UserID string `json:"user_id"`
}

type FraudEmail struct {
	Address string `json:"address"`
	Domain  string `json:"domain"`
}

type FraudBilling struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Postal    string `json:"postal"`
}

type FraudPayment struct {
	Processor     string `json:"processor"`
	WasAuthorized bool   `json:"was_authorized"`
}

type FraudCreditCard struct {
	Last4Digits string `json:"last_4_digits"`
	Token       string `json:"token"`
	CVVResult   string `json:"cvv_result,omitempty"`
}

type FraudOrder struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// NewFraudCheckParams builds scoring input from the charge and purchase.
func NewFraudCheckParams(req PurchaseRequest, charge *Charge, merchantID string) FraudCheckParams {
	first, last := splitName(req.SenderName)

	p := FraudCheckParams{
		Device:  FraudDevice{IPAddress: req.ClientIP},
		Event:   FraudEvent{Type: "purchase", TransactionID: charge.ID},
		Account: FraudAccount{UserID: merchantID},
		Email: FraudEmail{
			Address: req.RecipientEmail,
			Domain:  emailDomain(req.RecipientEmail),
		},
		Billing: FraudBilling{
			FirstName: first,
			LastName:  last,
			Postal:    charge.Instrument.PostalCode,
		},
		Payment: FraudPayment{Processor: "stripe", WasAuthorized: charge.Captured},
		CreditCard: FraudCreditCard{
			Last4Digits: charge.Instrument.Last4,
			// Scorer tokens must be at least 19 characters.
			Token: "token-" + charge.Instrument.Fingerprint,
		},
		Order: FraudOrder{
			Amount:   float64(charge.Amount) / 100,
			Currency: strings.ToUpper(charge.Currency),
		},
	}

	switch charge.Instrument.CVCCheck {
	case "pass":
		p.CreditCard.CVVResult = "Y"
	case "fail":
		p.CreditCard.CVVResult = "N"
	}
	return p
}

// splitName treats the last word as the last name and everything before it
// as the first name.
func splitName(name string) (string, string) {
	if name == "" {
		return "", ""
	}
	words := strings.Split(name, " ")
	return strings.Join(words[:len(words)-1], " "), words[len(words)-1]
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return email
}

// FraudCheckEvent is published after the fraud gate, keyed by charge id.
type FraudCheckEvent struct {
	PurchaseParams        PurchaseEventParams `json:"giftcardPurchaseParams"`
	FraudAssessmentParams FraudCheckParams    `json:"minfraudScoreParams"`
	FraudAssessment       *FraudAssessment    `json:"minfraudScore,omitempty"`
	PassedFraudCheck      bool                `json:"passedFraudCheck"`
}

// PurchaseEventParams is the event view of a purchase; payment instrument
// references are left out.
type PurchaseEventParams struct {
	InitialValue   int64  `json:"initialValue"`
	RecipientEmail string `json:"recipientEmail"`
	SenderEmail    string `json:"senderEmail"`
	SenderName     string `json:"senderName,omitempty"`
	Message        string `json:"message,omitempty"`
	SavedCard      bool   `json:"savedCard"`
}

func NewPurchaseEventParams(req PurchaseRequest) PurchaseEventParams {
	return PurchaseEventParams{
		InitialValue:   req.InitialValue,
		RecipientEmail: req.RecipientEmail,
		SenderEmail:    req.SenderEmail,
		SenderName:     req.SenderName,
		Message:        req.Message,
		SavedCard:      req.UsesSavedInstrument(),
	}
}
