package service

// PurchaseResult is returned by a successful purchase.
type PurchaseResult struct {
	LedgerUnitID string `json:"ledgerUnitId"`
}

// DeliveryParams echo the values the email was sent with.
type DeliveryParams struct {
	LedgerUnitID   string `json:"ledgerUnitId"`
	RecipientEmail string `json:"recipientEmail"`
	SenderName     string `json:"senderName,omitempty"`
	Message        string `json:"message,omitempty"`
}

type DeliveryResult struct {
	Success bool           `json:"success"`
	Params  DeliveryParams `json:"params"`
}
