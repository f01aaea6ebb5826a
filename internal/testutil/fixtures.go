package testutil

import (
	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
)

func NewTestMerchantConfig() *giftcard.MerchantConfig {
	return &giftcard.MerchantConfig{
		CompanyName:        "Acme Coffee",
		Currency:           "USD",
		Logo:               "https://acme.example.com/logo.png",
		ProgramID:          "program-1",
		ClaimLink:          "https://acme.example.com/claim?code={{fullcode}}",
		LinkToPrivacy:      "https://acme.example.com/privacy",
		LinkToTerms:        "https://acme.example.com/terms",
		TermsAndConditions: "No cash value.",
		ReplyToAddress:     "support@acme.example.com",
		PaymentAccountID:   "acct_merchant_1",
	}
}

func NewTestBadge(testMode bool) auth.Badge {
	return auth.Badge{
		MerchantID:          "user-merchant-1",
		TestMode:            testMode,
		ProcessorCustomerID: "cus_1",
		Scopes:              []string{"lightrailV2:purchaseGiftcard", "lightrailV2:value:deliver"},
	}
}

func NewTestPurchaseRequest() giftcard.PurchaseRequest {
	return giftcard.PurchaseRequest{
		InitialValue:   5000,
		RecipientEmail: "recipient@example.com",
		SenderEmail:    "sender@example.com",
		SenderName:     "Jane Q Sender",
		Message:        "Happy birthday",
		PaymentToken:   "tok_visa",
		ClientIP:       "203.0.113.7",
	}
}

func NewTestCharge(id string, amount int64) *giftcard.Charge {
	return &giftcard.Charge{
		ID:       id,
		Amount:   amount,
		Currency: "usd",
		Captured: true,
		Instrument: giftcard.InstrumentDetails{
			Last4:       "4242",
			Fingerprint: "fp_abcdefghijklmnop",
			PostalCode:  "94105",
			CVCCheck:    "pass",
		},
	}
}
