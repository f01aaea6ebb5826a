package giftcard

// Notification is everything needed to render and send a redemption email.
type Notification struct {
	RecipientEmail string
	SenderName     string
	Message        string
	Code           string
	InitialValue   int64
	Config         *MerchantConfig
}
