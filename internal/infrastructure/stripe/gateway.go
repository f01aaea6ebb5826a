package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/breaker"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

const defaultRefundReason = "not specified"

// Gateway charges cards on merchant sub-accounts with one platform secret key.
type Gateway struct {
	name    string
	api     *client.API
	cb      *gobreaker.CircuitBreaker[any]
	metrics *observability.Metrics
}

// NewGateway builds a gateway for one secret key. backends may be nil to
// talk to the real processor.
func NewGateway(name, secretKey string, backends *stripego.Backends, cfg config.BreakerConfig, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		name:    name,
		api:     client.New(secretKey, backends),
		cb:      breaker.New[any](name, cfg, metrics, countsAsSuccess),
		metrics: metrics,
	}
}

func (g *Gateway) CreateCharge(ctx context.Context, req giftcard.ChargeRequest) (*giftcard.Charge, error) {
	params := &stripego.ChargeParams{
		Amount:      stripego.Int64(req.Amount),
		Currency:    stripego.String(strings.ToLower(req.Currency)),
		Description: stripego.String(req.Description),
	}
	params.Context = ctx
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripego.String(req.ReceiptEmail)
	}
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	for k, v := range req.Metadata.Map() {
		params.AddMetadata(k, v)
	}

	source := req.Token
	if req.SavedCardID != "" {
		source = req.SavedCardID
		params.Customer = stripego.String(req.CustomerID)
	}
	if err := params.SetSource(source); err != nil {
		return nil, &giftcard.PaymentError{Kind: giftcard.PaymentInvalidInstrument, Message: "payment source was not usable", Err: err}
	}

	res, err := g.execute(func() (any, error) { return g.api.Charges.New(params) })
	if err != nil {
		return nil, classify(err)
	}
	return toCharge(res.(*stripego.Charge)), nil
}

func (g *Gateway) UpdateCharge(ctx context.Context, update giftcard.ChargeUpdate) error {
	params := &stripego.ChargeParams{
		Description: stripego.String(update.Description),
	}
	params.Context = ctx
	if update.Account != "" {
		params.SetStripeAccount(update.Account)
	}
	for k, v := range update.Metadata.Map() {
		params.AddMetadata(k, v)
	}

	_, err := g.execute(func() (any, error) { return g.api.Charges.Update(update.ChargeID, params) })
	if err != nil {
		return classify(err)
	}
	return nil
}

// CreateRefund refunds the whole charge and then records the reason as the
// charge description so it shows in the merchant dashboard.
func (g *Gateway) CreateRefund(ctx context.Context, req giftcard.RefundRequest) (*giftcard.Refund, error) {
	reason := req.Reason
	if reason == "" {
		reason = defaultRefundReason
	}

	params := &stripego.RefundParams{
		Charge: stripego.String(req.ChargeID),
	}
	params.Context = ctx
	if req.Account != "" {
		params.SetStripeAccount(req.Account)
	}
	params.AddMetadata("reason", reason)

	res, err := g.execute(func() (any, error) { return g.api.Refunds.New(params) })
	if err != nil {
		return nil, classify(err)
	}
	refund := res.(*stripego.Refund)

	if err := g.UpdateCharge(ctx, giftcard.ChargeUpdate{
		ChargeID:    req.ChargeID,
		Account:     req.Account,
		Description: reason,
	}); err != nil {
		return nil, err
	}

	out := &giftcard.Refund{ID: refund.ID, ChargeID: req.ChargeID, Amount: refund.Amount}
	return out, nil
}

func (g *Gateway) execute(fn func() (any, error)) (any, error) {
	res, err := g.cb.Execute(fn)
	if g.metrics != nil {
		g.metrics.CircuitBreakerRequests.WithLabelValues(g.name, breaker.Result(err)).Inc()
	}
	return res, err
}

// countsAsSuccess keeps card declines and bad tokens from tripping the
// breaker; they say nothing about processor health.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *stripego.Error
	if errors.As(err, &se) {
		return se.Type == stripego.ErrorTypeCard || se.Type == stripego.ErrorTypeInvalidRequest
	}
	return false
}

func classify(err error) *giftcard.PaymentError {
	var se *stripego.Error
	if errors.As(err, &se) {
		switch {
		case se.HTTPStatusCode == http.StatusTooManyRequests:
			return &giftcard.PaymentError{Kind: giftcard.PaymentRateLimited, Message: se.Msg, Err: err}
		case se.Type == stripego.ErrorTypeCard:
			return &giftcard.PaymentError{Kind: giftcard.PaymentCardDeclined, Message: se.Msg, Err: err}
		case se.Type == stripego.ErrorTypeInvalidRequest:
			return &giftcard.PaymentError{Kind: giftcard.PaymentInvalidInstrument, Message: se.Msg, Err: err}
		}
	}
	return &giftcard.PaymentError{Kind: giftcard.PaymentProcessorError, Message: "payment processor error", Err: err}
}

func toCharge(ch *stripego.Charge) *giftcard.Charge {
	c := &giftcard.Charge{
		ID:       ch.ID,
		Amount:   ch.Amount,
		Currency: string(ch.Currency),
		Review:   ch.Review != nil,
		Captured: ch.Captured,
	}
	if pm := ch.PaymentMethodDetails; pm != nil && pm.Card != nil {
		c.Instrument.Last4 = pm.Card.Last4
		c.Instrument.Fingerprint = pm.Card.Fingerprint
		if pm.Card.Checks != nil {
			c.Instrument.CVCCheck = string(pm.Card.Checks.CVCCheck)
		}
	}
	if bd := ch.BillingDetails; bd != nil && bd.Address != nil {
		c.Instrument.PostalCode = bd.Address.PostalCode
	}
	return c
}
