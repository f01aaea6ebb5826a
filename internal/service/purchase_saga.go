package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/cassiomorais/turnkey/pkg/saga"
	"github.com/rs/zerolog"
)

// Error codes reported by the sagas.
const (
	CodeChargeFailed          = "ChargeFailed"
	CodeStripeInvalidRequest  = "StripeInvalidRequestError"
	CodeDependentRateLimited  = "DependentServiceRateLimited"
	CodeProcessorError        = "ProcessorError"
	CodeLedgerRejected        = "LedgerRejected"
	CodeLedgerUnavailable     = "LedgerUnavailable"
	CodeDeliveryFailed        = "DeliveryFailed"
	messageChargeFailed       = "Failed to charge credit card."
	messageInvalidInstrument  = "The stripeCardToken was invalid."
	messageRateLimited        = "Service was rate limited by dependent service."
	messageProcessorError     = "An unexpected error occurred while attempting to charge card."
	messageLedgerUnavailable  = "An unexpected error occurred while creating the gift card."
	messageDeliveryFailed     = "An unexpected error occurred while delivering the gift card."
	messageGatewayUnavailable = "payment processor is not available for this environment"
)

// PurchaseSaga charges a card, issues a gift card for the charged amount and
// emails its code to the recipient, undoing the charge and the unit when a
// later step fails.
type PurchaseSaga struct {
	configs  ConfigSource
	gateways GatewayProvider
	ledger   LedgerClient
	scorer   FraudScorer
	notifier Notifier
	events   EventSink
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewPurchaseSaga(
	configs ConfigSource,
	gateways GatewayProvider,
	ledger LedgerClient,
	scorer FraudScorer,
	notifier Notifier,
	events EventSink,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *PurchaseSaga {
	return &PurchaseSaga{
		configs:  configs,
		gateways: gateways,
		ledger:   ledger,
		scorer:   scorer,
		notifier: notifier,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// purchaseRun is the state of one purchase. It is never shared between
// requests.
type purchaseRun struct {
	req          giftcard.PurchaseRequest
	badge        auth.Badge
	cfg          *giftcard.MerchantConfig
	gateway      PaymentGateway
	logger       zerolog.Logger
	charge       *giftcard.Charge
	unit         *giftcard.LedgerUnit
	refundReason string
}

// Purchase runs the purchase saga for one request.
func (s *PurchaseSaga) Purchase(ctx context.Context, req giftcard.PurchaseRequest, badge auth.Badge) (*PurchaseResult, error) {
	start := time.Now()
	s.metrics.ActiveSagas.Inc()
	defer s.metrics.ActiveSagas.Dec()

	ctx = auth.NewContext(ctx, badge)
	result, err := s.purchase(ctx, req, badge)

	outcome := outcomeOf(err)
	s.metrics.PurchasesTotal.WithLabelValues(badge.Mode(), outcome).Inc()
	s.metrics.SagaDuration.WithLabelValues("purchase", outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (s *PurchaseSaga) purchase(ctx context.Context, req giftcard.PurchaseRequest, badge auth.Badge) (*PurchaseResult, error) {
	cfg, err := s.configs.Resolve(ctx, badge.MerchantID, badge.TestMode)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(badge); err != nil {
		return nil, err
	}
	gateway, err := s.gateways.Gateway(badge.TestMode)
	if err != nil {
		return nil, domainErrors.NewDomainError(CodeConfigUnavailable, messageGatewayUnavailable,
			fmt.Errorf("%w: %v", domainErrors.ErrConfigUnavailable, err))
	}

	run := &purchaseRun{
		req:     req,
		badge:   badge,
		cfg:     cfg,
		gateway: gateway,
		logger: s.logger.With().
			Str("merchant_id", badge.MerchantID).
			Str("mode", badge.Mode()).
			Logger(),
	}

	// Compensations run refund first, then cancel.
	sg := saga.New("purchase").
		WithCompensationOrder(saga.StepOrder).
		AddStep(saga.Step{
			Name:       "charge",
			Execute:    func(ctx context.Context) error { return s.charge(ctx, run) },
			Compensate: func(ctx context.Context) error { return s.refund(ctx, run) },
		}).
		AddStep(saga.Step{
			Name:    "fraud_check",
			Execute: func(ctx context.Context) error { return s.fraudGate(ctx, run) },
		}).
		AddStep(saga.Step{
			Name:                "issue",
			Execute:             func(ctx context.Context) error { return s.issue(ctx, run) },
			Compensate:          func(ctx context.Context) error { return s.cancel(ctx, run) },
			CompensateOnFailure: true,
		}).
		AddStep(saga.Step{
			Name:    "finalize",
			Execute: func(ctx context.Context) error { return s.finalize(ctx, run) },
		})

	if _, err := sg.Execute(ctx); err != nil {
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) {
			if sagaErr.CompensationErr != nil {
				run.logger.Error().
					Err(sagaErr.CompensationErr).
					Str("step", sagaErr.Step).
					Str("charge_id", run.chargeID()).
					Str("unit_id", run.unitID()).
					Msg("compensation incomplete, manual reconciliation required")
			}
			return nil, sagaErr.Err
		}
		return nil, err
	}

	run.logger.Info().
		Str("charge_id", run.charge.ID).
		Str("unit_id", run.unit.ID).
		Msg("gift card purchased")
	return &PurchaseResult{LedgerUnitID: run.unit.ID}, nil
}

func (s *PurchaseSaga) charge(ctx context.Context, run *purchaseRun) error {
	req := giftcard.ChargeRequest{
		Amount:       run.req.InitialValue,
		Currency:     run.cfg.Currency,
		Account:      run.cfg.PaymentAccountID,
		ReceiptEmail: run.req.SenderEmail,
		Description:  giftcard.ChargeDescription,
		Metadata:     chargeMetadata(run.req, ""),
	}
	if run.req.UsesSavedInstrument() {
		req.SavedCardID = run.req.SavedInstrumentID
		req.CustomerID = run.badge.ProcessorCustomerID
	} else {
		req.Token = run.req.PaymentToken
	}

	charge, err := run.gateway.CreateCharge(ctx, req)
	if err != nil {
		run.logger.Warn().Err(err).Str("kind", giftcard.PaymentErrorKindOf(err).String()).Msg("charge failed")
		return classifyPaymentError(err)
	}
	run.charge = charge
	run.logger.Info().Str("charge_id", charge.ID).Int64("amount", charge.Amount).Msg("charge created")
	return nil
}

func (s *PurchaseSaga) fraudGate(ctx context.Context, run *purchaseRun) error {
	params := giftcard.NewFraudCheckParams(run.req, run.charge, run.badge.MerchantID)

	var assessment *giftcard.FraudAssessment
	if !run.badge.TestMode {
		a, err := s.scorer.Score(ctx, params)
		if err != nil {
			run.logger.Warn().Err(err).Str("charge_id", run.charge.ID).Msg("fraud scoring failed, allowing charge")
		} else {
			assessment = a
		}
	}

	passed := giftcard.Verdict(run.charge, assessment)
	verdict := "pass"
	if !passed {
		verdict = "fail"
	}
	s.metrics.FraudVerdicts.WithLabelValues(verdict).Inc()

	event := giftcard.FraudCheckEvent{
		PurchaseParams:        giftcard.NewPurchaseEventParams(run.req),
		FraudAssessmentParams: params,
		FraudAssessment:       assessment,
		PassedFraudCheck:      passed,
	}
	if err := s.events.Publish(ctx, giftcard.FraudCheckEventType, run.charge.ID, event); err != nil {
		s.metrics.EventPublishFails.WithLabelValues(giftcard.FraudCheckEventType).Inc()
		run.logger.Warn().Err(err).Str("charge_id", run.charge.ID).Msg("fraud check event not published")
	}

	if !passed {
		run.refundReason = giftcard.RefundReasonFraud
		run.logger.Warn().Str("charge_id", run.charge.ID).Bool("review", run.charge.Review).Msg("charge failed fraud check")
		return domainErrors.NewDomainError(CodeChargeFailed, messageChargeFailed, domainErrors.ErrFraudRejected)
	}
	return nil
}

func (s *PurchaseSaga) issue(ctx context.Context, run *purchaseRun) error {
	run.refundReason = giftcard.RefundReasonIssuance

	contactID, err := s.ledger.ResolveOrCreateContact(ctx, run.req.RecipientEmail)
	if err != nil {
		run.logger.Error().Err(err).Str("charge_id", run.charge.ID).Msg("resolve recipient contact failed")
		return classifyLedgerError(err)
	}

	unit, err := s.ledger.Issue(ctx, giftcard.IssueRequest{
		UserSuppliedID: run.charge.ID,
		ProgramID:      run.cfg.ProgramID,
		Amount:         run.req.InitialValue,
		Currency:       run.cfg.Currency,
		ContactID:      contactID,
		Metadata:       giftcard.NewUnitMetadata(run.req, run.charge.ID),
	})
	if err != nil {
		var le *giftcard.LedgerError
		if errors.As(err, &le) && le.Unit != nil {
			run.unit = le.Unit
		}
		run.logger.Error().Err(err).Str("charge_id", run.charge.ID).Str("unit_id", run.unitID()).Msg("gift card issuance failed")
		return classifyLedgerError(err)
	}
	run.unit = unit
	run.logger.Info().Str("charge_id", run.charge.ID).Str("unit_id", unit.ID).Msg("gift card issued")
	return nil
}

func (s *PurchaseSaga) finalize(ctx context.Context, run *purchaseRun) error {
	run.refundReason = giftcard.RefundReasonDelivery(run.unit.ID)

	err := run.gateway.UpdateCharge(ctx, giftcard.ChargeUpdate{
		ChargeID:    run.charge.ID,
		Account:     run.cfg.PaymentAccountID,
		Description: giftcard.FinalizedChargeDescription(run.cfg.CompanyName, run.unit.ID),
		Metadata:    chargeMetadata(run.req, run.unit.ID),
	})
	if err != nil {
		return s.deliveryFailed(run, "charge update failed", err)
	}

	code, err := s.ledger.GetRedemptionCode(ctx, run.unit.ID)
	if err != nil {
		return s.deliveryFailed(run, "redemption code lookup failed", err)
	}

	messageID, err := s.notifier.Send(ctx, giftcard.Notification{
		RecipientEmail: run.req.RecipientEmail,
		SenderName:     run.req.SenderName,
		Message:        run.req.Message,
		Code:           code,
		InitialValue:   run.req.InitialValue,
		Config:         run.cfg,
	})
	if err != nil {
		return s.deliveryFailed(run, "gift card email failed", err)
	}

	run.logger.Info().
		Str("unit_id", run.unit.ID).
		Str("code", giftcard.MaskCode(code)).
		Str("message_id", messageID).
		Msg("gift card delivered")
	return nil
}

func (s *PurchaseSaga) deliveryFailed(run *purchaseRun, msg string, err error) error {
	run.logger.Error().Err(err).Str("charge_id", run.charge.ID).Str("unit_id", run.unit.ID).Msg(msg)
	return domainErrors.NewDomainError(CodeDeliveryFailed, messageDeliveryFailed,
		fmt.Errorf("%w: %v", domainErrors.ErrDeliveryFailed, err))
}

func (s *PurchaseSaga) refund(ctx context.Context, run *purchaseRun) error {
	refund, err := run.gateway.CreateRefund(ctx, giftcard.RefundRequest{
		ChargeID: run.charge.ID,
		Account:  run.cfg.PaymentAccountID,
		Reason:   run.refundReason,
	})
	if err != nil {
		s.metrics.Compensations.WithLabelValues("refund", "error").Inc()
		run.logger.Error().Err(err).Str("charge_id", run.charge.ID).Msg("refund failed")
		return fmt.Errorf("refund charge %s: %w", run.charge.ID, err)
	}
	s.metrics.Compensations.WithLabelValues("refund", "ok").Inc()
	run.logger.Info().Str("charge_id", run.charge.ID).Str("refund_id", refund.ID).Str("reason", run.refundReason).Msg("charge refunded")
	return nil
}

func (s *PurchaseSaga) cancel(ctx context.Context, run *purchaseRun) error {
	if run.unit == nil {
		return nil
	}
	if err := s.ledger.Cancel(ctx, run.unit.ID); err != nil {
		s.metrics.Compensations.WithLabelValues("cancel", "error").Inc()
		run.logger.Error().Err(err).Str("unit_id", run.unit.ID).Msg("gift card cancel failed")
		return fmt.Errorf("cancel unit %s: %w", run.unit.ID, err)
	}
	s.metrics.Compensations.WithLabelValues("cancel", "ok").Inc()
	run.logger.Info().Str("unit_id", run.unit.ID).Msg("gift card canceled")
	return nil
}

func (r *purchaseRun) chargeID() string {
	if r.charge == nil {
		return ""
	}
	return r.charge.ID
}

func (r *purchaseRun) unitID() string {
	if r.unit == nil {
		return ""
	}
	return r.unit.ID
}

func chargeMetadata(req giftcard.PurchaseRequest, unitID string) giftcard.ChargeMetadata {
	return giftcard.ChargeMetadata{
		SenderName:     req.SenderName,
		SenderEmail:    req.SenderEmail,
		RecipientEmail: req.RecipientEmail,
		Message:        req.Message,
		LedgerUnitID:   unitID,
	}
}

func classifyPaymentError(err error) error {
	switch giftcard.PaymentErrorKindOf(err) {
	case giftcard.PaymentCardDeclined:
		return domainErrors.NewDomainError(CodeChargeFailed, messageChargeFailed,
			fmt.Errorf("%w: %v", domainErrors.ErrCardDeclined, err))
	case giftcard.PaymentInvalidInstrument:
		return domainErrors.NewDomainError(CodeStripeInvalidRequest, messageInvalidInstrument,
			fmt.Errorf("%w: %v", domainErrors.ErrInvalidInstrument, err))
	case giftcard.PaymentRateLimited:
		return domainErrors.NewDomainError(CodeDependentRateLimited, messageRateLimited,
			fmt.Errorf("%w: %v", domainErrors.ErrRateLimited, err))
	default:
		return domainErrors.NewDomainError(CodeProcessorError, messageProcessorError,
			fmt.Errorf("%w: %v", domainErrors.ErrProcessor, err))
	}
}

// classifyLedgerError surfaces the ledger's own message for input
// rejections and hides everything else behind a generic server error.
func classifyLedgerError(err error) error {
	var le *giftcard.LedgerError
	if errors.As(err, &le) && le.IsClientError() {
		return domainErrors.NewDomainError(CodeLedgerRejected, le.Message,
			fmt.Errorf("%w: %v", domainErrors.ErrLedgerRejected, err))
	}
	return domainErrors.NewDomainError(CodeLedgerUnavailable, messageLedgerUnavailable,
		fmt.Errorf("%w: %v", domainErrors.ErrLedgerUnavailable, err))
}

// outcomeOf labels a saga result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	var ve *domainErrors.ValidationError
	if errors.As(err, &ve) {
		return "invalid_request"
	}
	var de *domainErrors.DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	return "error"
}
