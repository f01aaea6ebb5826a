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

// DeliverySaga re-sends the redemption email of an issued gift card, possibly
// to a new recipient. It never refunds or cancels anything.
type DeliverySaga struct {
	configs       ConfigSource
	ledger        LedgerClient
	notifier      Notifier
	metrics       *observability.Metrics
	logger        zerolog.Logger
	checkUnitKind bool
}

type DeliveryOption func(*DeliverySaga)

// WithGiftCardKindCheck rejects units that are not gift cards and reports
// lookups in card terms. Legacy ledger routes share card ids with other card
// types.
func WithGiftCardKindCheck() DeliveryOption {
	return func(s *DeliverySaga) { s.checkUnitKind = true }
}

func NewDeliverySaga(
	configs ConfigSource,
	ledger LedgerClient,
	notifier Notifier,
	metrics *observability.Metrics,
	logger zerolog.Logger,
	opts ...DeliveryOption,
) *DeliverySaga {
	s := &DeliverySaga{
		configs:  configs,
		ledger:   ledger,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type deliveryRun struct {
	req    giftcard.DeliveryRequest
	cfg    *giftcard.MerchantConfig
	logger zerolog.Logger
	unit   *giftcard.LedgerUnit
	value  int64
}

func (s *DeliverySaga) Deliver(ctx context.Context, req giftcard.DeliveryRequest, badge auth.Badge) (*DeliveryResult, error) {
	start := time.Now()
	s.metrics.ActiveSagas.Inc()
	defer s.metrics.ActiveSagas.Dec()

	ctx = auth.NewContext(ctx, badge)
	result, err := s.deliver(ctx, req, badge)

	outcome := outcomeOf(err)
	s.metrics.DeliveriesTotal.WithLabelValues(badge.Mode(), outcome).Inc()
	s.metrics.SagaDuration.WithLabelValues("deliver", outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (s *DeliverySaga) deliver(ctx context.Context, req giftcard.DeliveryRequest, badge auth.Badge) (*DeliveryResult, error) {
	cfg, err := s.configs.Resolve(ctx, badge.MerchantID, badge.TestMode)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := &deliveryRun{
		req: req,
		cfg: cfg,
		logger: s.logger.With().
			Str("merchant_id", badge.MerchantID).
			Str("unit_id", req.LedgerUnitID).
			Logger(),
	}

	sg := saga.New("deliver").
		AddStep(saga.Step{
			Name:    "lookup",
			Execute: func(ctx context.Context) error { return s.lookup(ctx, run) },
		}).
		AddStep(saga.Step{
			Name:    "attach_contact",
			Execute: func(ctx context.Context) error { return s.attachContact(ctx, run) },
		}).
		AddStep(saga.Step{
			Name:    "fill_defaults",
			Execute: func(ctx context.Context) error { return s.fillDefaults(ctx, run) },
		}).
		AddStep(saga.Step{
			Name:    "notify",
			Execute: func(ctx context.Context) error { return s.notify(ctx, run) },
		})

	if _, err := sg.Execute(ctx); err != nil {
		var sagaErr *saga.Error
		if errors.As(err, &sagaErr) {
			return nil, sagaErr.Err
		}
		return nil, err
	}

	return &DeliveryResult{
		Success: true,
		Params: DeliveryParams{
			LedgerUnitID:   run.unit.ID,
			RecipientEmail: run.req.RecipientEmail,
			SenderName:     run.req.SenderName,
			Message:        run.req.Message,
		},
	}, nil
}

func (s *DeliverySaga) lookup(ctx context.Context, run *deliveryRun) error {
	unit, err := s.ledger.GetUnitByID(ctx, run.req.LedgerUnitID)
	if err != nil {
		run.logger.Error().Err(err).Msg("unit lookup failed")
		return classifyLedgerError(err)
	}
	if unit == nil && s.checkUnitKind {
		return domainErrors.NewDomainError(giftcard.CodeCardNotFound,
			"parameter cardId did not correspond to a card", domainErrors.ErrUnitNotFound)
	}
	if unit == nil {
		return domainErrors.NewDomainError(giftcard.CodeValueNotFound,
			"parameter valueId did not correspond to a value", domainErrors.ErrUnitNotFound)
	}
	if s.checkUnitKind && unit.Kind != giftcard.KindGiftCard {
		run.logger.Warn().Str("kind", unit.Kind).Msg("deliver called for a card that is not a gift card")
		return domainErrors.NewDomainError(giftcard.CodeInvalidCardID,
			"parameter cardId must be for a GIFT_CARD", domainErrors.ErrUnitWrongKind)
	}
	run.unit = unit
	return nil
}

func (s *DeliverySaga) attachContact(ctx context.Context, run *deliveryRun) error {
	contactID, err := s.ledger.ResolveOrCreateContact(ctx, run.req.RecipientEmail)
	if err != nil {
		run.logger.Error().Err(err).Msg("resolve recipient contact failed")
		return classifyLedgerError(err)
	}
	if err := s.ledger.AttachContact(ctx, run.unit.ID, contactID); err != nil {
		run.logger.Error().Err(err).Str("contact_id", contactID).Msg("attach contact failed")
		return classifyLedgerError(err)
	}
	return nil
}

// fillDefaults takes the message and sender name from the issuing
// transaction when the caller left them out.
func (s *DeliverySaga) fillDefaults(ctx context.Context, run *deliveryRun) error {
	tx, err := s.ledger.GetInitialTransaction(ctx, run.unit.ID)
	if err != nil {
		run.logger.Error().Err(err).Msg("initial transaction lookup failed")
		return classifyLedgerError(err)
	}
	if run.req.Message == "" {
		run.req.Message = tx.Metadata.Message
	}
	if run.req.SenderName == "" {
		run.req.SenderName = tx.Metadata.SenderName
	}
	run.value = tx.Value
	return nil
}

func (s *DeliverySaga) notify(ctx context.Context, run *deliveryRun) error {
	code, err := s.ledger.GetRedemptionCode(ctx, run.unit.ID)
	if err != nil {
		return s.deliveryFailed(run, "redemption code lookup failed", err)
	}

	messageID, err := s.notifier.Send(ctx, giftcard.Notification{
		RecipientEmail: run.req.RecipientEmail,
		SenderName:     run.req.SenderName,
		Message:        run.req.Message,
		Code:           code,
		InitialValue:   run.value,
		Config:         run.cfg,
	})
	if err != nil {
		return s.deliveryFailed(run, "gift card email failed", err)
	}

	run.logger.Info().
		Str("code", giftcard.MaskCode(code)).
		Str("message_id", messageID).
		Msg("gift card re-delivered")
	return nil
}

func (s *DeliverySaga) deliveryFailed(run *deliveryRun, msg string, err error) error {
	run.logger.Error().Err(err).Msg(msg)
	return domainErrors.NewDomainError(CodeDeliveryFailed, messageDeliveryFailed,
		fmt.Errorf("%w: %v", domainErrors.ErrDeliveryFailed, err))
}
