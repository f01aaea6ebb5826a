package email

import (
	"context"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/rs/zerolog"
)

// Deliverer sends a rendered message and returns the provider message id.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) (string, error)
}

// Notifier renders and sends redemption emails.
type Notifier struct {
	renderer  *Renderer
	deliverer Deliverer
	logger    zerolog.Logger
}

func NewNotifier(renderer *Renderer, deliverer Deliverer, logger zerolog.Logger) *Notifier {
	return &Notifier{
		renderer:  renderer,
		deliverer: deliverer,
		logger:    logger.With().Str("component", "notifier").Logger(),
	}
}

func (n *Notifier) Send(ctx context.Context, notification giftcard.Notification) (string, error) {
	msg, err := n.renderer.Render(notification)
	if err != nil {
		return "", err
	}

	messageID, err := n.deliverer.Deliver(ctx, msg)
	if err != nil {
		return "", err
	}

	n.logger.Info().
		Str("message_id", messageID).
		Str("code", giftcard.MaskCode(notification.Code)).
		Msg("redemption email sent")
	return messageID, nil
}
