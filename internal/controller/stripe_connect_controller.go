package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/service"
)

type StripeConnector interface {
	Start(ctx context.Context, badge auth.Badge) (*service.ConnectStatus, error)
	Status(ctx context.Context, badge auth.Badge) (*service.ConnectStatus, error)
	Disconnect(ctx context.Context, badge auth.Badge) (*service.ConnectStatus, error)
	Complete(ctx context.Context, cb service.ConnectCallback) (string, error)
}

// StripeConnectController links a merchant's Stripe account to the platform.
type StripeConnectController struct {
	connector StripeConnector
}

func NewStripeConnectController(connector StripeConnector) *StripeConnectController {
	return &StripeConnectController{connector: connector}
}

// Start handles POST /api/v1/turnkey/stripe
func (h *StripeConnectController) Start(w http.ResponseWriter, r *http.Request) {
	h.withBadge(w, r, h.connector.Start)
}

// Status handles GET /api/v1/turnkey/stripe
func (h *StripeConnectController) Status(w http.ResponseWriter, r *http.Request) {
	h.withBadge(w, r, h.connector.Status)
}

// Disconnect handles DELETE /api/v1/turnkey/stripe
func (h *StripeConnectController) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.withBadge(w, r, h.connector.Disconnect)
}

func (h *StripeConnectController) withBadge(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, auth.Badge) (*service.ConnectStatus, error)) {
	badge, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	status, err := fn(r.Context(), badge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StripeConnectResponse{Connected: status.Connected, Location: status.Location})
}

// Callback handles GET /api/v1/turnkey/stripe/callback, the processor's OAuth
// redirect. It carries no badge; the state parameter identifies the merchant.
func (h *StripeConnectController) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, err := h.connector.Complete(r.Context(), service.ConnectCallback{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		Scope:            q.Get("scope"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}
