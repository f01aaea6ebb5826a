package controller

import (
	"context"
	"net/http"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/service"
)

type Purchaser interface {
	Purchase(ctx context.Context, req giftcard.PurchaseRequest, badge auth.Badge) (*service.PurchaseResult, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, req giftcard.DeliveryRequest, badge auth.Badge) (*service.DeliveryResult, error)
}

// GiftCardController serves the purchase and deliver endpoints of one ledger
// version. Legacy controllers speak in card ids.
type GiftCardController struct {
	purchaser Purchaser
	deliverer Deliverer
	legacy    bool
}

// NewGiftCardController serves the value-based routes.
func NewGiftCardController(purchaser Purchaser, deliverer Deliverer) *GiftCardController {
	return &GiftCardController{purchaser: purchaser, deliverer: deliverer}
}

// NewLegacyGiftCardController serves the card-based routes.
func NewLegacyGiftCardController(purchaser Purchaser, deliverer Deliverer) *GiftCardController {
	return &GiftCardController{purchaser: purchaser, deliverer: deliverer, legacy: true}
}

// Purchase handles POST /api/{v1,v2}/turnkey/giftcard/purchase
func (h *GiftCardController) Purchase(w http.ResponseWriter, r *http.Request) {
	badge, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var req PurchaseRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.purchaser.Purchase(r.Context(), req.toDomain(clientIP(r)), badge)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.legacy {
		writeJSON(w, http.StatusOK, PurchaseCardResponse{CardID: res.LedgerUnitID})
		return
	}
	writeJSON(w, http.StatusOK, PurchaseResponse{LedgerUnitID: res.LedgerUnitID})
}

// Deliver handles POST /api/{v1,v2}/turnkey/giftcard/deliver
func (h *GiftCardController) Deliver(w http.ResponseWriter, r *http.Request) {
	badge, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var domainReq giftcard.DeliveryRequest
	if h.legacy {
		var req DeliverCardRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
		domainReq = req.toDomain()
	} else {
		var req DeliverRequest
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
		domainReq = req.toDomain()
	}

	res, err := h.deliverer.Deliver(r.Context(), domainReq, badge)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromDelivery(res, h.legacy))
}
