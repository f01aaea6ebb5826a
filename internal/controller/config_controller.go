package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/rs/zerolog/log"
)

type ConfigReader interface {
	Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error)
}

type ConfigWriter interface {
	Store(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error)
}

// ConfigController lets a merchant read and edit its turnkey config for the
// badge's mode.
type ConfigController struct {
	reader ConfigReader
	writer ConfigWriter
}

func NewConfigController(reader ConfigReader, writer ConfigWriter) *ConfigController {
	return &ConfigController{reader: reader, writer: writer}
}

// Get handles GET /api/turnkey/config
func (h *ConfigController) Get(w http.ResponseWriter, r *http.Request) {
	badge, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	cfg, err := h.reader.Get(r.Context(), badge.MerchantID, badge.TestMode)
	if err != nil {
		log.Error().Err(err).Str("merchant_id", badge.MerchantID).Msg("config read failed")
		writeError(w, domainErrors.NewDomainError("ConfigUnavailable",
			"merchant configuration could not be loaded", domainErrors.ErrConfigUnavailable))
		return
	}
	if cfg == nil {
		cfg = &giftcard.MerchantConfig{}
	}
	writeJSON(w, http.StatusOK, ConfigResponse{Config: cfg, Complete: cfg.Validate() == nil})
}

// Put handles PUT /api/turnkey/config. Partial configs are stored as sent.
func (h *ConfigController) Put(w http.ResponseWriter, r *http.Request) {
	badge, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, domainErrors.ErrUnauthorized)
		return
	}

	var cfg giftcard.MerchantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, domainErrors.NewValidationError("body", "request body must be a JSON object"))
		return
	}

	revision, err := h.writer.Store(r.Context(), badge.MerchantID, badge.TestMode, &cfg)
	if err != nil {
		log.Error().Err(err).Str("merchant_id", badge.MerchantID).Msg("config write failed")
		writeError(w, domainErrors.NewDomainError("ConfigUnavailable",
			"merchant configuration could not be saved", domainErrors.ErrConfigUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, StoreConfigResponse{Revision: revision})
}
