package minfraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/breaker"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const scorePath = "/minfraud/v2.0/score"

// minimumRisk is reported when scoring is switched off.
const minimumRisk = 0.1

// Scorer calls the minFraud score endpoint.
type Scorer struct {
	enabled    bool
	endpoint   string
	userID     string
	licenseKey string
	client     *http.Client
	cb         *gobreaker.CircuitBreaker[*giftcard.FraudAssessment]
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewScorer(cfg config.FraudConfig, breakerCfg config.BreakerConfig, metrics *observability.Metrics, logger zerolog.Logger) *Scorer {
	return &Scorer{
		enabled:    cfg.Enabled,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		userID:     cfg.UserID,
		licenseKey: cfg.LicenseKey,
		client:     &http.Client{Timeout: cfg.Timeout},
		cb:         breaker.New[*giftcard.FraudAssessment]("minfraud", breakerCfg, metrics, nil),
		metrics:    metrics,
		logger:     logger.With().Str("component", "minfraud").Logger(),
	}
}

type scoreResponse struct {
	RiskScore float64 `json:"risk_score"`
	IPAddress struct {
		Risk float64 `json:"risk"`
	} `json:"ip_address"`
}

func (s *Scorer) Score(ctx context.Context, params giftcard.FraudCheckParams) (*giftcard.FraudAssessment, error) {
	if !s.enabled {
		s.logger.Debug().Str("charge_id", params.Event.TransactionID).Msg("fraud scoring disabled, returning minimum risk")
		return &giftcard.FraudAssessment{RiskScore: minimumRisk, IPRiskScore: minimumRisk}, nil
	}

	out, err := s.cb.Execute(func() (*giftcard.FraudAssessment, error) {
		return s.score(ctx, params)
	})
	if s.metrics != nil {
		s.metrics.CircuitBreakerRequests.WithLabelValues("minfraud", breaker.Result(err)).Inc()
	}
	return out, err
}

func (s *Scorer) score(ctx context.Context, params giftcard.FraudCheckParams) (*giftcard.FraudAssessment, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+scorePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.SetBasicAuth(s.userID, s.licenseKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("score request: status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sr scoreResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}

	s.logger.Info().
		Str("charge_id", params.Event.TransactionID).
		Float64("risk_score", sr.RiskScore).
		Float64("ip_risk", sr.IPAddress.Risk).
		Msg("fraud score received")
	return &giftcard.FraudAssessment{RiskScore: sr.RiskScore, IPRiskScore: sr.IPAddress.Risk}, nil
}
