package lightrail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/breaker"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/cassiomorais/turnkey/pkg/retry"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
)

// ErrNoBadge is returned when a call is made outside an authenticated request.
var ErrNoBadge = errors.New("lightrail: no badge in context")

type response struct {
	status int
	body   []byte
}

// transport sends JSON requests to the ledger on behalf of the merchant in
// the request context. Reads are retried, writes are sent once.
type transport struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[*response]
	retry   retry.Config
	metrics *observability.Metrics
}

func newTransport(name string, cfg config.LedgerConfig, breakerCfg config.BreakerConfig, metrics *observability.Metrics) *transport {
	rc := retry.DefaultConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	rc.RetryIf = retryable

	return &transport{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.APIToken,
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      breaker.New[*response](name, breakerCfg, metrics, countsAsSuccess),
		retry:   rc,
		metrics: metrics,
	}
}

// get performs an idempotent read. A 404 is returned as a response, not an
// error, so callers can tell a missing unit from a failed lookup.
func (t *transport) get(ctx context.Context, path string, out any) (bool, error) {
	resp, err := retry.DoWithResult(ctx, t.retry, func() (*response, error) {
		return t.execute(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return false, err
	}
	if resp.status == http.StatusNotFound {
		return false, nil
	}
	return true, decode(resp, out)
}

func (t *transport) send(ctx context.Context, method, path string, in, out any) error {
	resp, err := t.execute(ctx, method, path, in)
	if err != nil {
		return err
	}
	if resp.status == http.StatusNotFound {
		return &giftcard.LedgerError{Status: resp.status, Message: errorMessage(resp.body)}
	}
	return decode(resp, out)
}

func (t *transport) execute(ctx context.Context, method, path string, in any) (*response, error) {
	resp, err := t.cb.Execute(func() (*response, error) {
		return t.roundTrip(ctx, method, path, in)
	})
	if t.metrics != nil {
		t.metrics.CircuitBreakerRequests.WithLabelValues(t.name, breaker.Result(err)).Inc()
	}
	return resp, err
}

func (t *transport) roundTrip(ctx context.Context, method, path string, in any) (*response, error) {
	badge, ok := auth.FromContext(ctx)
	if !ok {
		return nil, ErrNoBadge
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("AuthorizeAs", authorizeAs(badge))
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", method, path, err)
	}

	resp := &response{status: res.StatusCode, body: b}
	if res.StatusCode >= 400 && res.StatusCode != http.StatusNotFound {
		return resp, &giftcard.LedgerError{Status: res.StatusCode, Message: errorMessage(b)}
	}
	return resp, nil
}

func decode(resp *response, out any) error {
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return "ledger request failed"
}

type authorizeAsPayload struct {
	G struct {
		GUI string `json:"gui"`
	} `json:"g"`
	TestMode bool `json:"testMode,omitempty"`
}

// authorizeAs encodes the badge the ledger should act as.
func authorizeAs(b auth.Badge) string {
	var p authorizeAsPayload
	p.G.GUI = b.MerchantID
	p.TestMode = b.TestMode
	raw, _ := json.Marshal(p)
	return base64.StdEncoding.EncodeToString(raw)
}

// Ledger input rejections say nothing about ledger health.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var le *giftcard.LedgerError
	return errors.As(err, &le) && le.Status < 500
}

func retryable(err error) bool {
	if errors.Is(err, ErrNoBadge) || errors.Is(err, gobreaker.ErrOpenState) {
		return false
	}
	var le *giftcard.LedgerError
	if errors.As(err, &le) {
		return le.Status >= 500 || le.Status == http.StatusTooManyRequests
	}
	return true
}

// newContactID returns a dashless v4 UUID.
func newContactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
