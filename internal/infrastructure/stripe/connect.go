package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/breaker"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type connectMode struct {
	clientID string
	api      *client.API
}

// Connect runs Stripe Connect OAuth for the platform.
type Connect struct {
	name        string
	live        *connectMode
	test        *connectMode
	callbackURL string
	cb          *gobreaker.CircuitBreaker[any]
	metrics     *observability.Metrics
}

// NewConnect builds a Connect client per mode that has both a client id and a
// secret key. backends may be nil to talk to the real processor.
func NewConnect(cfg config.StripeConfig, backends *stripego.Backends, breakerCfg config.BreakerConfig, metrics *observability.Metrics) *Connect {
	c := &Connect{
		name:        "stripe_connect",
		callbackURL: cfg.Connect.CallbackURL,
		cb:          breaker.New[any]("stripe_connect", breakerCfg, metrics, connectCountsAsSuccess),
		metrics:     metrics,
	}
	for _, testMode := range []bool{false, true} {
		id, key := cfg.ClientID(testMode), cfg.SecretKey(testMode)
		if id == "" || key == "" {
			continue
		}
		m := &connectMode{clientID: id, api: client.New(key, backends)}
		if testMode {
			c.test = m
		} else {
			c.live = m
		}
	}
	return c
}

func (c *Connect) mode(testMode bool) (*connectMode, error) {
	m := c.live
	if testMode {
		m = c.test
	}
	if m == nil {
		return nil, fmt.Errorf("stripe connect is not configured for test mode %t", testMode)
	}
	return m, nil
}

func (c *Connect) AuthorizeURL(testMode bool, state string) (string, error) {
	m, err := c.mode(testMode)
	if err != nil {
		return "", err
	}
	return m.api.OAuth.AuthorizeURL(&stripego.AuthorizeURLParams{
		ClientID:     stripego.String(m.clientID),
		RedirectURI:  stripego.String(c.callbackURL),
		ResponseType: stripego.String("code"),
		Scope:        stripego.String(giftcard.ConnectScope),
		State:        stripego.String(state),
	}), nil
}

// ExchangeCode trades an authorization code for the connected account. A
// processor refusal wraps domainErrors.ErrConnectRejected.
func (c *Connect) ExchangeCode(ctx context.Context, testMode bool, code string) (*giftcard.ProcessorAuth, error) {
	m, err := c.mode(testMode)
	if err != nil {
		return nil, err
	}
	params := &stripego.OAuthTokenParams{
		GrantType: stripego.String("authorization_code"),
		Code:      stripego.String(code),
	}
	params.Context = ctx

	res, err := c.execute(func() (any, error) { return m.api.OAuth.New(params) })
	if err != nil {
		return nil, classifyConnect(err)
	}
	token := res.(*stripego.OAuthToken)
	if token.StripeUserID == "" || token.StripePublishableKey == "" {
		return nil, errors.New("stripe oauth token response is missing the account id or publishable key")
	}
	return &giftcard.ProcessorAuth{
		AccountID:      token.StripeUserID,
		PublishableKey: token.StripePublishableKey,
		Scope:          string(token.Scope),
		LiveMode:       token.Livemode,
	}, nil
}

// Deauthorize revokes the platform's access. An account that already revoked
// it counts as done.
func (c *Connect) Deauthorize(ctx context.Context, testMode bool, accountID string) error {
	m, err := c.mode(testMode)
	if err != nil {
		return err
	}
	params := &stripego.DeauthorizeParams{
		ClientID:     stripego.String(m.clientID),
		StripeUserID: stripego.String(accountID),
	}
	params.Context = ctx

	_, err = c.execute(func() (any, error) { return m.api.OAuth.Del(params) })
	if err != nil && !accessLost(err) {
		return fmt.Errorf("deauthorize %s: %w", accountID, err)
	}
	return nil
}

func (c *Connect) GetAccount(ctx context.Context, testMode bool, accountID string) (*giftcard.ProcessorAccount, error) {
	m, err := c.mode(testMode)
	if err != nil {
		return nil, err
	}
	params := &stripego.AccountParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	res, err := c.execute(func() (any, error) { return m.api.Accounts.GetByID(accountID, params) })
	if err != nil {
		if accessLost(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	account := res.(*stripego.Account)
	return &giftcard.ProcessorAccount{ID: account.ID, Email: account.Email}, nil
}

func (c *Connect) execute(fn func() (any, error)) (any, error) {
	res, err := c.cb.Execute(fn)
	if c.metrics != nil {
		c.metrics.CircuitBreakerRequests.WithLabelValues(c.name, breaker.Result(err)).Inc()
	}
	return res, err
}

// accessLost is the processor saying the platform can no longer act for the
// account.
func accessLost(err error) bool {
	var se *stripego.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.HTTPStatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

// rejected is a 4xx other than rate limiting: the request itself was refused.
func rejected(err error) bool {
	var se *stripego.Error
	return errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 &&
		se.HTTPStatusCode != http.StatusTooManyRequests
}

func connectCountsAsSuccess(err error) bool {
	return err == nil || rejected(err)
}

func classifyConnect(err error) error {
	if rejected(err) {
		return fmt.Errorf("%w: %v", domainErrors.ErrConnectRejected, err)
	}
	return fmt.Errorf("stripe oauth: %w", err)
}
