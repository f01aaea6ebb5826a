package lightrail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
)

// ClientV2 talks to the values/contacts API.
type ClientV2 struct {
	t *transport
}

func NewClientV2(cfg config.LedgerConfig, breakerCfg config.BreakerConfig, metrics *observability.Metrics) *ClientV2 {
	return &ClientV2{t: newTransport("lightrail_v2", cfg, breakerCfg, metrics)}
}

type generateCode struct {
	Length     int    `json:"length"`
	Characters string `json:"characters"`
}

type createValueRequest struct {
	ID           string                `json:"id"`
	ProgramID    string                `json:"programId,omitempty"`
	Currency     string                `json:"currency"`
	Balance      int64                 `json:"balance"`
	PreTax       bool                  `json:"preTax"`
	Discount     bool                  `json:"discount"`
	GenerateCode generateCode          `json:"generateCode"`
	Metadata     giftcard.UnitMetadata `json:"metadata"`
}

type value struct {
	ID        string                `json:"id"`
	Code      string                `json:"code"`
	ProgramID string                `json:"programId"`
	Currency  string                `json:"currency"`
	Balance   int64                 `json:"balance"`
	ContactID string                `json:"contactId"`
	Canceled  bool                  `json:"canceled"`
	Metadata  giftcard.UnitMetadata `json:"metadata"`
}

func (v *value) unit() *giftcard.LedgerUnit {
	return &giftcard.LedgerUnit{
		ID:        v.ID,
		ProgramID: v.ProgramID,
		Balance:   v.Balance,
		Currency:  v.Currency,
		ContactID: v.ContactID,
		Metadata:  v.Metadata,
	}
}

type contact struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func valuePath(id string) string {
	return "/v2/values/" + url.PathEscape(id)
}

// Issue creates the value and then attaches the contact. When the attach
// fails the returned LedgerError carries the created unit so it can be
// cancelled.
func (c *ClientV2) Issue(ctx context.Context, req giftcard.IssueRequest) (*giftcard.LedgerUnit, error) {
	var v value
	err := c.t.send(ctx, http.MethodPost, "/v2/values", createValueRequest{
		ID:        req.UserSuppliedID,
		ProgramID: req.ProgramID,
		Currency:  req.Currency,
		Balance:   req.Amount,
		GenerateCode: generateCode{
			Length:     giftcard.CodeLength,
			Characters: giftcard.CodeCharset,
		},
		Metadata: req.Metadata,
	}, &v)
	if err != nil {
		return nil, err
	}
	unit := v.unit()

	if req.ContactID == "" {
		return unit, nil
	}
	if err := c.AttachContact(ctx, unit.ID, req.ContactID); err != nil {
		le := &giftcard.LedgerError{Message: "contact could not be attached", Unit: unit, Err: err}
		var inner *giftcard.LedgerError
		if errors.As(err, &inner) {
			le.Status = inner.Status
			le.Message = inner.Message
		}
		return nil, le
	}
	unit.ContactID = req.ContactID
	return unit, nil
}

func (c *ClientV2) GetRedemptionCode(ctx context.Context, unitID string) (string, error) {
	var v value
	found, err := c.t.get(ctx, valuePath(unitID)+"?showCode=true", &v)
	if err != nil {
		return "", err
	}
	if !found {
		return "", &giftcard.LedgerError{Status: http.StatusNotFound, Message: fmt.Sprintf("value %s not found", unitID)}
	}
	return v.Code, nil
}

func (c *ClientV2) ResolveOrCreateContact(ctx context.Context, email string) (string, error) {
	var existing []contact
	if _, err := c.t.get(ctx, "/v2/contacts?email="+url.QueryEscape(email), &existing); err != nil {
		return "", err
	}
	if len(existing) > 0 {
		return existing[0].ID, nil
	}

	var created contact
	if err := c.t.send(ctx, http.MethodPost, "/v2/contacts", contact{ID: newContactID(), Email: email}, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *ClientV2) AttachContact(ctx context.Context, unitID, contactID string) error {
	path := "/v2/contacts/" + url.PathEscape(contactID) + "/values/attach"
	return c.t.send(ctx, http.MethodPost, path, map[string]string{"valueId": unitID}, nil)
}

func (c *ClientV2) Cancel(ctx context.Context, unitID string) error {
	return c.t.send(ctx, http.MethodPatch, valuePath(unitID), map[string]bool{"canceled": true}, nil)
}

func (c *ClientV2) GetUnitByID(ctx context.Context, unitID string) (*giftcard.LedgerUnit, error) {
	var v value
	found, err := c.t.get(ctx, valuePath(unitID), &v)
	if err != nil || !found {
		return nil, err
	}
	return v.unit(), nil
}

// GetInitialTransaction reports the value's current balance and issuance
// metadata; values have no separate issuing transaction.
func (c *ClientV2) GetInitialTransaction(ctx context.Context, unitID string) (*giftcard.InitialTransaction, error) {
	var v value
	found, err := c.t.get(ctx, valuePath(unitID), &v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &giftcard.LedgerError{Status: http.StatusNotFound, Message: fmt.Sprintf("value %s not found", unitID)}
	}
	return &giftcard.InitialTransaction{Value: v.Balance, Metadata: v.Metadata}, nil
}
