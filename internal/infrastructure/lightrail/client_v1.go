package lightrail

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
)

// ClientV1 talks to the legacy cards/contacts API.
type ClientV1 struct {
	t *transport
}

func NewClientV1(cfg config.LedgerConfig, breakerCfg config.BreakerConfig, metrics *observability.Metrics) *ClientV1 {
	return &ClientV1{t: newTransport("lightrail_v1", cfg, breakerCfg, metrics)}
}

type createCardRequest struct {
	UserSuppliedID string                `json:"userSuppliedId"`
	CardType       string                `json:"cardType"`
	ContactID      string                `json:"contactId,omitempty"`
	InitialValue   int64                 `json:"initialValue"`
	ProgramID      string                `json:"programId,omitempty"`
	Metadata       giftcard.UnitMetadata `json:"metadata"`
}

type card struct {
	CardID    string `json:"cardId"`
	CardType  string `json:"cardType"`
	ContactID string `json:"contactId"`
	ProgramID string `json:"programId"`
	Currency  string `json:"currency"`
}

func (c card) unit() *giftcard.LedgerUnit {
	return &giftcard.LedgerUnit{
		ID:        c.CardID,
		ProgramID: c.ProgramID,
		Currency:  c.Currency,
		Kind:      c.CardType,
		ContactID: c.ContactID,
	}
}

type cardEnvelope struct {
	Card card `json:"card"`
}

type contactV1 struct {
	ContactID      string `json:"contactId,omitempty"`
	UserSuppliedID string `json:"userSuppliedId,omitempty"`
	Email          string `json:"email"`
}

type transactionV1 struct {
	Value    int64                 `json:"value"`
	Metadata giftcard.UnitMetadata `json:"metadata"`
}

func cardPath(id string) string {
	return "/v1/cards/" + url.PathEscape(id)
}

func notFound(cardID string) error {
	return &giftcard.LedgerError{Status: http.StatusNotFound, Message: fmt.Sprintf("card %s not found", cardID)}
}

// Issue creates the card with the contact already set.
func (c *ClientV1) Issue(ctx context.Context, req giftcard.IssueRequest) (*giftcard.LedgerUnit, error) {
	var env cardEnvelope
	err := c.t.send(ctx, http.MethodPost, "/v1/cards", createCardRequest{
		UserSuppliedID: req.UserSuppliedID,
		CardType:       giftcard.KindGiftCard,
		ContactID:      req.ContactID,
		InitialValue:   req.Amount,
		ProgramID:      req.ProgramID,
		Metadata:       req.Metadata,
	}, &env)
	if err != nil {
		return nil, err
	}
	unit := env.Card.unit()
	unit.Balance = req.Amount
	unit.Metadata = req.Metadata
	return unit, nil
}

func (c *ClientV1) GetRedemptionCode(ctx context.Context, unitID string) (string, error) {
	var env struct {
		Fullcode struct {
			Code string `json:"code"`
		} `json:"fullcode"`
	}
	found, err := c.t.get(ctx, cardPath(unitID)+"/fullcode", &env)
	if err != nil {
		return "", err
	}
	if !found {
		return "", notFound(unitID)
	}
	return env.Fullcode.Code, nil
}

func (c *ClientV1) ResolveOrCreateContact(ctx context.Context, email string) (string, error) {
	var list struct {
		Contacts []contactV1 `json:"contacts"`
	}
	if _, err := c.t.get(ctx, "/v1/contacts?email="+url.QueryEscape(email), &list); err != nil {
		return "", err
	}
	if len(list.Contacts) > 0 {
		return list.Contacts[0].ContactID, nil
	}

	var created struct {
		Contact contactV1 `json:"contact"`
	}
	err := c.t.send(ctx, http.MethodPost, "/v1/contacts", contactV1{UserSuppliedID: newContactID(), Email: email}, &created)
	if err != nil {
		return "", err
	}
	return created.Contact.ContactID, nil
}

func (c *ClientV1) AttachContact(ctx context.Context, unitID, contactID string) error {
	return c.t.send(ctx, http.MethodPatch, cardPath(unitID), map[string]string{"contactId": contactID}, nil)
}

func (c *ClientV1) Cancel(ctx context.Context, unitID string) error {
	return c.t.send(ctx, http.MethodPost, cardPath(unitID)+"/cancel", map[string]string{"userSuppliedId": unitID + "-cancel"}, nil)
}

func (c *ClientV1) GetUnitByID(ctx context.Context, unitID string) (*giftcard.LedgerUnit, error) {
	var env cardEnvelope
	found, err := c.t.get(ctx, cardPath(unitID), &env)
	if err != nil || !found {
		return nil, err
	}
	return env.Card.unit(), nil
}

func (c *ClientV1) GetInitialTransaction(ctx context.Context, unitID string) (*giftcard.InitialTransaction, error) {
	var list struct {
		Transactions []transactionV1 `json:"transactions"`
	}
	found, err := c.t.get(ctx, cardPath(unitID)+"/transactions?transactionType=INITIAL_VALUE", &list)
	if err != nil {
		return nil, err
	}
	if !found || len(list.Transactions) == 0 {
		return nil, notFound(unitID)
	}
	tx := list.Transactions[0]
	return &giftcard.InitialTransaction{Value: tx.Value, Metadata: tx.Metadata}, nil
}
