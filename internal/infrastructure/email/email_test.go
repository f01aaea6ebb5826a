package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotification() giftcard.Notification {
	return giftcard.Notification{
		RecipientEmail: "recipient@example.com",
		SenderName:     "Jane <b>",
		Code:           "ABCD2345EFGH6789",
		InitialValue:   2500,
		Config: &giftcard.MerchantConfig{
			CompanyName:        "Acme Coffee",
			Currency:           "USD",
			Logo:               "https://acme.example/logo.png",
			ProgramID:          "program-1",
			ClaimLink:          "https://acme.example/claim?code={{fullcode}}",
			LinkToPrivacy:      "https://acme.example/privacy",
			LinkToTerms:        "https://acme.example/terms",
			TermsAndConditions: "Not redeemable for cash.",
			ReplyToAddress:     "support@acme.example",
			PaymentAccountID:   "acct_1",
		},
	}
}

func fixedRenderer(strict bool) *Renderer {
	r := NewRenderer(strict)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func TestReplacements_Defaults(t *testing.T) {
	n := testNotification()
	n.SenderName = ""
	values := Replacements(n, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, defaultMessage, values["message"])
	assert.Equal(t, "", values["senderFrom"])
	assert.Equal(t, "You have received a gift card for Acme Coffee", values["emailSubject"])
	assert.Equal(t, " ", values["additionalInfo"])
	assert.Equal(t, "$25", values["initialValue"])
	assert.Equal(t, "https://acme.example/claim?code=ABCD2345EFGH6789", values["claimLink"])
	assert.Equal(t, "2026", values["copyrightYear"])
}

func TestRenderer_Strict(t *testing.T) {
	msg, err := fixedRenderer(true).Render(testNotification())
	require.NoError(t, err)

	assert.Equal(t, "recipient@example.com", msg.To)
	assert.Equal(t, "support@acme.example", msg.ReplyTo)
	assert.Equal(t, "You have received a gift card for Acme Coffee", msg.Subject)
	assert.Contains(t, msg.HTML, "ABCD2345EFGH6789")
	assert.Contains(t, msg.HTML, "From Jane &lt;b&gt;")
	assert.Contains(t, msg.HTML, "&copy; 2026")
	assert.False(t, strictPlaceholder.MatchString(msg.HTML))
}

func TestRenderStrict_UnreplacedPlaceholder(t *testing.T) {
	_, err := renderStrict("<p>__fullcode__ __unknown__</p>", map[string]string{"fullcode": "X"})
	require.ErrorIs(t, err, domainErrors.ErrTemplateMismatch)
	assert.Contains(t, err.Error(), "unknown")
}

func TestRenderStrict_UnusedReplacement(t *testing.T) {
	_, err := renderStrict("<p>__fullcode__</p>", map[string]string{"fullcode": "X", "logo": "y"})
	require.ErrorIs(t, err, domainErrors.ErrTemplateMismatch)
	assert.Contains(t, err.Error(), "logo")
}

func TestRenderStrict_ValuesAreNotRescanned(t *testing.T) {
	out, err := renderStrict("__a__ __b__", map[string]string{"a": "__b__", "b": "two"})
	require.NoError(t, err)
	assert.Equal(t, "__b__ two", out)
}

func TestRenderer_StrictTemplateOverrideMismatch(t *testing.T) {
	_, err := fixedRenderer(true).WithTemplate("<p>__fullcode__</p>").Render(testNotification())
	assert.ErrorIs(t, err, domainErrors.ErrTemplateMismatch)
}

func TestRenderer_Simple(t *testing.T) {
	r := fixedRenderer(false).WithTemplate("{{fullcode}} {{initialValue}} {{unknown}} __logo__")
	msg, err := r.Render(testNotification())
	require.NoError(t, err)
	assert.Equal(t, "ABCD2345EFGH6789 $25 {{unknown}} __logo__", msg.HTML)

	msg, err = fixedRenderer(false).Render(testNotification())
	require.NoError(t, err)
	assert.False(t, strings.Contains(msg.HTML, "{{"))
}

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-123")}, nil
}

func TestNotifier_Send(t *testing.T) {
	ses := &fakeSES{}
	n := NewNotifier(fixedRenderer(true), NewSESSender(ses, "gifts@turnkey.example"), zerolog.Nop())

	id, err := n.Send(context.Background(), testNotification())
	require.NoError(t, err)
	assert.Equal(t, "msg-123", id)

	require.NotNil(t, ses.in)
	assert.Equal(t, "gifts@turnkey.example", aws.ToString(ses.in.FromEmailAddress))
	assert.Equal(t, []string{"recipient@example.com"}, ses.in.Destination.ToAddresses)
	assert.Equal(t, []string{"support@acme.example"}, ses.in.ReplyToAddresses)
	assert.Contains(t, aws.ToString(ses.in.Content.Simple.Body.Html.Data), "ABCD2345EFGH6789")
}

func TestNotifier_SendFailure(t *testing.T) {
	ses := &fakeSES{err: errors.New("throttled")}
	n := NewNotifier(fixedRenderer(true), NewSESSender(ses, "gifts@turnkey.example"), zerolog.Nop())

	_, err := n.Send(context.Background(), testNotification())
	assert.Error(t, err)
}
