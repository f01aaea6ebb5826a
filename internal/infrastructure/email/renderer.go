package email

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
)

//go:embed templates/recipient.html
var recipientTemplate string

//go:embed templates/recipient_legacy.html
var legacyRecipientTemplate string

const (
	defaultMessage        = "Hi there, please enjoy this gift."
	defaultAdditionalInfo = " "
)

// legacyKeys are the only placeholders the simple renderer knows about.
var legacyKeys = []string{"fullcode", "claimLink", "senderFrom", "emailSubject", "message", "initialValue", "companyName", "logo"}

var strictPlaceholder = regexp.MustCompile(`__([A-Za-z]+)__`)

// Message is a rendered redemption email.
type Message struct {
	To      string
	ReplyTo string
	Subject string
	HTML    string
}

// Renderer fills the recipient template. Strict renderers fail when the
// template and the replacement set disagree in either direction.
type Renderer struct {
	strict   bool
	template string
	now      func() time.Time
}

func NewRenderer(strict bool) *Renderer {
	r := &Renderer{strict: strict, template: legacyRecipientTemplate, now: time.Now}
	if strict {
		r.template = recipientTemplate
	}
	return r
}

// WithTemplate swaps the template body, e.g. for a merchant override.
func (r *Renderer) WithTemplate(tmpl string) *Renderer {
	cp := *r
	cp.template = tmpl
	return &cp
}

func (r *Renderer) Render(n giftcard.Notification) (*Message, error) {
	if n.Config == nil {
		return nil, fmt.Errorf("%w: notification has no merchant config", domainErrors.ErrTemplateMismatch)
	}

	values := Replacements(n, r.now())

	var body string
	var err error
	if r.strict {
		body, err = renderStrict(r.template, values)
	} else {
		body = renderSimple(r.template, values)
	}
	if err != nil {
		return nil, err
	}

	return &Message{
		To:      n.RecipientEmail,
		ReplyTo: n.Config.ReplyToAddress,
		Subject: values["emailSubject"],
		HTML:    body,
	}, nil
}

// Replacements builds the template values for a notification. Sender
// supplied text is HTML escaped.
func Replacements(n giftcard.Notification, now time.Time) map[string]string {
	cfg := n.Config

	message := n.Message
	if message == "" {
		message = defaultMessage
	}
	senderFrom := ""
	if n.SenderName != "" {
		senderFrom = "From " + n.SenderName
	}
	subject := cfg.EmailSubject
	if subject == "" {
		subject = "You have received a gift card for " + cfg.CompanyName
	}
	additionalInfo := cfg.AdditionalInfo
	if additionalInfo == "" {
		additionalInfo = defaultAdditionalInfo
	}

	return map[string]string{
		"fullcode":             n.Code,
		"claimLink":            strings.ReplaceAll(cfg.ClaimLink, giftcard.FullcodePlaceholder, n.Code),
		"senderFrom":           html.EscapeString(senderFrom),
		"emailSubject":         subject,
		"message":              html.EscapeString(message),
		"initialValue":         giftcard.FormatCurrency(n.InitialValue, cfg.Currency),
		"additionalInfo":       additionalInfo,
		"companyName":          cfg.CompanyName,
		"companyWebsiteUrl":    cfg.CompanyWebsiteURL,
		"copyright":            cfg.Copyright,
		"copyrightYear":        strconv.Itoa(now.UTC().Year()),
		"customerSupportEmail": cfg.CustomerSupportEmail,
		"linkToPrivacy":        cfg.LinkToPrivacy,
		"linkToTerms":          cfg.LinkToTerms,
		"logo":                 cfg.Logo,
		"termsAndConditions":   cfg.TermsAndConditions,
	}
}

// renderStrict replaces every __key__ placeholder in one pass. Placeholders
// without a value and values without a placeholder are both errors.
func renderStrict(tmpl string, values map[string]string) (string, error) {
	present := map[string]bool{}
	for _, m := range strictPlaceholder.FindAllStringSubmatch(tmpl, -1) {
		present[m[1]] = true
	}

	var missing, unused []string
	for key := range present {
		if _, ok := values[key]; !ok {
			missing = append(missing, key)
		}
	}
	for key := range values {
		if !present[key] {
			unused = append(unused, key)
		}
	}
	if len(missing) > 0 || len(unused) > 0 {
		sort.Strings(missing)
		sort.Strings(unused)
		return "", fmt.Errorf("%w: unreplaced placeholders %v, unused replacements %v",
			domainErrors.ErrTemplateMismatch, missing, unused)
	}

	pairs := make([]string, 0, len(values)*2)
	for key, v := range values {
		pairs = append(pairs, "__"+key+"__", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl), nil
}

func renderSimple(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(legacyKeys)*2)
	for _, key := range legacyKeys {
		pairs = append(pairs, "{{"+key+"}}", values[key])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
