package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"registrar/internal/adapters/email"
	"registrar/internal/domain/outbox"
)

// Email categories tagged on outbound messages.
const (
	CategoryConfirmation = "registration_confirmation"
	CategoryAdminNotice  = "registration_admin_notice"
)

// ErrNoAdminRecipients is returned when no admin address is configured.
var ErrNoAdminRecipients = errors.New("no admin notification recipients configured")

// SessionLine is one booked session as shown to the family.
type SessionLine struct {
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
}

// Confirmation is everything the family's confirmation email shows.
type Confirmation struct {
	RegistrationID string        `json:"registration_id"`
	ProgramName    string        `json:"program_name"`
	ParentName     string        `json:"parent_name"`
	ParentEmail    string        `json:"parent_email"`
	Sessions       []SessionLine `json:"sessions"`
	ChildNames     []string      `json:"child_names"`
	TotalCents     int           `json:"total_cents"`
	PaymentMethod  string        `json:"payment_method"`
	Waitlisted     bool          `json:"waitlisted"`
}

// AdminSummary is the staff notice for a new registration.
type AdminSummary struct {
	RegistrationID string   `json:"registration_id"`
	ProgramName    string   `json:"program_name"`
	ParentName     string   `json:"parent_name"`
	ParentEmail    string   `json:"parent_email"`
	SessionTitles  []string `json:"session_titles"`
	ChildCount     int      `json:"child_count"`
	TotalCents     int      `json:"total_cents"`
	Waitlisted     bool     `json:"waitlisted"`
	NeedsRepair    bool     `json:"needs_repair"`
}

// Notifier delivers registration notifications.
type Notifier interface {
	SendConfirmation(ctx context.Context, c Confirmation) error
	SendAdminNotification(ctx context.Context, s AdminSummary) error
}

// mdRenderer escapes raw HTML in the markdown source.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

const templateSource = `
{{define "confirmation"}}Kia ora {{md .ParentName}},

Thanks for registering for **{{md .ProgramName}}**.
{{if .Waitlisted}}
Some of the sessions you chose are full, so your place is on the **waitlist**. We will be in touch if a spot opens up.
{{end}}
## Sessions
{{range .Sessions}}
- {{md .Title}} ({{date .StartsAt}}){{end}}

## Children
{{range .ChildNames}}
- {{md .}}{{end}}

**Total:** {{money .TotalCents}} (payment by {{md .PaymentMethod}})

Your reference is ` + "`{{.RegistrationID}}`" + `.
{{end}}
{{define "admin"}}New **{{md .ProgramName}}** registration from {{md .ParentName}} ({{md .ParentEmail}}).

- Sessions: {{range $i, $t := .SessionTitles}}{{if $i}}, {{end}}{{md $t}}{{end}}
- Children: {{.ChildCount}}
- Total: {{money .TotalCents}}{{if .Waitlisted}}
- **Over capacity** for at least one session{{end}}{{if .NeedsRepair}}
- **Needs repair:** child or pickup rows failed to save{{end}}

Reference ` + "`{{.RegistrationID}}`" + `
{{end}}`

// markdownTemplates feed the HTML body; every submitted value is escaped so it renders as literal text.
// textTemplates produce the plain-text body, which is never interpreted.
var (
	markdownTemplates = newTemplates(EscapeMarkdown)
	textTemplates     = newTemplates(singleLine)
)

func newTemplates(value func(string) string) *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"md":    value,
		"money": FormatCents,
		"date":  func(t time.Time) string { return t.Format("Mon 2 Jan 2006, 3:04pm") },
	}).Parse(templateSource))
}

// EscapeMarkdown backslash-escapes ASCII punctuation and folds line breaks, so s renders
// as one line of literal text with no links, emphasis or block structure.
func EscapeMarkdown(s string) string {
	s = singleLine(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf && (unicode.IsPunct(r) || unicode.IsSymbol(r)) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// EmailNotifier renders notifications as markdown and sends them through an email.Sender.
type EmailNotifier struct {
	sender      email.Sender
	adminEmails []string
	replyTo     string
}

// NewEmailNotifier creates a notifier that sends admin notices to adminEmails.
func NewEmailNotifier(sender email.Sender, adminEmails []string, replyTo string) *EmailNotifier {
	return &EmailNotifier{sender: sender, adminEmails: adminEmails, replyTo: replyTo}
}

// SendConfirmation emails the family.
// PRE: c.ParentEmail is non-empty
// POST: One message handed to the sender
func (n *EmailNotifier) SendConfirmation(ctx context.Context, c Confirmation) error {
	text, html, err := render("confirmation", c)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Registration received: %s", c.ProgramName)
	if c.Waitlisted {
		subject = fmt.Sprintf("Waitlist place: %s", c.ProgramName)
	}
	_, err = n.sender.Send(ctx, email.Message{
		To:       []string{c.ParentEmail},
		ReplyTo:  n.replyTo,
		Subject:  subject,
		HTML:     html,
		Text:     text,
		Category: CategoryConfirmation,
	})
	return err
}

// SendAdminNotification emails every configured admin address.
// PRE: at least one admin address configured
func (n *EmailNotifier) SendAdminNotification(ctx context.Context, s AdminSummary) error {
	if len(n.adminEmails) == 0 {
		return ErrNoAdminRecipients
	}
	text, html, err := render("admin", s)
	if err != nil {
		return err
	}
	_, err = n.sender.Send(ctx, email.Message{
		To:       n.adminEmails,
		ReplyTo:  s.ParentEmail,
		Subject:  fmt.Sprintf("New registration: %s (%d children)", s.ParentName, s.ChildCount),
		HTML:     html,
		Text:     text,
		Category: CategoryAdminNotice,
	})
	return err
}

func render(name string, data any) (text, html string, err error) {
	var md, plain bytes.Buffer
	if err := markdownTemplates.ExecuteTemplate(&md, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	if err := textTemplates.ExecuteTemplate(&plain, name, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", name, err)
	}
	var out bytes.Buffer
	if err := mdRenderer.Convert(md.Bytes(), &out); err != nil {
		return "", "", fmt.Errorf("convert %s markdown: %w", name, err)
	}
	return strings.TrimSpace(plain.String()), out.String(), nil
}

// FormatCents renders an amount in cents as dollars.
func FormatCents(cents int) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Payload encodes a notification for the outbox.
func Payload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode notification payload: %w", err)
	}
	return string(b), nil
}

// Replay decodes an outbox payload and sends it again.
// PRE: actionType is an outbox action type; payload was produced by Payload
// POST: Returns the delivery error, if any
func Replay(ctx context.Context, n Notifier, actionType, payload string) error {
	switch actionType {
	case outbox.ActionConfirmation:
		var c Confirmation
		if err := json.Unmarshal([]byte(payload), &c); err != nil {
			return fmt.Errorf("decode confirmation payload: %w", err)
		}
		return n.SendConfirmation(ctx, c)
	case outbox.ActionAdminNotice:
		var s AdminSummary
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return fmt.Errorf("decode admin notice payload: %w", err)
		}
		return n.SendAdminNotification(ctx, s)
	}
	return outbox.ErrUnknownActionType
}
