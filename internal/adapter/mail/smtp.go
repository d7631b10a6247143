package mail

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	gomail "github.com/wneessen/go-mail"

	"github.com/iho/paywatch/internal/usecase"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// bodyTemplates maps each email template to its plain-text body.
var bodyTemplates = map[usecase.EmailTemplate]*template.Template{
	usecase.TemplatePayAlert: template.Must(template.New("pay_alert").Parse(
		`Dear customer,

our records show invoice {{.invoice_number}} of {{.total_price}} due on {{.due_date}}
is still unpaid. This is payment reminder {{.tier}}.

Please settle the attached invoice by {{.new_due_date}}.

If you have already paid, please disregard this notice.
`)),
}

// SMTPMailer implements usecase.Mailer.
type SMTPMailer struct {
	client *gomail.Client
}

// NewSMTPMailer creates a new SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPMailer{client: client}, nil
}

// Send renders the template body and dispatches one email with attachments.
func (m *SMTPMailer) Send(ctx context.Context, msg usecase.EmailMessage) error {
	tmpl, ok := bodyTemplates[msg.Template]
	if !ok {
		return fmt.Errorf("unknown email template %q", msg.Template)
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, msg.Variables); err != nil {
		return fmt.Errorf("render email body: %w", err)
	}

	out := gomail.NewMsg()
	if err := out.From(msg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := out.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	if msg.ReplyTo != "" {
		if err := out.ReplyTo(msg.ReplyTo); err != nil {
			return fmt.Errorf("reply-to address: %w", err)
		}
	}

	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextPlain, body.String())

	for _, path := range msg.Attachments {
		out.AttachFile(path)
	}

	return m.client.DialAndSendWithContext(ctx, out)
}
