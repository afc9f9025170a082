// ABOUTME: SMTP email delivery using go-mail. Dial-per-send for sporadic notification traffic.
// ABOUTME: The Mailer interface lets tests substitute a recording fake.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/AgriNextGen/agrinext-jobs/internal/config"
)

// Mailer sends a single notification email.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// NewMailer returns the production SMTP mailer, or a no-op mailer when SMTP
// is not configured (local development without a mail sink).
func NewMailer(cfg *config.Config) Mailer {
	if !cfg.EmailEnabled() {
		return noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

type smtpMailer struct {
	cfg *config.Config
}

// Send delivers one plaintext email. Uses DialAndSend (dial-per-send) — no
// persistent SMTP connection for sporadic traffic.
func (m *smtpMailer) Send(ctx context.Context, recipient, subject, body string) error {
	// Strip CR/LF from the subject to prevent header injection.
	subject = strings.NewReplacer("\r", "", "\n", "").Replace(subject)

	msg := mail.NewMsg()
	if err := msg.FromFormat("AgriNext", m.cfg.SMTPFrom); err != nil {
		return fmt.Errorf("email send: set from: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("email send: set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(m.cfg.SMTPPort),
	}
	if m.cfg.SMTPUsername != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain))
		opts = append(opts, mail.WithUsername(m.cfg.SMTPUsername))
		opts = append(opts, mail.WithPassword(m.cfg.SMTPPassword))
	}
	if m.cfg.SMTPTLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(m.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("email send: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, string, string, string) error { return nil }
