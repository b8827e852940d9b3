package alert

import (
	"context"
	"fmt"

	mailgun "github.com/mailgun/mailgun-go/v3"
)

// MailgunConfig is what Mailgun needs to send an email
type MailgunConfig struct {
	Domain     string
	APIKey     string
	Sender     string
	Recipients []string
}

// MailgunSender delivers alerts as plain-text emails
type MailgunSender struct {
	mg  mailgun.Mailgun
	cfg MailgunConfig
}

// NewMailgunSender creates a Mailgun client for cfg.Domain
func NewMailgunSender(cfg MailgunConfig) *MailgunSender {
	return &MailgunSender{
		mg:  mailgun.NewMailgun(cfg.Domain, cfg.APIKey),
		cfg: cfg,
	}
}

// Send implements Sender
func (s *MailgunSender) Send(ctx context.Context, subject, body string) error {
	message := s.mg.NewMessage(s.cfg.Sender, subject, body, s.cfg.Recipients...)
	resp, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("mailgun send: %w", err)
	}
	if id == "" {
		return fmt.Errorf("mailgun send: invalid id: %s", resp)
	}
	return nil
}
