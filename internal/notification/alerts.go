package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/festra/festra-api/internal/config"
	"github.com/rs/zerolog"
)

// Alerter delivers operator-facing alerts raised by the pipeline, such as
// receipts abandoned past the reconcile window.
type Alerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// EmailAlerter sends alerts to the configured operator addresses over SMTP.
type EmailAlerter struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients []string
	logger     zerolog.Logger
}

func NewEmailAlerter(cfg config.EmailConfig, logger zerolog.Logger) (*EmailAlerter, error) {
	recipients := sanitizeRecipients(cfg.AlertRecipients)
	host := strings.TrimSpace(cfg.SMTPHost)
	from := strings.TrimSpace(cfg.From)
	if host == "" {
		return nil, fmt.Errorf("smtp_host is required for email alerts")
	}
	if from == "" {
		return nil, fmt.Errorf("from is required for email alerts")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}

	return &EmailAlerter{
		host:       host,
		port:       port,
		username:   strings.TrimSpace(cfg.Username),
		password:   cfg.Password,
		from:       from,
		recipients: recipients,
		logger:     logger.With().Str("component", "email_alerter").Logger(),
	}, nil
}

func (a *EmailAlerter) Alert(_ context.Context, subject, body string) error {
	if len(a.recipients) == 0 {
		return nil
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "Alert"
	}

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [Festra] %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		a.from, strings.Join(a.recipients, ","), subject)
	message := []byte(headers + body + "\n")

	addr := fmt.Sprintf("%s:%d", a.host, a.port)
	var auth smtp.Auth
	if a.username != "" {
		auth = smtp.PlainAuth("", a.username, a.password, a.host)
	}

	if err := smtp.SendMail(addr, auth, a.from, a.recipients, message); err != nil {
		return err
	}

	a.logger.Info().Str("subject", subject).Strs("recipients", a.recipients).Msg("alert email sent")
	return nil
}

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
