package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail"
)

// SMTPEmailSender sends mail through a relay for deployments without SES
// access (on-premise and staging environments).
type SMTPEmailSender struct {
	dialer      *mail.Dialer
	fromAddress string
	logger      *slog.Logger
}

// NewSMTPEmailSender creates a new SMTP email sender. STARTTLS is
// negotiated automatically when the server offers it.
func NewSMTPEmailSender(host string, port int, user, pass, fromAddress string, logger *slog.Logger) *SMTPEmailSender {
	dialer := mail.NewDialer(host, port, user, pass)
	dialer.TLSConfig = &tls.Config{ServerName: host}

	return &SMTPEmailSender{
		dialer:      dialer,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

func (s *SMTPEmailSender) send(_ context.Context, to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.fromAddress)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("failed to send email via SMTP",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", slog.String("subject", subject))

	return nil
}

func (s *SMTPEmailSender) SendLoginCode(ctx context.Context, email, code string, expiry time.Duration) error {
	subject, html, text := loginCodeEmail(code, expiry)
	return s.send(ctx, email, subject, html, text)
}

func (s *SMTPEmailSender) SendRegistrationCode(ctx context.Context, email, code string, expiry time.Duration) error {
	subject, html, text := registrationCodeEmail(code, expiry)
	return s.send(ctx, email, subject, html, text)
}

func (s *SMTPEmailSender) SendApprovalNotice(ctx context.Context, email, tempPassword string) error {
	subject, html, text := approvalEmail(tempPassword)
	return s.send(ctx, email, subject, html, text)
}

func (s *SMTPEmailSender) SendRejectionNotice(ctx context.Context, email, reason string) error {
	subject, html, text := rejectionEmail(reason)
	return s.send(ctx, email, subject, html, text)
}
