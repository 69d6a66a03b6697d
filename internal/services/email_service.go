package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailSender defines the interface for outbound notifications. All sends
// on the post-commit paths are best-effort: callers record a failure event
// instead of propagating the error.
type EmailSender interface {
	SendLoginCode(ctx context.Context, email, code string, expiry time.Duration) error
	SendRegistrationCode(ctx context.Context, email, code string, expiry time.Duration) error
	SendApprovalNotice(ctx context.Context, email, tempPassword string) error
	SendRejectionNotice(ctx context.Context, email, reason string) error
}

// AWSSESEmailSender sends emails using AWS SES
type AWSSESEmailSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailSender creates a new AWS SES email sender
func NewAWSSESEmailSender(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *AWSSESEmailSender) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}

func (s *AWSSESEmailSender) SendLoginCode(ctx context.Context, email, code string, expiry time.Duration) error {
	subject, html, text := loginCodeEmail(code, expiry)
	return s.send(ctx, email, subject, html, text)
}

func (s *AWSSESEmailSender) SendRegistrationCode(ctx context.Context, email, code string, expiry time.Duration) error {
	subject, html, text := registrationCodeEmail(code, expiry)
	return s.send(ctx, email, subject, html, text)
}

func (s *AWSSESEmailSender) SendApprovalNotice(ctx context.Context, email, tempPassword string) error {
	subject, html, text := approvalEmail(tempPassword)
	return s.send(ctx, email, subject, html, text)
}

func (s *AWSSESEmailSender) SendRejectionNotice(ctx context.Context, email, reason string) error {
	subject, html, text := rejectionEmail(reason)
	return s.send(ctx, email, subject, html, text)
}
