package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/maxmove/waitlist-api/pkg/logger"
)

// EmailService defines the interface for sending waiting-list emails
type EmailService interface {
	SendWaitlistConfirmation(ctx context.Context, email, referralCode string, position int64) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendWaitlistConfirmation sends the signup confirmation with the
// shareable referral link. A failure here never reverses the signup; the
// caller logs it and the redelivery sweep retries later.
func (s *AWSSESEmailService) SendWaitlistConfirmation(ctx context.Context, email, referralCode string, position int64) error {
	referralLink := fmt.Sprintf("%s/?ref=%s", s.baseURL, referralCode)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .content { padding: 20px 0; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .code { font-family: monospace; font-size: 18px; background-color: #f1f3f5; padding: 4px 10px; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>You're on the list!</h1>
        </div>
        <div class="content">
            <p>Thanks for joining the waiting list. You are signup number <strong>%d</strong>.</p>
            <p>Want to move up? Share your personal referral link with friends:</p>
            <p><a href="%s" class="button">Share your link</a></p>
            <p>Or copy it directly:<br>
            <code>%s</code></p>
            <p>Your referral code: <span class="code">%s</span></p>
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
            <p>If you didn't sign up, you can safely ignore this email.</p>
        </div>
    </div>
</body>
</html>
`, position, referralLink, referralLink, referralCode)

	textBody := fmt.Sprintf(`You're on the list!

Thanks for joining the waiting list. You are signup number %d.

Want to move up? Share your personal referral link with friends:

%s

Your referral code: %s

This is an automated message. Please do not reply to this email.
If you didn't sign up, you can safely ignore this email.
`, position, referralLink, referralCode)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("You're on the waiting list"),
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
		s.logger.Error("failed to send confirmation email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("confirmation email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}
