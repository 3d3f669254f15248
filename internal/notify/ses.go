package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// sesAPI is the part of the SES client the notifier uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends codes by email using AWS SES
type SESNotifier struct {
	client      sesAPI
	fromAddress string
	appName     string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS credential chain for region
func NewSESNotifier(ctx context.Context, region, fromAddress, appName string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		appName:     appName,
		logger:      logger,
	}, nil
}

func (n *SESNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	content, err := render(n.appName, msg, time.Now())
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(content.Subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(content.HTML)},
				Text: &types.Content{Data: aws.String(content.Text)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send otp email via SES",
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("otp email sent",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("purpose", msg.Purpose),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
