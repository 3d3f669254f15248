package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"

	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier sends codes by email over SMTP
type SMTPNotifier struct {
	dialer      dialer
	fromAddress string
	appName     string
	logger      *slog.Logger
}

func NewSMTPNotifier(host string, port int, username, password, fromAddress, appName string, logger *slog.Logger) *SMTPNotifier {
	if fromAddress == "" {
		fromAddress = username
	}
	return &SMTPNotifier{
		dialer:      gomail.NewDialer(host, port, username, password),
		fromAddress: fromAddress,
		appName:     appName,
		logger:      logger,
	}
}

func (n *SMTPNotifier) buildMessage(msg OTPMessage, now time.Time) (*gomail.Message, error) {
	content, err := render(n.appName, msg, now)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.fromAddress)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", content.Subject)
	m.SetBody("text/plain", content.Text)
	m.AddAlternative("text/html", content.HTML)
	return m, nil
}

// SendOTP returns when the message is sent or ctx is done. gomail has no
// context support, so an abandoned send finishes in the background.
func (n *SMTPNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	m, err := n.buildMessage(msg, time.Now())
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- n.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			n.logger.Error("failed to send otp email via SMTP",
				slog.String("email", pkglogger.SanitizedEmail(msg.To)),
				slog.Any("error", err))
			return fmt.Errorf("failed to send email: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("failed to send email: %w", ctx.Err())
	}

	n.logger.Info("otp email sent",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("purpose", msg.Purpose))
	return nil
}
