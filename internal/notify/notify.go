// Package notify delivers one-time codes to account holders
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

// ErrUnknownPurpose is returned when a message carries an OTP purpose with no template
var ErrUnknownPurpose = errors.New("unknown otp purpose")

// OTPMessage is a one-time code addressed to an account holder
type OTPMessage struct {
	To        string    `json:"to"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier sends one-time codes. Implementations return an error when the
// message was not handed to the delivery channel.
type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

type renderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

func purposeAction(purpose string) (string, error) {
	switch purpose {
	case models.OTPPurposePasswordReset:
		return "reset your password", nil
	case models.OTPPurposePasswordChange:
		return "change your password", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
}

// render builds the subject and bodies for msg. The validity window is
// rounded up to whole seconds relative to now.
func render(appName string, msg OTPMessage, now time.Time) (*renderedMessage, error) {
	action, err := purposeAction(msg.Purpose)
	if err != nil {
		return nil, err
	}

	validFor := msg.ExpiresAt.Sub(now).Round(time.Second)
	if validFor < 0 {
		validFor = 0
	}

	greeting := "Hello"
	if name := strings.TrimSpace(msg.Name); name != "" {
		greeting = "Hello " + name
	}

	subject := fmt.Sprintf("%s verification code", appName)

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 28px; letter-spacing: 6px; font-weight: bold; padding: 12px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>%s,</p>
        <p>Use this code to %s:</p>
        <p class="code">%s</p>
        <p>The code expires in %s and can be used once.</p>
        <p>If you did not ask for this code, you can ignore this email. Your password has not changed.</p>
        <div class="footer">
            <p>This is an automated message from %s. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, greeting, action, msg.Code, validFor, appName)

	text := fmt.Sprintf(`%s,

Use this code to %s: %s

The code expires in %s and can be used once.

If you did not ask for this code, you can ignore this email. Your password has not changed.

This is an automated message from %s. Please do not reply to this email.
`, greeting, action, msg.Code, validFor, appName)

	return &renderedMessage{Subject: subject, HTML: html, Text: text}, nil
}
