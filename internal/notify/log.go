package notify

import (
	"context"
	"log/slog"

	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// LogNotifier writes codes to the log instead of delivering them. The code
// itself is redacted when env is production.
type LogNotifier struct {
	env    string
	logger *slog.Logger
}

func NewLogNotifier(env string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{env: env, logger: logger}
}

func (n *LogNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	if _, err := purposeAction(msg.Purpose); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "otp issued",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("purpose", msg.Purpose),
		pkglogger.RedactedAttr("code", msg.Code, n.env),
		slog.Time("expires_at", msg.ExpiresAt))
	return nil
}
