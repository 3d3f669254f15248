package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventRegister        = "register"
	EventLoginSuccess    = "login_success"
	EventLoginFailed     = "login_failed"
	EventAccountLocked   = "account_locked"
	EventAccountDeleted  = "account_deleted_on_lockout"
	EventTokenRefreshed  = "token_refreshed"
	EventLogout          = "logout"
	EventOTPRequested    = "otp_requested"
	EventOTPVerified     = "otp_verified"
	EventOTPRejected     = "otp_rejected"
	EventPasswordReset   = "password_reset"
	EventPasswordChanged = "password_changed"
	EventProfileUpdated  = "profile_updated"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo attaches the caller's IP address and user agent to ctx.
// Events logged with that ctx carry them unless set explicitly.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

// AuditLogger writes security events as structured log records
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Log records event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = info.userAgent
		}
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogSuccess records a successful event for accountID
func (al *AuditLogger) LogSuccess(ctx context.Context, eventType, accountID string) {
	al.Log(ctx, AuditEvent{EventType: eventType, AccountID: accountID, Success: true})
}

// LogFailure records a failed event for accountID with reason
func (al *AuditLogger) LogFailure(ctx context.Context, eventType, accountID, reason string) {
	al.Log(ctx, AuditEvent{EventType: eventType, AccountID: accountID, FailureReason: reason})
}
