package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/limiters"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/notify"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

const (
	DefaultOTPTTL        = 60 * time.Second
	DefaultOTPDigits     = 6
	DefaultNotifyTimeout = 10 * time.Second
)

type OTPConfig struct {
	TTL           time.Duration
	Digits        int
	NotifyTimeout time.Duration
}

// OTPService issues and consumes single-use numeric codes. An account holds
// at most one unused, unexpired code at a time, which doubles as the resend
// throttle.
type OTPService struct {
	otps        OTPRepository
	tx          Transactor
	notifier    notify.Notifier
	limiter     OTPVerifyLimiter // optional
	clock       clock.Clock
	config      OTPConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewOTPService(
	otps OTPRepository,
	tx Transactor,
	notifier notify.Notifier,
	limiter OTPVerifyLimiter,
	clk clock.Clock,
	cfg OTPConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *OTPService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultOTPTTL
	}
	if cfg.Digits <= 0 {
		cfg.Digits = DefaultOTPDigits
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &OTPService{
		otps:        otps,
		tx:          tx,
		notifier:    notifier,
		limiter:     limiter,
		clock:       clk,
		config:      cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// TTL returns how long an issued code stays valid
func (s *OTPService) TTL() time.Duration {
	return s.config.TTL
}

// Request creates a code for account and sends it to the account's email.
// If delivery fails the stored code stays valid and ErrDeliveryFailed is
// returned; a retry within the TTL gets ErrTooManyRequests.
func (s *OTPService) Request(ctx context.Context, account *models.Account, purpose string) (*models.OTPCode, error) {
	if !models.ValidOTPPurpose(purpose) {
		return nil, models.NewValidationError("purpose", "unknown purpose")
	}

	code, err := pkgauth.GenerateNumericCode(s.config.Digits)
	if err != nil {
		s.logger.Error("failed to generate otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	otp := &models.OTPCode{
		AccountID: account.ID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(s.config.TTL),
		CreatedAt: now,
	}

	if err := s.otps.CreateIfNoneActive(ctx, otp); err != nil {
		switch {
		case errors.Is(err, models.ErrTooManyRequests):
			s.logger.Info("otp request throttled", slog.String("account_id", account.ID))
			s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRequested, account.ID, "active_code_exists")
			return nil, models.ErrTooManyRequests
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrNotFound
		default:
			return nil, storeFailure(s.logger, "failed to store otp", err, slog.String("account_id", account.ID))
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.NotifyTimeout)
	defer cancel()

	err = s.notifier.SendOTP(sendCtx, notify.OTPMessage{
		To:        account.Email,
		Name:      account.FullName,
		Code:      otp.Code,
		Purpose:   purpose,
		ExpiresAt: otp.ExpiresAt,
	})
	if err != nil {
		s.logger.Error("otp delivery failed",
			slog.String("account_id", account.ID),
			slog.String("email", pkglogger.SanitizedEmail(account.Email)),
			slog.Any("error", err))
		s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRequested, account.ID, "delivery_failed")
		return nil, fmt.Errorf("%w: %w", models.ErrDeliveryFailed, err)
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPRequested,
		AccountID: account.ID,
		Success:   true,
		Metadata:  map[string]string{"purpose": purpose},
	})
	return otp, nil
}

// VerifyAndConsume marks the matching code used and runs onConsumed in the
// same transaction, so a failure in onConsumed leaves the code unused. A
// wrong or already used code is ErrInvalidCode. An expired code is
// ErrOTPExpired and is deleted.
func (s *OTPService) VerifyAndConsume(
	ctx context.Context,
	accountID, purpose, code string,
	onConsumed func(ctx context.Context, otp *models.OTPCode) error,
) (*models.OTPCode, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, accountID, purpose); err != nil {
			if errors.Is(err, limiters.ErrOTPVerifyRateLimited) {
				s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRejected, accountID, "rate_limited")
				return nil, models.ErrTooManyRequests
			}
			s.logger.Error("otp verify limiter unavailable", slog.Any("error", err))
			return nil, models.ErrServiceUnavailable
		}
	}

	code = strings.TrimSpace(code)
	if len(code) != s.config.Digits {
		s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRejected, accountID, "invalid_code")
		return nil, models.ErrInvalidCode
	}

	now := s.clock.Now()
	var consumed, expired *models.OTPCode

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		otp, err := s.otps.FindUnusedForUpdate(ctx, accountID, purpose, code)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrInvalidCode
			}
			return err
		}

		if otp.IsExpired(now) {
			expired = otp
			return models.ErrOTPExpired
		}

		if err := s.otps.MarkUsed(ctx, otp.ID, now); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrInvalidCode
			}
			return err
		}
		otp.Used = true
		otp.UsedAt = &now

		if onConsumed != nil {
			if err := onConsumed(ctx, otp); err != nil {
				return err
			}
		}
		consumed = otp
		return nil
	})

	if expired != nil {
		if delErr := s.otps.Delete(ctx, expired.ID); delErr != nil {
			s.logger.Warn("failed to delete expired otp", slog.String("otp_id", expired.ID), slog.Any("error", delErr))
		}
	}

	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCode):
			s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRejected, accountID, "invalid_code")
			return nil, models.ErrInvalidCode
		case errors.Is(err, models.ErrOTPExpired):
			s.auditLogger.LogFailure(ctx, pkglogger.EventOTPRejected, accountID, "expired")
			return nil, models.ErrOTPExpired
		case errors.Is(err, models.ErrInternalServer), errors.Is(err, models.ErrValidation):
			return nil, err
		default:
			return nil, storeFailure(s.logger, "failed to consume otp", err, slog.String("account_id", accountID))
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, accountID, purpose); err != nil {
			s.logger.Warn("failed to reset otp verify limiter", slog.Any("error", err))
		}
	}

	s.auditLogger.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPVerified,
		AccountID: accountID,
		Success:   true,
		Metadata:  map[string]string{"purpose": purpose},
	})
	return consumed, nil
}
