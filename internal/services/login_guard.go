package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// Lockout policies
const (
	LockoutPolicyLock   = "lock"
	LockoutPolicyDelete = "delete"
)

const DefaultMaxFailedAttempts = 5

type LoginGuardConfig struct {
	MaxFailedAttempts int
	LockoutPolicy     string
}

// LoginGuard checks passwords and tracks consecutive failures per account.
// An account that reaches MaxFailedAttempts stays locked until its password
// is reset through a one-time code.
type LoginGuard struct {
	accounts    AccountRepository
	config      LoginGuardConfig
	clock       clock.Clock
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	dummyOnce sync.Once
	dummyHash string
}

func NewLoginGuard(accounts AccountRepository, cfg LoginGuardConfig, clk clock.Clock, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LoginGuard {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if cfg.LockoutPolicy == "" {
		cfg.LockoutPolicy = LockoutPolicyLock
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &LoginGuard{
		accounts:    accounts,
		config:      cfg,
		clock:       clk,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// MaxFailedAttempts returns the configured lockout threshold
func (g *LoginGuard) MaxFailedAttempts() int {
	return g.config.MaxFailedAttempts
}

// Check verifies password for account. A nil account means the identifier
// matched nothing; a dummy hash is compared so the call costs the same, and
// ErrNotFound is returned. Every failure is padded by the timing delay
// measured from start.
func (g *LoginGuard) Check(ctx context.Context, start time.Time, account *models.Account, password string) error {
	if account == nil {
		_ = pkgauth.ComparePassword(g.dummyPasswordHash(), password)
		g.auditLogger.LogFailure(ctx, pkglogger.EventLoginFailed, "", "unknown_identifier")
		g.timing.WaitFrom(ctx, start)
		return models.ErrNotFound
	}

	if account.IsLocked(g.config.MaxFailedAttempts) {
		g.logger.Info("login rejected: account locked", slog.String("account_id", account.ID))
		g.auditLogger.LogFailure(ctx, pkglogger.EventLoginFailed, account.ID, "account_locked")
		g.timing.WaitFrom(ctx, start)
		return models.ErrAccountLocked
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		err := g.recordFailure(ctx, account)
		g.timing.WaitFrom(ctx, start)
		return err
	}

	// account was read before the compare; a concurrent failure may have
	// locked it since, so the reset doubles as the final lock check
	rows, err := g.accounts.ResetFailedAttempts(ctx, account.ID, g.config.MaxFailedAttempts, g.clock.Now())
	if err != nil {
		return storeFailure(g.logger, "failed to reset failed login attempts", err, slog.String("account_id", account.ID))
	}
	if rows == 0 {
		g.logger.Info("login rejected: account locked during check", slog.String("account_id", account.ID))
		g.auditLogger.LogFailure(ctx, pkglogger.EventLoginFailed, account.ID, "account_locked")
		g.timing.WaitFrom(ctx, start)
		return models.ErrAccountLocked
	}
	account.FailedAttempts = 0

	return nil
}

// recordFailure increments the failure counter in one statement and reports
// whether this attempt locked the account
func (g *LoginGuard) recordFailure(ctx context.Context, account *models.Account) error {
	limit := g.config.MaxFailedAttempts

	attempts, incremented, err := g.accounts.IncrementFailedAttempts(ctx, account.ID, limit, g.clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// deleted between lookup and check
			return models.ErrUnauthorized
		}
		return storeFailure(g.logger, "failed to record failed login attempt", err, slog.String("account_id", account.ID))
	}
	account.FailedAttempts = attempts

	if !incremented {
		// a concurrent attempt reached the limit first
		g.auditLogger.LogFailure(ctx, pkglogger.EventLoginFailed, account.ID, "account_locked")
		return models.ErrAccountLocked
	}

	if attempts < limit {
		g.logger.Info("login failed: invalid credentials",
			slog.String("account_id", account.ID),
			slog.Int("failed_attempts", attempts))
		g.auditLogger.LogFailure(ctx, pkglogger.EventLoginFailed, account.ID, "invalid_credentials")
		return models.ErrUnauthorized
	}

	account.Status = models.AccountStatusLocked
	g.logger.Warn("account locked after repeated login failures",
		slog.String("account_id", account.ID),
		slog.Int("failed_attempts", attempts))
	g.auditLogger.LogFailure(ctx, pkglogger.EventAccountLocked, account.ID, "max_failed_attempts")

	if g.config.LockoutPolicy == LockoutPolicyDelete {
		if err := g.accounts.Delete(ctx, account.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			g.logger.Error("failed to delete locked account",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		} else {
			g.auditLogger.LogSuccess(ctx, pkglogger.EventAccountDeleted, account.ID)
		}
	}

	return models.ErrAccountLocked
}

func (g *LoginGuard) dummyPasswordHash() string {
	g.dummyOnce.Do(func() {
		hash, err := pkgauth.HashPassword("warden-timing-equalizer-0")
		if err != nil {
			g.logger.Error("failed to build dummy password hash", slog.Any("error", err))
			return
		}
		g.dummyHash = hash
	})
	return g.dummyHash
}
