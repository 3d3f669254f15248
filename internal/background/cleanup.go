package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
)

// RefreshTokenPurger deletes refresh tokens past their expiry
type RefreshTokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// OTPPurger deletes expired codes and consumed codes older than usedBefore
type OTPPurger interface {
	DeleteStale(ctx context.Context, now, usedBefore time.Time) (int64, error)
}

// CleanupManager periodically removes expired refresh tokens and stale
// one-time codes. Expired rows are already rejected on read, so this only
// bounds table growth.
type CleanupManager struct {
	tokens    RefreshTokenPurger
	otps      OTPPurger
	clock     clock.Clock
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	tokens RefreshTokenPurger,
	otps OTPPurger,
	clk clock.Clock,
	logger *slog.Logger,
	interval, retention time.Duration,
) *CleanupManager {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		tokens:    tokens,
		otps:      otps,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then once per interval until Stop is
// called or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single cleanup pass. Failures are logged and the next
// pass retries.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.clock.Now()

	if cm.tokens != nil {
		rows, err := cm.tokens.DeleteExpired(cleanupCtx, now)
		if err != nil {
			cm.logger.Error("failed to delete expired refresh tokens", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("expired refresh tokens deleted", slog.Int64("rows_deleted", rows))
		}
	}

	if cm.otps != nil {
		rows, err := cm.otps.DeleteStale(cleanupCtx, now, now.Add(-cm.retention))
		if err != nil {
			cm.logger.Error("failed to delete stale otp codes", slog.Any("error", err))
		} else if rows > 0 {
			cm.logger.Info("stale otp codes deleted", slog.Int64("rows_deleted", rows))
		}
	}
}

// Stop signals the cleanup manager to stop. It is safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
