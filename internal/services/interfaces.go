package services

import (
	"context"
	"time"

	"github.com/BradenHooton/warden/internal/models"
)

// AccountRepository defines the account operations the services need
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	FindConflict(ctx context.Context, excludeID, username, email string, phone *string) (string, error)
	UpdateProfile(ctx context.Context, account *models.Account, now time.Time) (*models.Account, error)
	IncrementFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int, bool, error)
	ResetFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int64, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository defines refresh token storage
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteByHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) (int64, error)
}

// OTPRepository defines one-time code storage
type OTPRepository interface {
	CreateIfNoneActive(ctx context.Context, otp *models.OTPCode) error
	FindUnusedForUpdate(ctx context.Context, accountID, purpose, code string) (*models.OTPCode, error)
	MarkUsed(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn in a transaction. Repository calls made with the ctx
// passed to fn join it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OTPVerifyLimiter caps code submissions per account and purpose
type OTPVerifyLimiter interface {
	Check(ctx context.Context, accountID, purpose string) error
	Reset(ctx context.Context, accountID, purpose string) error
}
