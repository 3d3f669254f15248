package services

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/notify"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
)

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	CreateFunc                  func(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByIDFunc                 func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.Account, error)
	GetByIdentifierFunc         func(ctx context.Context, identifier string) (*models.Account, error)
	FindConflictFunc            func(ctx context.Context, excludeID, username, email string, phone *string) (string, error)
	UpdateProfileFunc           func(ctx context.Context, account *models.Account, now time.Time) (*models.Account, error)
	IncrementFailedAttemptsFunc func(ctx context.Context, id string, maxFailed int, now time.Time) (int, bool, error)
	ResetFailedAttemptsFunc     func(ctx context.Context, id string, maxFailed int, now time.Time) (int64, error)
	UpdatePasswordFunc          func(ctx context.Context, id, passwordHash string, now time.Time) error
	DeleteFunc                  func(ctx context.Context, id string) error
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) FindConflict(ctx context.Context, excludeID, username, email string, phone *string) (string, error) {
	if m.FindConflictFunc != nil {
		return m.FindConflictFunc(ctx, excludeID, username, email, phone)
	}
	return "", nil
}

func (m *MockAccountRepository) UpdateProfile(ctx context.Context, account *models.Account, now time.Time) (*models.Account, error) {
	if m.UpdateProfileFunc != nil {
		return m.UpdateProfileFunc(ctx, account, now)
	}
	return account, nil
}

func (m *MockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int, bool, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id, maxFailed, now)
	}
	return 1, true, nil
}

func (m *MockAccountRepository) ResetFailedAttempts(ctx context.Context, id string, maxFailed int, now time.Time) (int64, error) {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id, maxFailed, now)
	}
	return 1, nil
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash, now)
	}
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MockRefreshTokenRepository implements RefreshTokenRepository for testing
type MockRefreshTokenRepository struct {
	CreateFunc          func(ctx context.Context, token *models.RefreshToken) error
	GetByHashFunc       func(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteByHashFunc    func(ctx context.Context, tokenHash string) (int64, error)
	DeleteByAccountFunc func(ctx context.Context, accountID string) (int64, error)
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	return nil
}

func (m *MockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (int64, error) {
	if m.DeleteByHashFunc != nil {
		return m.DeleteByHashFunc(ctx, tokenHash)
	}
	return 0, nil
}

func (m *MockRefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID string) (int64, error) {
	if m.DeleteByAccountFunc != nil {
		return m.DeleteByAccountFunc(ctx, accountID)
	}
	return 0, nil
}

// MockTransactor runs fn directly with no isolation
type MockTransactor struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *MockTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// MockNotifier records every message it is asked to send
type MockNotifier struct {
	SendOTPFunc func(ctx context.Context, msg notify.OTPMessage) error

	mu   sync.Mutex
	sent []notify.OTPMessage
}

func (m *MockNotifier) SendOTP(ctx context.Context, msg notify.OTPMessage) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, msg)
	}
	return nil
}

// Sent returns a copy of the messages passed to SendOTP
func (m *MockNotifier) Sent() []notify.OTPMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.OTPMessage(nil), m.sent...)
}

// LastCode returns the code of the most recent message, or ""
func (m *MockNotifier) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Code
}

// MockOTPVerifyLimiter implements OTPVerifyLimiter for testing
type MockOTPVerifyLimiter struct {
	CheckFunc func(ctx context.Context, accountID, purpose string) error
	ResetFunc func(ctx context.Context, accountID, purpose string) error
}

func (m *MockOTPVerifyLimiter) Check(ctx context.Context, accountID, purpose string) error {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx, accountID, purpose)
	}
	return nil
}

func (m *MockOTPVerifyLimiter) Reset(ctx context.Context, accountID, purpose string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, accountID, purpose)
	}
	return nil
}

// NewTestAccount creates an active account whose password is password
func NewTestAccount(id, username, email, password string) *models.Account {
	hash, _ := pkgauth.HashPassword(password)
	now := time.Now().UTC()
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		FullName:     "Test " + username,
		PasswordHash: hash,
		Status:       models.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
