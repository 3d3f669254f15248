package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// AuthService is the entry point for account, session and password
// operations. It maps internal failures onto the sentinel errors in models.
type AuthService struct {
	accounts    AccountRepository
	sessions    *SessionService
	otp         *OTPService
	grants      *auth.Codec
	clock       clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService. grants signs the short-lived
// password-change grant and must use a different secret from access tokens.
func NewAuthService(
	accounts AccountRepository,
	sessions *SessionService,
	otp *OTPService,
	grants *auth.Codec,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	if clk == nil {
		clk = clock.System{}
	}
	return &AuthService{
		accounts:    accounts,
		sessions:    sessions,
		otp:         otp,
		grants:      grants,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

type RegisterInput struct {
	Username    string
	Email       string
	Phone       string
	Password    string
	FullName    string
	DateOfBirth string // YYYY-MM-DD
	Address     string
	Gender      string
}

// UpdateProfileInput replaces the editable profile fields. An empty Phone,
// DateOfBirth, Address or Gender clears the stored value.
type UpdateProfileInput struct {
	Email       string
	Phone       string
	FullName    string
	DateOfBirth string // YYYY-MM-DD
	Address     string
	Gender      string
}

type LoginInput struct {
	Identifier string // username, email or phone
	Password   string
	IPAddress  string
	UserAgent  string
}

type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	Code            string
	NewPassword     string
	Grant           string // optional, from RequestPasswordChange
}

// AccountResponse represents an account in the HTTP response
type AccountResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Phone       *string `json:"phone,omitempty"`
	FullName    string  `json:"full_name"`
	DateOfBirth string  `json:"date_of_birth,omitempty"`
	Address     string  `json:"address,omitempty"`
	Gender      string  `json:"gender,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// AuthResponse represents the response from login and refresh
type AuthResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int64            `json:"expires_in"`
	User         *AccountResponse `json:"user"`
}

// OTPGrantResponse is returned when a password-change code is sent
type OTPGrantResponse struct {
	Grant     string `json:"grant,omitempty"`
	ExpiresIn int64  `json:"expires_in"`
}

func accountModelToResponse(account *models.Account) *AccountResponse {
	resp := &AccountResponse{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		Phone:     account.Phone,
		FullName:  account.FullName,
		Address:   account.Address,
		Gender:    account.Gender,
		CreatedAt: account.CreatedAt.UTC().Format(time.RFC3339),
	}
	if account.DateOfBirth != nil {
		resp.DateOfBirth = account.DateOfBirth.Format(dateOfBirthLayout)
	}
	return resp
}

func sessionToResponse(session *Session) *AuthResponse {
	return &AuthResponse{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    session.ExpiresIn,
		User:         accountModelToResponse(session.Account),
	}
}

// Register creates an account. It does not log the account in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AccountResponse, error) {
	now := s.clock.Now()
	dob, err := validateRegistration(&input, now)
	if err != nil {
		return nil, err
	}

	var phone *string
	if input.Phone != "" {
		phone = &input.Phone
	}

	field, err := s.accounts.FindConflict(ctx, "", input.Username, input.Email, phone)
	if err != nil {
		return nil, storeFailure(s.logger, "failed to check account uniqueness", err)
	}
	if field != "" {
		s.logger.Info("registration rejected: duplicate identity", slog.String("field", field))
		return nil, &models.ConflictError{Field: field}
	}

	hash, err := pkgauth.HashPassword(input.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account, err := s.accounts.Create(ctx, &models.Account{
		Username:     input.Username,
		Email:        input.Email,
		Phone:        phone,
		FullName:     input.FullName,
		DateOfBirth:  dob,
		Address:      input.Address,
		Gender:       input.Gender,
		PasswordHash: hash,
		Status:       models.AccountStatusActive,
		CreatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// lost a race with a concurrent registration
			return nil, models.ErrConflict
		}
		return nil, storeFailure(s.logger, "failed to create account", err)
	}

	s.logger.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)))
	s.auditLogger.LogSuccess(ctx, pkglogger.EventRegister, account.ID)

	return accountModelToResponse(account), nil
}

// Login authenticates and opens a session. Unknown accounts and wrong
// passwords are both ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	ctx = pkglogger.WithRequestInfo(ctx, input.IPAddress, input.UserAgent)

	session, err := s.sessions.Login(ctx, input.Identifier, input.Password)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	session, err := s.sessions.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return sessionToResponse(session), nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Logout(ctx, refreshToken)
}

// RequestPasswordReset emails a reset code to the account registered under email
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return models.ErrNotFound
		}
		return storeFailure(s.logger, "failed to look up account", err)
	}

	_, err = s.otp.Request(ctx, account, models.OTPPurposePasswordReset)
	return err
}

// ResetPassword sets a new password using an emailed reset code. Every
// refresh token of the account is revoked and the account is unlocked.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidCode
		}
		return storeFailure(s.logger, "failed to look up account", err)
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	_, err = s.otp.VerifyAndConsume(ctx, account.ID, models.OTPPurposePasswordReset, code, s.replacePassword(account.ID, hash))
	if err != nil {
		return err
	}

	s.logger.Info("password reset", slog.String("account_id", account.ID))
	s.auditLogger.LogSuccess(ctx, pkglogger.EventPasswordReset, account.ID)
	return nil
}

// RequestPasswordChange emails a change code after checking the current
// password. The returned grant binds the follow-up call to this account.
func (s *AuthService) RequestPasswordChange(ctx context.Context, accountID, currentPassword string) (*OTPGrantResponse, error) {
	account, err := s.authenticateCurrent(ctx, accountID, currentPassword)
	if err != nil {
		return nil, err
	}

	otp, err := s.otp.Request(ctx, account, models.OTPPurposePasswordChange)
	if err != nil {
		return nil, err
	}

	ttl := otp.ExpiresAt.Sub(s.clock.Now())
	resp := &OTPGrantResponse{ExpiresIn: int64(ttl.Seconds())}

	if s.grants != nil {
		grant, err := s.grants.Issue(auth.Claims{
			auth.ClaimSubject: account.ID,
			auth.ClaimPurpose: models.OTPPurposePasswordChange,
		}, ttl)
		if err != nil {
			s.logger.Error("failed to issue password change grant", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		resp.Grant = grant
	}

	return resp, nil
}

// ChangePassword sets a new password for a signed-in account. The current
// password is checked again here, not only when the code was requested.
func (s *AuthService) ChangePassword(ctx context.Context, input ChangePasswordInput) error {
	if input.Grant != "" {
		if err := s.checkGrant(input.Grant, input.AccountID); err != nil {
			return err
		}
	}

	if err := validateNewPassword(input.NewPassword); err != nil {
		return err
	}
	if input.NewPassword == input.CurrentPassword {
		return models.NewValidationError("new_password", "must differ from the current password")
	}

	account, err := s.authenticateCurrent(ctx, input.AccountID, input.CurrentPassword)
	if err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(input.NewPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	_, err = s.otp.VerifyAndConsume(ctx, account.ID, models.OTPPurposePasswordChange, input.Code, s.replacePassword(account.ID, hash))
	if err != nil {
		return err
	}

	s.logger.Info("password changed", slog.String("account_id", account.ID))
	s.auditLogger.LogSuccess(ctx, pkglogger.EventPasswordChanged, account.ID)
	return nil
}

// Profile returns the account behind an access token subject
func (s *AuthService) Profile(ctx context.Context, accountID string) (*AccountResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, storeFailure(s.logger, "failed to load account", err, slog.String("account_id", accountID))
	}
	return accountModelToResponse(account), nil
}

// UpdateProfile replaces the editable fields of an account. Username and
// password are not editable here. An email or phone held by another account
// is a ConflictError, as is a phone equal to another account's username.
func (s *AuthService) UpdateProfile(ctx context.Context, accountID string, input UpdateProfileInput) (*AccountResponse, error) {
	normalizeProfile(&input)
	dob, err := validateProfile(&input, s.clock.Now())
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, storeFailure(s.logger, "failed to load account", err, slog.String("account_id", accountID))
	}

	var phone *string
	if input.Phone != "" {
		phone = &input.Phone
	}

	// username is not editable here, so only email and phone are checked
	field, err := s.accounts.FindConflict(ctx, account.ID, "", input.Email, phone)
	if err != nil {
		return nil, storeFailure(s.logger, "failed to check account uniqueness", err, slog.String("account_id", accountID))
	}
	if field != "" {
		s.logger.Info("profile update rejected: duplicate identity",
			slog.String("account_id", accountID),
			slog.String("field", field))
		s.auditLogger.LogFailure(ctx, pkglogger.EventProfileUpdated, accountID, "duplicate_"+field)
		return nil, &models.ConflictError{Field: field}
	}

	account.Email = input.Email
	account.Phone = phone
	account.FullName = input.FullName
	account.DateOfBirth = dob
	account.Address = input.Address
	account.Gender = input.Gender

	updated, err := s.accounts.UpdateProfile(ctx, account, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil, models.ErrNotFound
		case errors.Is(err, models.ErrConflict):
			// lost a race with another write of the same email or phone
			return nil, models.ErrConflict
		}
		return nil, storeFailure(s.logger, "failed to update profile", err, slog.String("account_id", accountID))
	}

	s.logger.Info("profile updated", slog.String("account_id", accountID))
	s.auditLogger.LogSuccess(ctx, pkglogger.EventProfileUpdated, accountID)

	return accountModelToResponse(updated), nil
}

// replacePassword stores the new hash and then revokes every refresh token.
// It runs inside the code-consuming transaction, so both steps commit together.
func (s *AuthService) replacePassword(accountID, passwordHash string) func(ctx context.Context, otp *models.OTPCode) error {
	return func(ctx context.Context, otp *models.OTPCode) error {
		if err := s.accounts.UpdatePassword(ctx, accountID, passwordHash, s.clock.Now()); err != nil {
			return err
		}
		_, err := s.sessions.InvalidateAllSessions(ctx, accountID)
		return err
	}
}

func (s *AuthService) authenticateCurrent(ctx context.Context, accountID, password string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, storeFailure(s.logger, "failed to load account", err, slog.String("account_id", accountID))
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.logger.Info("password change rejected: wrong current password", slog.String("account_id", accountID))
		s.auditLogger.LogFailure(ctx, pkglogger.EventPasswordChanged, accountID, "invalid_current_password")
		return nil, models.ErrUnauthorized
	}
	return account, nil
}

func (s *AuthService) checkGrant(grant, accountID string) error {
	if s.grants == nil {
		return nil
	}
	claims, err := s.grants.Verify(strings.TrimSpace(grant))
	if err != nil {
		s.logger.Info("password change grant rejected", slog.Any("error", err))
		return models.ErrUnauthorized
	}
	if claims.Subject() != accountID || claims.String(auth.ClaimPurpose) != models.OTPPurposePasswordChange {
		s.logger.Warn("password change grant does not match account", slog.String("account_id", accountID))
		return models.ErrUnauthorized
	}
	return nil
}
