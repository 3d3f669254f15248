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

type SessionConfig struct {
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration
	RotateRefreshTokens bool
}

// Session is an access token plus the refresh token that renews it
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // access token lifetime in seconds
	Account      *models.Account
}

// SessionService issues access tokens and manages stored refresh tokens
type SessionService struct {
	accounts    AccountRepository
	tokens      RefreshTokenRepository
	tx          Transactor
	guard       *LoginGuard
	codec       *auth.Codec
	clock       clock.Clock
	config      SessionConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewSessionService(
	accounts AccountRepository,
	tokens RefreshTokenRepository,
	tx Transactor,
	guard *LoginGuard,
	codec *auth.Codec,
	clk clock.Clock,
	cfg SessionConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *SessionService {
	if clk == nil {
		clk = clock.System{}
	}
	return &SessionService{
		accounts:    accounts,
		tokens:      tokens,
		tx:          tx,
		guard:       guard,
		codec:       codec,
		clock:       clk,
		config:      cfg,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login authenticates by username, email or phone and opens a session.
// An unknown identifier returns ErrNotFound.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	start := time.Now()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, s.guard.Check(ctx, start, nil, password)
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, s.guard.Check(ctx, start, nil, password)
		}
		return nil, storeFailure(s.logger, "failed to look up account", err)
	}

	if err := s.guard.Check(ctx, start, account, password); err != nil {
		return nil, err
	}

	session, err := s.open(ctx, account)
	if err != nil {
		return nil, err
	}

	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.auditLogger.LogSuccess(ctx, pkglogger.EventLoginSuccess, account.ID)
	return session, nil
}

// Refresh issues a new access token for a stored, unexpired refresh token.
// With rotation enabled the presented token is replaced in one transaction.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken == "" {
		return nil, models.ErrUnauthorized
	}
	tokenHash := pkgauth.HashToken(refreshToken)

	stored, err := s.tokens.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("refresh rejected: unknown token")
			return nil, models.ErrUnauthorized
		}
		return nil, storeFailure(s.logger, "failed to look up refresh token", err)
	}

	if stored.IsExpired(s.clock.Now()) {
		if _, err := s.tokens.DeleteByHash(ctx, tokenHash); err != nil {
			s.logger.Warn("failed to delete expired refresh token",
				slog.String("account_id", stored.AccountID),
				slog.Any("error", err))
		}
		s.logger.Info("refresh rejected: token expired", slog.String("account_id", stored.AccountID))
		return nil, models.ErrUnauthorized
	}

	account, err := s.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, storeFailure(s.logger, "failed to load account for refresh", err, slog.String("account_id", stored.AccountID))
	}

	var session *Session
	if s.config.RotateRefreshTokens {
		err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
			deleted, err := s.tokens.DeleteByHash(ctx, tokenHash)
			if err != nil {
				return err
			}
			if deleted == 0 {
				// a concurrent refresh already rotated this token
				return models.ErrUnauthorized
			}
			session, err = s.open(ctx, account)
			return err
		})
		if err != nil {
			if errors.Is(err, models.ErrUnauthorized) || errors.Is(err, models.ErrInternalServer) {
				return nil, err
			}
			return nil, storeFailure(s.logger, "failed to rotate refresh token", err, slog.String("account_id", account.ID))
		}
	} else {
		accessToken, err := s.mintAccessToken(account)
		if err != nil {
			return nil, err
		}
		session = &Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
			Account:      account,
		}
	}

	s.auditLogger.LogSuccess(ctx, pkglogger.EventTokenRefreshed, account.ID)
	return session, nil
}

// Logout deletes the refresh token. Unknown tokens are ignored.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken == "" {
		return nil
	}

	deleted, err := s.tokens.DeleteByHash(ctx, pkgauth.HashToken(refreshToken))
	if err != nil {
		return storeFailure(s.logger, "failed to delete refresh token", err)
	}
	if deleted > 0 {
		s.auditLogger.Log(ctx, pkglogger.AuditEvent{EventType: pkglogger.EventLogout, Success: true})
	}
	return nil
}

// InvalidateAllSessions deletes every refresh token of the account and
// returns how many were removed. Access tokens already issued stay valid
// until they expire.
func (s *SessionService) InvalidateAllSessions(ctx context.Context, accountID string) (int64, error) {
	deleted, err := s.tokens.DeleteByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("refresh tokens invalidated",
		slog.String("account_id", accountID),
		slog.Int64("count", deleted))
	return deleted, nil
}

// open mints an access token and stores a new refresh token for account
func (s *SessionService) open(ctx context.Context, account *models.Account) (*Session, error) {
	accessToken, err := s.mintAccessToken(account)
	if err != nil {
		return nil, err
	}

	refreshToken, err := pkgauth.GenerateRefreshToken()
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	err = s.tokens.Create(ctx, &models.RefreshToken{
		AccountID: account.ID,
		TokenHash: pkgauth.HashToken(refreshToken),
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt: now,
	})
	if err != nil {
		return nil, storeFailure(s.logger, "failed to store refresh token", err, slog.String("account_id", account.ID))
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
		Account:      account,
	}, nil
}

func (s *SessionService) mintAccessToken(account *models.Account) (string, error) {
	token, err := s.codec.Issue(auth.Claims{
		auth.ClaimSubject:  account.ID,
		auth.ClaimUsername: account.Username,
	}, s.config.AccessTokenTTL)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.String("account_id", account.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	return token, nil
}
