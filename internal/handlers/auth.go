package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 16

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, input services.RegisterInput) (*services.AccountResponse, error)
	Login(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	RequestPasswordChange(ctx context.Context, accountID, currentPassword string) (*services.OTPGrantResponse, error)
	ChangePassword(ctx context.Context, input services.ChangePasswordInput) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Register handles account registration
// @Summary Register an account
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} services.AccountResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	account, err := h.service.Register(r.Context(), services.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    req.Password,
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		Gender:      req.Gender,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, account)
}

// Login handles login by username, email or phone
// @Summary Log in
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	authResp, err := h.service.Login(r.Context(), services.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		IPAddress:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent:  r.Header.Get("User-Agent"),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Refresh exchanges a refresh token for a new access token
// @Summary Refresh access token
// @Accept json
// @Param request body RefreshTokenRequest true "Refresh token request"
// @Produce json
// @Success 200 {object} services.AuthResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /api/auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	authResp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, authResp)
}

// Logout deletes the presented refresh token. Unknown tokens are acknowledged.
// @Summary Log out
// @Accept json
// @Param request body RefreshTokenRequest true "Logout request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// ForgotPasswordRequestOTP emails a password reset code
// @Summary Request a password reset code
// @Accept json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Failure 429 {object} pkghttp.ErrorResponse
// @Failure 502 {object} pkghttp.ErrorResponse
// @Router /api/auth/forgot-password/request-otp [post]
func (h *AuthHandler) ForgotPasswordRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{Message: "Verification code sent"})
}

// ForgotPasswordVerify sets a new password using an emailed reset code
// @Summary Reset password with a code
// @Accept json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /api/auth/forgot-password/verify [post]
func (h *AuthHandler) ForgotPasswordVerify(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// ChangePasswordRequestOTP emails a password change code to the signed-in account
// @Summary Request a password change code
// @Accept json
// @Security BearerAuth
// @Param request body ChangePasswordOTPRequest true "Change password code request"
// @Produce json
// @Success 202 {object} services.OTPGrantResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 403 {object} pkghttp.ErrorResponse
// @Router /api/auth/change-password/request-otp [post]
func (h *AuthHandler) ChangePasswordRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordOTPRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	accountID, ok := authorizeAccount(w, r, req.AccountID)
	if !ok {
		return
	}

	grant, err := h.service.RequestPasswordChange(r.Context(), accountID, req.CurrentPassword)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, grant)
}

// ChangePasswordVerify sets a new password for the signed-in account
// @Summary Change password with a code
// @Accept json
// @Security BearerAuth
// @Param request body ChangePasswordRequest true "Change password request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /api/auth/change-password/verify [post]
func (h *AuthHandler) ChangePasswordVerify(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	accountID, ok := authorizeAccount(w, r, req.AccountID)
	if !ok {
		return
	}

	err := h.service.ChangePassword(r.Context(), services.ChangePasswordInput{
		AccountID:       accountID,
		CurrentPassword: req.CurrentPassword,
		Code:            req.Code,
		NewPassword:     req.NewPassword,
		Grant:           req.Grant,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// decodeRequest reads and validates a JSON body into dst. On failure it
// writes the 400 response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// authorizeAccount returns the token subject. A body account_id, when
// present, must name the same account.
func authorizeAccount(w http.ResponseWriter, r *http.Request, bodyAccountID string) (string, bool) {
	subject := auth.SubjectFromRequest(r)
	if subject == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return "", false
	}
	if bodyAccountID != "" && bodyAccountID != subject {
		pkghttp.WriteForbidden(w, "Forbidden: you cannot act on another account")
		return "", false
	}
	return subject, true
}

func writeValidationError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		pkghttp.WriteValidationError(w, ve.Field+": "+ve.Message)
		return
	}
	if ve != nil {
		pkghttp.WriteValidationError(w, ve.Message)
		return
	}
	pkghttp.WriteValidationError(w, "Invalid request")
}

// writeServiceError maps service errors onto HTTP responses. Storage detail
// never reaches the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var conflict *models.ConflictError

	switch {
	case errors.Is(err, models.ErrValidation):
		writeValidationError(w, err)
	case errors.As(err, &conflict):
		pkghttp.WriteConflict(w, conflict.Error())
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Account already exists")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrAccountLocked):
		pkghttp.WriteAccountLocked(w, "Account is locked. Reset your password to unlock it.")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteInvalidCode(w, "Invalid verification code")
	case errors.Is(err, models.ErrOTPExpired):
		pkghttp.WriteCodeExpired(w, "Verification code has expired")
	case errors.Is(err, models.ErrTooManyRequests):
		pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrDeliveryFailed):
		pkghttp.WriteDeliveryFailed(w, "Verification code could not be delivered")
	case errors.Is(err, models.ErrServiceUnavailable):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable")
	default:
		if !errors.Is(err, models.ErrInternalServer) {
			logger.Error("unmapped service error", slog.Any("error", err))
		}
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
