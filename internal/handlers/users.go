package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// ProfileService reads and edits the account behind an access token
type ProfileService interface {
	Profile(ctx context.Context, accountID string) (*services.AccountResponse, error)
	UpdateProfile(ctx context.Context, accountID string, input services.UpdateProfileInput) (*services.AccountResponse, error)
}

// UserHandler handles account profile requests
type UserHandler struct {
	service ProfileService
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service ProfileService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

// Me returns the signed-in account
//
// @Summary Current account
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.AccountResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /api/users/me [get]
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := auth.SubjectFromRequest(r)
	if accountID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	account, err := h.service.Profile(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account)
}

// UpdateMe replaces the profile fields of the signed-in account
//
// @Summary Update current account
// @Security BearerAuth
// @Accept json
// @Param request body UpdateProfileRequest true "Profile"
// @Produce json
// @Success 200 {object} services.AccountResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /api/users/me [put]
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	accountID := auth.SubjectFromRequest(r)
	if accountID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req UpdateProfileRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	account, err := h.service.UpdateProfile(r.Context(), accountID, services.UpdateProfileInput{
		Email:       req.Email,
		Phone:       req.Phone,
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Address:     req.Address,
		Gender:      req.Gender,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, account)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Health reports database reachability
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "up"})
	}
}
