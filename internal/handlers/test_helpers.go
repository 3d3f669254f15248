package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds verified access token claims for accountID to the request
func WithAuthContext(req *http.Request, accountID, username string) *http.Request {
	claims := auth.Claims{
		auth.ClaimSubject:  accountID,
		auth.ClaimUsername: username,
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface and ProfileService for testing
type MockAuthService struct {
	RegisterFunc              func(ctx context.Context, input services.RegisterInput) (*services.AccountResponse, error)
	LoginFunc                 func(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error)
	RefreshFunc               func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	LogoutFunc                func(ctx context.Context, refreshToken string) error
	RequestPasswordResetFunc  func(ctx context.Context, email string) error
	ResetPasswordFunc         func(ctx context.Context, email, code, newPassword string) error
	RequestPasswordChangeFunc func(ctx context.Context, accountID, currentPassword string) (*services.OTPGrantResponse, error)
	ChangePasswordFunc        func(ctx context.Context, input services.ChangePasswordInput) error
	ProfileFunc               func(ctx context.Context, accountID string) (*services.AccountResponse, error)
	UpdateProfileFunc         func(ctx context.Context, accountID string, input services.UpdateProfileInput) (*services.AccountResponse, error)
}

func (m *MockAuthService) Register(ctx context.Context, input services.RegisterInput) (*services.AccountResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, input)
}

func (m *MockAuthService) Login(ctx context.Context, input services.LoginInput) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, input)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RefreshFunc(ctx, refreshToken)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, refreshToken)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.RequestPasswordResetFunc == nil {
		return nil
	}
	return m.RequestPasswordResetFunc(ctx, email)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrInvalidCode
	}
	return m.ResetPasswordFunc(ctx, email, code, newPassword)
}

func (m *MockAuthService) RequestPasswordChange(ctx context.Context, accountID, currentPassword string) (*services.OTPGrantResponse, error) {
	if m.RequestPasswordChangeFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.RequestPasswordChangeFunc(ctx, accountID, currentPassword)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, input services.ChangePasswordInput) error {
	if m.ChangePasswordFunc == nil {
		return models.ErrInvalidCode
	}
	return m.ChangePasswordFunc(ctx, input)
}

func (m *MockAuthService) Profile(ctx context.Context, accountID string) (*services.AccountResponse, error) {
	if m.ProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ProfileFunc(ctx, accountID)
}

func (m *MockAuthService) UpdateProfile(ctx context.Context, accountID string, input services.UpdateProfileInput) (*services.AccountResponse, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, accountID, input)
}

// MockPinger implements Pinger for testing
type MockPinger struct {
	HealthCheckFunc func(ctx context.Context) error
}

func (m *MockPinger) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFunc == nil {
		return nil
	}
	return m.HealthCheckFunc(ctx)
}
