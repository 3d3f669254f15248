package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/middleware"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestRouter(t *testing.T, limits Limits) (http.Handler, *auth.Codec) {
	t.Helper()
	codec, err := auth.NewCodec(testSecret, clock.System{})
	require.NoError(t, err)

	service := &handlers.MockAuthService{}
	router := chi.NewRouter()
	RegisterRoutes(router,
		handlers.NewAuthHandler(service, nil, nil),
		handlers.NewUserHandler(service, nil),
		codec, limits, nil)
	return router, codec
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	router, _ := newTestRouter(t, Limits{Auth: middleware.DefaultAuthRateLimit(), OTP: middleware.DefaultOTPRateLimit()})

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/users/me"},
		{"PUT", "/api/users/me"},
		{"POST", "/api/auth/change-password/request-otp"},
		{"POST", "/api/auth/change-password/verify"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
	}
}

func TestProtectedRouteWithBearer(t *testing.T) {
	router, codec := newTestRouter(t, Limits{Auth: middleware.DefaultAuthRateLimit(), OTP: middleware.DefaultOTPRateLimit()})

	token, err := codec.Issue(auth.Claims{auth.ClaimSubject: "acct-1"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// the mock profile service reports a missing account
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := `{"email":"alice@x.com","full_name":"Alice"}`
	req = httptest.NewRequest("PUT", "/api/users/me", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicRoutesAreRateLimited(t *testing.T) {
	limit := middleware.RateLimitConfig{Requests: 2, Window: time.Minute}
	router, _ := newTestRouter(t, Limits{Auth: limit, OTP: limit})

	body := `{"identifier":"alice","password":"pw123456"}`
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body)))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
