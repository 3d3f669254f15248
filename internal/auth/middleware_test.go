package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = SubjectFromRequest(r)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidTokenInjectsClaims(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)
	token, err := codec.Issue(Claims{ClaimSubject: "acc-42", ClaimUsername: "alice"}, time.Hour)
	require.NoError(t, err)

	var subject string
	handler := Middleware(codec)(protectedHandler(&subject))

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acc-42", subject)
}

func TestMiddleware_RejectsUniformly(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)
	other, _ := newTestCodec(t, testAuxSecret)

	valid, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, time.Hour)
	require.NoError(t, err)
	expired, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, -time.Second)
	require.NoError(t, err)
	foreign, err := other.Issue(Claims{ClaimSubject: "acc-1"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + valid},
		{"empty bearer", "Bearer "},
		{"malformed", "Bearer not-a-token"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Middleware(codec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.False(t, called, "handler must not run")
			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var resp pkghttp.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "unauthorized", resp.Error)
			bodies = append(bodies, w.Body.String())
		})
	}

	for _, body := range bodies {
		assert.Equal(t, bodies[0], body, "every rejection must look the same")
	}
}

func TestSubjectFromRequest_NoClaims(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", SubjectFromRequest(req))
}
