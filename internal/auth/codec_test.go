package auth

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret = "access-secret-for-tests-0123456789"
	testAuxSecret    = "aux-secret-for-tests-9876543210abc"
)

var codecEpoch = time.Date(2026, 5, 10, 8, 30, 0, 0, time.UTC)

func newTestCodec(t *testing.T, secret string) (*Codec, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(codecEpoch)
	codec, err := NewCodec(secret, clk)
	require.NoError(t, err)
	return codec, clk
}

// ============================================================================
// Round trip
// ============================================================================

func TestCodec_RoundTrip(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	payloads := []Claims{
		{ClaimSubject: "acc-1"},
		{ClaimSubject: "acc-2", ClaimUsername: "alice"},
		{ClaimSubject: "acc-3", ClaimUsername: "bob", "role": "member", "device": "ios"},
		{ClaimSubject: "unicode-ñ", "note": "a.b.c with dots and = signs"},
	}

	for _, claims := range payloads {
		t.Run(claims.Subject(), func(t *testing.T) {
			token, err := codec.Issue(claims, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 3, len(strings.Split(token, ".")))
			assert.NotContains(t, token, "=")

			got, err := codec.Verify(token)
			require.NoError(t, err)

			assert.Len(t, got, len(claims)+1)
			for k, v := range claims {
				assert.Equal(t, v, got[k], "claim %q", k)
			}

			exp, ok := got.ExpiresAt()
			require.True(t, ok)
			assert.Equal(t, codecEpoch.Add(time.Hour).Unix(), exp.Unix())
		})
	}
}

func TestCodec_IssueOverridesCallerExpiry(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	token, err := codec.Issue(Claims{ClaimSubject: "acc-1", ClaimExpiry: int64(1)}, time.Minute)
	require.NoError(t, err)

	got, err := codec.Verify(token)
	require.NoError(t, err)
	exp, _ := got.ExpiresAt()
	assert.Equal(t, codecEpoch.Add(time.Minute).Unix(), exp.Unix())
}

func TestCodec_IssueRequiresSubject(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	_, err := codec.Issue(Claims{ClaimUsername: "alice"}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func TestNewCodec_RejectsEmptySecret(t *testing.T) {
	_, err := NewCodec("", nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

// ============================================================================
// Tamper detection
// ============================================================================

func TestCodec_SignatureTamperDetected(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	payloads := []Claims{
		{ClaimSubject: "acc-1"},
		{ClaimSubject: "acc-2", ClaimUsername: "alice", "role": "member"},
	}

	for _, claims := range payloads {
		token, err := codec.Issue(claims, time.Hour)
		require.NoError(t, err)

		lastDot := strings.LastIndex(token, ".")
		signature := token[lastDot+1:]

		for i := range signature {
			replacement := byte('A')
			if signature[i] == 'A' {
				replacement = 'B'
			}
			tampered := []byte(token)
			tampered[lastDot+1+i] = replacement

			_, err := codec.Verify(string(tampered))
			assert.ErrorIs(t, err, ErrBadSignature, "position %d of %s", i, claims.Subject())
		}
	}
}

func TestCodec_PayloadTamperDetected(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	token, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(token, ".")

	forged, _ := json.Marshal(map[string]any{ClaimSubject: "acc-admin", ClaimExpiry: codecEpoch.Add(time.Hour).Unix()})
	parts[1] = segmentEncoding.EncodeToString(forged)

	_, err = codec.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestCodec_SecretsDoNotCrossVerify(t *testing.T) {
	access, _ := newTestCodec(t, testAccessSecret)
	aux, _ := newTestCodec(t, testAuxSecret)

	token, err := aux.Issue(Claims{ClaimSubject: "acc-1", ClaimPurpose: "password_change"}, time.Minute)
	require.NoError(t, err)

	_, err = access.Verify(token)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = aux.Verify(token)
	assert.NoError(t, err)
}

// ============================================================================
// Expiry
// ============================================================================

func TestCodec_NegativeTTLIsExpired(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	token, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, -1*time.Second)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestCodec_ExpiresWhenClockPassesExp(t *testing.T) {
	codec, clk := newTestCodec(t, testAccessSecret)

	token, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, time.Hour)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = codec.Verify(token)
	assert.NoError(t, err, "exp equal to now is still valid")

	clk.Advance(time.Second)
	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// ============================================================================
// Malformed input
// ============================================================================

func TestCodec_MalformedTokens(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	valid, err := codec.Issue(Claims{ClaimSubject: "acc-1"}, time.Hour)
	require.NoError(t, err)
	parts := strings.Split(valid, ".")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", parts[0] + "." + parts[1]},
		{"four segments", valid + ".extra"},
		{"empty header", "." + parts[1] + "." + parts[2]},
		{"empty payload", parts[0] + ".." + parts[2]},
		{"empty signature", parts[0] + "." + parts[1] + "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestCodec_SignedGarbagePayloadIsMalformed(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	signingInput := encodedHeader + "." + segmentEncoding.EncodeToString([]byte("not json"))
	token := signingInput + "." + codec.sign(signingInput)

	_, err := codec.Verify(token)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestCodec_SignedNonNumericExpiryIsMalformed(t *testing.T) {
	codec, _ := newTestCodec(t, testAccessSecret)

	payload, _ := json.Marshal(map[string]any{ClaimSubject: "acc-1", ClaimExpiry: "tomorrow"})
	signingInput := encodedHeader + "." + segmentEncoding.EncodeToString(payload)
	token := signingInput + "." + codec.sign(signingInput)

	_, err := codec.Verify(token)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

// ============================================================================
// Wire compatibility with a standard JWT implementation
// ============================================================================

func TestCodec_InteropWithJWTLibrary(t *testing.T) {
	codec, err := NewCodec(testAccessSecret, clock.System{})
	require.NoError(t, err)

	keyFunc := func(*jwt.Token) (any, error) { return []byte(testAccessSecret), nil }

	t.Run("our token parses with jwt", func(t *testing.T) {
		token, err := codec.Issue(Claims{ClaimSubject: "acc-1", ClaimUsername: "alice"}, time.Hour)
		require.NoError(t, err)

		parsed, err := jwt.Parse(token, keyFunc, jwt.WithValidMethods([]string{"HS256"}))
		require.NoError(t, err)
		require.True(t, parsed.Valid)

		mapClaims := parsed.Claims.(jwt.MapClaims)
		assert.Equal(t, "acc-1", mapClaims["sub"])
		assert.Equal(t, "alice", mapClaims["username"])
	})

	t.Run("jwt token verifies with codec", func(t *testing.T) {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "acc-2",
			"exp": time.Now().Add(time.Hour).Unix(),
		}).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)

		claims, err := codec.Verify(signed)
		require.NoError(t, err)
		assert.Equal(t, "acc-2", claims.Subject())
	})
}
