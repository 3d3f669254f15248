// Package auth signs and verifies compact bearer tokens and carries the
// verified claims through HTTP requests.
//
// Tokens have the form header.payload.signature. Each segment is base64url
// without padding and the signature is HMAC-SHA256 over "header.payload".
// Access tokens are never stored or revoked server-side; a short TTL is the
// only limit on a leaked token's lifetime. Refresh tokens are opaque and live
// in the credential store instead.
package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
)

// Claim names set or read by the codec
const (
	ClaimSubject  = "sub"
	ClaimExpiry   = "exp"
	ClaimUsername = "username"
	ClaimPurpose  = "purpose"
)

const signingAlgorithm = "HS256"

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token has expired")
	ErrMissingSubject = errors.New("token claims must include a subject")
	ErrEmptySecret    = errors.New("token secret must not be empty")
)

var segmentEncoding = base64.RawURLEncoding

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// encodedHeader is identical for every token this codec issues
var encodedHeader = func() string {
	raw, _ := json.Marshal(tokenHeader{Alg: signingAlgorithm, Typ: "JWT"})
	return segmentEncoding.EncodeToString(raw)
}()

// Claims is the decoded payload of a token. Numeric values decode as
// json.Number.
type Claims map[string]any

// Subject returns the sub claim, or "" when absent
func (c Claims) Subject() string {
	s, _ := c[ClaimSubject].(string)
	return s
}

// String returns a string claim, or "" when absent or not a string
func (c Claims) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// ExpiresAt returns the exp claim. ok is false when exp is absent or not numeric.
func (c Claims) ExpiresAt() (time.Time, bool) {
	raw, present := c[ClaimExpiry]
	if !present {
		return time.Time{}, false
	}
	secs, err := numericClaim(raw)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

func numericClaim(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric claim type %T", v)
	}
}

// Codec issues and verifies tokens under a single secret. Use one Codec per
// token class so a token can never verify under another class's secret.
type Codec struct {
	secret []byte
	clock  clock.Clock
}

// NewCodec creates a Codec bound to secret
func NewCodec(secret string, clk clock.Clock) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Codec{secret: []byte(secret), clock: clk}, nil
}

// Issue signs claims with exp = now + ttl, in whole seconds. Any exp already
// present in claims is replaced.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject() == "" {
		return "", ErrMissingSubject
	}

	payload := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		payload[k] = v
	}
	payload[ClaimExpiry] = c.clock.Now().Add(ttl).Unix()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token claims: %w", err)
	}

	signingInput := encodedHeader + "." + segmentEncoding.EncodeToString(raw)
	return signingInput + "." + c.sign(signingInput), nil
}

// Verify checks structure, signature and expiry, in that order, and returns
// the decoded claims
func (c *Codec) Verify(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformedToken
	}

	// Compare encoded forms so non-canonical base64 in the signature cannot
	// decode to the expected MAC.
	expected := c.sign(parts[0] + "." + parts[1])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[2])) != 1 {
		return nil, ErrBadSignature
	}

	headerRaw, err := segmentEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedToken
	}
	var header tokenHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil || header.Alg != signingAlgorithm {
		return nil, ErrMalformedToken
	}

	payloadRaw, err := segmentEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedToken
	}
	decoder := json.NewDecoder(bytes.NewReader(payloadRaw))
	decoder.UseNumber()
	var claims Claims
	if err := decoder.Decode(&claims); err != nil || claims == nil {
		return nil, ErrMalformedToken
	}

	if raw, present := claims[ClaimExpiry]; present {
		exp, err := numericClaim(raw)
		if err != nil {
			return nil, ErrMalformedToken
		}
		if exp < c.clock.Now().Unix() {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}

func (c *Codec) sign(signingInput string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(signingInput))
	return segmentEncoding.EncodeToString(mac.Sum(nil))
}
