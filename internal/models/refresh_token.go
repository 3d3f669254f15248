package models

import "time"

// RefreshToken is the stored form of an opaque refresh token. Only the
// SHA-256 digest of the token string is kept.
type RefreshToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the token is no longer usable at now
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
