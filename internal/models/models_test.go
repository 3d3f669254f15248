package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_MatchesSentinel(t *testing.T) {
	err := NewValidationError("email", "must be a valid email address")

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: email: must be a valid email address", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "email", ve.Field)
}

func TestConflictError_MatchesSentinel(t *testing.T) {
	err := error(&ConflictError{Field: "username"})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "username is already registered", err.Error())
}

func TestAccount_IsLocked(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{"fresh account", Account{Status: AccountStatusActive}, false},
		{"below limit", Account{Status: AccountStatusActive, FailedAttempts: 4}, false},
		{"at limit", Account{Status: AccountStatusActive, FailedAttempts: 5}, true},
		{"locked status", Account{Status: AccountStatusLocked}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.account.IsLocked(5))
		})
	}
}

func TestExpiryBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rt := RefreshToken{ExpiresAt: now}
	assert.True(t, rt.IsExpired(now), "refresh token is unusable at its expiry instant")
	assert.False(t, rt.IsExpired(now.Add(-time.Second)))

	otp := OTPCode{ExpiresAt: now}
	assert.False(t, otp.IsExpired(now))
	assert.True(t, otp.IsExpired(now.Add(time.Second)))
}
