package models

import "time"

// OTP purposes
const (
	OTPPurposePasswordReset  = "password_reset"
	OTPPurposePasswordChange = "password_change"
)

// OTPCode is a single-use numeric code sent to the account's email address
type OTPCode struct {
	ID        string
	AccountID string
	Code      string
	Purpose   string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsExpired reports whether the code has passed its expiry at now
func (o *OTPCode) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// ValidOTPPurpose reports whether purpose is a known OTP purpose
func ValidOTPPurpose(purpose string) bool {
	return purpose == OTPPurposePasswordReset || purpose == OTPPurposePasswordChange
}
