package models

import "time"

// Account statuses
const (
	AccountStatusActive = "active"
	AccountStatusLocked = "locked"
)

type Account struct {
	ID                string
	Username          string
	Email             string
	Phone             *string
	FullName          string
	DateOfBirth       *time.Time
	Address           string
	Gender            string
	PasswordHash      string
	FailedAttempts    int
	Status            string
	LockedAt          *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLocked reports whether the account rejects logins under a limit of maxFailed
func (a *Account) IsLocked(maxFailed int) bool {
	return a.Status == AccountStatusLocked || a.FailedAttempts >= maxFailed
}
