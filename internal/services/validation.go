package services

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
)

const dateOfBirthLayout = "2006-01-02"

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,32}$`)
	letterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	phonePattern    = regexp.MustCompile(`^0\d{9}$`)
	validGenders    = map[string]bool{"male": true, "female": true, "other": true}
	validate        = validator.New()
)

// normalizeEmail trims and lowercases an email address
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return models.NewValidationError("email", "this field is required")
	}
	if err := validate.Var(email, "email"); err != nil {
		return models.NewValidationError("email", "must be a valid email address")
	}
	return nil
}

func validateNewPassword(password string) error {
	if err := pkgauth.ValidatePassword(password); err != nil {
		return models.NewValidationError("password", err.Error())
	}
	return nil
}

// validateRegistration checks input in place after normalizing it and
// returns the parsed date of birth, if any
func validateRegistration(input *RegisterInput, now time.Time) (*time.Time, error) {
	input.Username = strings.TrimSpace(input.Username)
	profile := UpdateProfileInput{
		Email:       input.Email,
		Phone:       input.Phone,
		FullName:    input.FullName,
		DateOfBirth: input.DateOfBirth,
		Address:     input.Address,
		Gender:      input.Gender,
	}
	normalizeProfile(&profile)
	input.Email, input.Phone, input.FullName = profile.Email, profile.Phone, profile.FullName
	input.DateOfBirth, input.Address, input.Gender = profile.DateOfBirth, profile.Address, profile.Gender

	if input.FullName == "" {
		return nil, models.NewValidationError("full_name", "this field is required")
	}
	// usernames and phones are both login identifiers, so a username
	// needs a letter to never look like a phone number
	if !usernamePattern.MatchString(input.Username) || !letterPattern.MatchString(input.Username) {
		return nil, models.NewValidationError("username", "must be 3 to 32 letters, digits, '_' or '.', including a letter")
	}

	dob, err := validateProfile(&profile, now)
	if err != nil {
		return nil, err
	}

	if err := validateNewPassword(input.Password); err != nil {
		return nil, err
	}

	return dob, nil
}

func normalizeProfile(p *UpdateProfileInput) {
	p.Email = normalizeEmail(p.Email)
	p.FullName = strings.TrimSpace(p.FullName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.Address = strings.TrimSpace(p.Address)
	p.DateOfBirth = strings.TrimSpace(p.DateOfBirth)
}

// validateProfile checks the editable account fields, already normalized,
// and returns the parsed date of birth
func validateProfile(p *UpdateProfileInput, now time.Time) (*time.Time, error) {
	if p.FullName == "" {
		return nil, models.NewValidationError("full_name", "this field is required")
	}
	if err := validateEmail(p.Email); err != nil {
		return nil, err
	}
	if p.Phone != "" && !phonePattern.MatchString(p.Phone) {
		return nil, models.NewValidationError("phone", "must be 10 digits starting with 0")
	}
	if p.Gender != "" && !validGenders[p.Gender] {
		return nil, models.NewValidationError("gender", "must be one of: male female other")
	}

	if p.DateOfBirth == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateOfBirthLayout, p.DateOfBirth)
	if err != nil {
		return nil, models.NewValidationError("date_of_birth", "must be a date in YYYY-MM-DD format")
	}
	if parsed.After(now) {
		return nil, models.NewValidationError("date_of_birth", "must not be in the future")
	}
	return &parsed, nil
}
