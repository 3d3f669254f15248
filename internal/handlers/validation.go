package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/BradenHooton/warden/internal/models"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.]{3,32}$`)
	letterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	phonePattern    = regexp.MustCompile(`^0\d{9}$`)
)

// Global validator instance (reused across all handlers)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report json field names, not Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		// a username must not be mistakable for a phone number at login
		name := fl.Field().String()
		return usernamePattern.MatchString(name) && letterPattern.MatchString(name)
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("dob", func(fl validator.FieldLevel) bool {
		parsed, err := time.Parse("2006-01-02", fl.Field().String())
		return err == nil && !parsed.After(time.Now())
	})

	return v
}

// ValidateRequest validates a request struct using go-playground/validator.
// The first failing field is returned as a *models.ValidationError.
func ValidateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return models.NewValidationError(ve[0].Field(), formatValidationError(ve[0]))
	}
	return models.NewValidationError("", err.Error())
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "username":
		return "must be 3 to 32 letters, digits, '_' or '.', including a letter"
	case "phone":
		return "must be 10 digits starting with 0"
	case "dob":
		return "must be a date in YYYY-MM-DD format, not in the future"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
