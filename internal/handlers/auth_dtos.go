package handlers

// Registration and session DTOs

// RegisterRequest is the request body for registration
type RegisterRequest struct {
	Username    string `json:"username" validate:"required,username"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	FullName    string `json:"full_name" validate:"required,max=255"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,dob"`
	Address     string `json:"address" validate:"omitempty,max=512"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
}

// UpdateProfileRequest replaces the editable profile fields. Omitted
// optional fields are cleared.
type UpdateProfileRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	Phone       string `json:"phone" validate:"omitempty,phone"`
	FullName    string `json:"full_name" validate:"required,max=255"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,dob"`
	Address     string `json:"address" validate:"omitempty,max=512"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
}

// LoginRequest is the request body for login. Identifier is a username,
// email address or phone number.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=255"`
	Password   string `json:"password" validate:"required,max=72"`
}

// RefreshTokenRequest is the request body for refresh and logout
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Password DTOs

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,numeric,max=10"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// ChangePasswordOTPRequest starts a password change. AccountID is optional
// and must match the bearer token subject when set.
type ChangePasswordOTPRequest struct {
	AccountID       string `json:"account_id" validate:"omitempty,uuid"`
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
}

type ChangePasswordRequest struct {
	AccountID       string `json:"account_id" validate:"omitempty,uuid"`
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	Code            string `json:"code" validate:"required,numeric,max=10"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
	Grant           string `json:"grant"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
