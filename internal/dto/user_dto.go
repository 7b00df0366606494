package dto

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type RegisterRequest struct {
	Email        string `json:"email" form:"email"`
	Password     string `json:"password" form:"password"`
	Subscription string `json:"subscription" form:"subscription"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.Subscription, validation.In("starter", "pro", "business")),
	)
}

type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type ResendVerificationRequest struct {
	Email string `json:"email" form:"email"`
}

func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type UserProfile struct {
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
	AvatarURL    string `json:"avatarURL"`
}

type RegisterResponse struct {
	Email        string `json:"email"`
	Subscription string `json:"subscription"`
	AvatarURL    string `json:"avatarURL"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  UserProfile `json:"user"`
}

type AvatarResponse struct {
	AvatarURL string `json:"avatarURL"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
}
