package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/internal/users"
)

// RegisterRequest carries the credentials for a new account.
type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required"`
	DisplayName *string `json:"display_name,omitempty"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token issued with the presented access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse contains the tokens and user produced by register, login and guest.
type TokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	User         *users.UserDTO `json:"user"`
	GuestID      *uuid.UUID     `json:"guest_id,omitempty"`
}

// RefreshResponse is returned after a successful rotation.
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse reports the state of the presented access token.
type SessionResponse struct {
	Active  bool      `json:"active"`
	UserID  uuid.UUID `json:"user_id"`
	IsGuest bool      `json:"is_guest"`
}
