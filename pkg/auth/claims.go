package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errSubjectMismatch = errors.New("token subject does not match user_id")

// AccessTokenPayload is what the auth service knows about the session when it
// mints a token.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	IsGuest bool
	JTI     string
}

// AccessTokenClaims is the JWT body handed to SnapSpend clients.
type AccessTokenClaims struct {
	UserID  uuid.UUID `json:"user_id"`
	IsGuest bool      `json:"is_guest,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks. jwt/v5 calls it through
// the ClaimsValidator interface.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return jwt.ErrTokenInvalidClaims
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errSubjectMismatch
	}
	return nil
}

// SessionID returns the refresh session the token was minted for.
func (c AccessTokenClaims) SessionID() string {
	return c.ID
}
