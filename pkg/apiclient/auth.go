package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

// User is the profile returned by the backend.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	DisplayName *string    `json:"display_name,omitempty"`
	IsGuest     bool       `json:"is_guest"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Session is the result of register, login and guest sign-in.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         *User      `json:"user"`
	GuestID      *uuid.UUID `json:"guest_id,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and stores its session.
func (c *Client) Register(ctx context.Context, email, password string) (*Session, error) {
	return c.signIn(ctx, "/auth/register", credentials{Email: email, Password: password})
}

// Login signs in with email and password and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.signIn(ctx, "/auth/login", credentials{Email: email, Password: password})
}

// Guest starts a backend guest account. The cached email is cleared so the
// guest address never shows up as an identity label.
func (c *Client) Guest(ctx context.Context) (*Session, error) {
	return c.signIn(ctx, "/auth/guest", nil)
}

func (c *Client) signIn(ctx context.Context, path string, payload any) (*Session, error) {
	req, err := jsonRequest(http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	req.auth = false

	var out Session
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	if err := c.storeSession(ctx, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) storeSession(ctx context.Context, s *Session) error {
	err := multierr.Combine(
		c.tokens.Set(ctx, sessionstate.KeyBackendToken, s.AccessToken),
		c.tokens.Set(ctx, KeyRefreshToken, s.RefreshToken),
	)
	if s.User != nil && !s.User.IsGuest {
		err = multierr.Append(err, c.tokens.Set(ctx, sessionstate.KeyBackendEmail, strings.TrimSpace(s.User.Email)))
	} else {
		err = multierr.Append(err, c.tokens.Delete(ctx, sessionstate.KeyBackendEmail))
	}
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Refresh rotates the stored token pair.
func (c *Client) Refresh(ctx context.Context) error {
	refresh := c.read(ctx, KeyRefreshToken)
	if refresh == "" {
		return &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "no refresh token stored"}
	}
	req, err := jsonRequest(http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh})
	if err != nil {
		return err
	}

	// Sent directly: a 401 here must not trigger another refresh.
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return err
	}
	err = multierr.Combine(
		c.tokens.Set(ctx, sessionstate.KeyBackendToken, out.AccessToken),
		c.tokens.Set(ctx, KeyRefreshToken, out.RefreshToken),
	)
	if err != nil {
		return fmt.Errorf("store refreshed tokens: %w", err)
	}
	return nil
}

// Logout revokes the session on the backend and forgets the stored tokens
// even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	var remoteErr error
	if c.read(ctx, sessionstate.KeyBackendToken) != "" {
		req, _ := jsonRequest(http.MethodPost, "/auth/logout", nil)
		resp, err := c.send(ctx, req)
		if err != nil {
			remoteErr = err
		} else {
			remoteErr = decodeResponse(resp, nil)
			_ = resp.Body.Close()
			if IsStatus(remoteErr, http.StatusUnauthorized) {
				remoteErr = nil
			}
		}
	}
	localErr := c.tokens.Delete(ctx, sessionstate.KeyBackendToken, KeyRefreshToken, sessionstate.KeyBackendEmail)
	return multierr.Combine(remoteErr, localErr)
}

// IsAuthenticated reports whether the stored token has a live backend
// session. Any failure counts as false.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	if c.read(ctx, sessionstate.KeyBackendToken) == "" {
		return false
	}
	req, _ := jsonRequest(http.MethodGet, "/auth/session", nil)
	var out struct {
		Active bool `json:"active"`
	}
	if err := c.do(ctx, req, &out); err != nil {
		return false
	}
	return out.Active
}

// CurrentUserEmail returns the email of the signed-in backend user and caches
// it for the next start. Guest accounts report an empty email.
func (c *Client) CurrentUserEmail(ctx context.Context) (string, error) {
	user, err := c.Me(ctx)
	if err != nil {
		return "", err
	}
	if user.IsGuest {
		return "", nil
	}
	email := strings.TrimSpace(user.Email)
	if email != "" {
		_ = c.tokens.Set(ctx, sessionstate.KeyBackendEmail, email)
	}
	return email, nil
}

// Me returns the profile of the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	req, _ := jsonRequest(http.MethodGet, "/me", nil)
	var user User
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
